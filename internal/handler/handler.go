// Package handler содержит HTTP-обработчики API сервиса обмена баллов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/pointshop-system/internal/catalog"
	"github.com/mmeshcher/pointshop-system/internal/middleware"
	"github.com/mmeshcher/pointshop-system/internal/model"
	"github.com/mmeshcher/pointshop-system/internal/repository"
	"github.com/mmeshcher/pointshop-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (model.Actor, error)
	GetBalance(ctx context.Context, actor model.Actor) (*model.Balance, error)

	GetCart(ctx context.Context, actor model.Actor) (*service.Cart, error)
	AddItem(ctx context.Context, actor model.Actor, articleID int64, qty int32) (*model.CartLine, error)
	UpdateQuantity(ctx context.Context, actor model.Actor, lineID int64, qty int32) (*model.CartLine, error)
	RemoveItem(ctx context.Context, actor model.Actor, lineID int64) error
	ClearCart(ctx context.Context, actor model.Actor) (int, error)

	Checkout(ctx context.Context, actor model.Actor) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, actor model.Actor) ([]model.Order, error)
	GetOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error)
	CancelOrder(ctx context.Context, actor model.Actor, orderID int64, reason string) (*model.Order, error)

	ListOrders(ctx context.Context, actor model.Actor, statusFilter string, limit int) ([]model.Order, error)
	ClaimOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error)
	FulfillItem(ctx context.Context, actor model.Actor, orderID, itemID int64, code, note string) (*model.OrderItem, bool, error)
	AddOrderNote(ctx context.Context, actor model.Actor, orderID int64, note string) error
	GrantPoints(ctx context.Context, actor model.Actor, userID, earned, bonus int64) error

	PreviewExpired(ctx context.Context) ([]service.ExpiredLine, error)
	ExpireStale(ctx context.Context) ([]service.ExpiredLine, error)
	EnqueueExpiration(ctx context.Context) (string, error)
}

// Handler реализует HTTP-обработчики API сервиса обмена баллов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// respondError переводит доменные ошибки в HTTP-статусы.
// Неожиданные ошибки логируются и отдаются обобщённым 500.
func (h *Handler) respondError(w http.ResponseWriter, err error, logCtx string, fields ...zap.Field) {
	var status int
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrQuantityLimit), errors.Is(err, repository.ErrCartLimit):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, repository.ErrEmptyCart):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, catalog.ErrArticleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	default:
		h.logger.Error(logCtx, append(fields, zap.Error(err))...)
		status = http.StatusInternalServerError
	}

	http.Error(w, http.StatusText(status), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func actorOrUnauthorized(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return actor, ok
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.respondError(w, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, model.Actor{UserID: userID, Role: model.RoleMember})
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	actor, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.respondError(w, err, "login user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, actor)
	w.WriteHeader(http.StatusOK)
}

// GetBalance возвращает счётчики кошелька текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "get balance error", zap.Int64("userID", actor.UserID))
		return
	}

	writeJSON(w, http.StatusOK, balance)
}
