// Package service реализует бизнес-логику сервиса обмена баллов.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pointshop-system/internal/catalog"
	"github.com/mmeshcher/pointshop-system/internal/model"
	"github.com/mmeshcher/pointshop-system/internal/repository"
)

// ErrValidation возвращается при некорректных входных данных.
var (
	ErrValidation = errors.New("validation error")
	// ErrForbidden возвращается при несовпадении владельца или роли.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)
	AddPoints(ctx context.Context, userID, earned, bonus int64) error

	AddCartLine(ctx context.Context, userID int64, art repository.ArticleSnapshot, qty int32, limits repository.CartLimits) (*model.CartLine, error)
	UpdateCartLineQuantity(ctx context.Context, userID, lineID int64, newQty int32, limits repository.CartLimits) (*model.CartLine, error)
	RemoveCartLine(ctx context.Context, userID, lineID int64) error
	ClearCart(ctx context.Context, userID int64) (int, error)
	GetCartLines(ctx context.Context, userID int64) ([]model.CartLine, error)
	GetStaleCartLines(ctx context.Context, olderThan time.Time, limit int) ([]model.CartLine, error)

	CreateOrderFromCart(ctx context.Context, userID int64) (*model.Order, error)
	GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ListOrders(ctx context.Context, status model.OrderStatus, limit int) ([]model.Order, error)
	ClaimOrder(ctx context.Context, orderID, actorID int64) (*model.Order, error)
	FulfillOrderItem(ctx context.Context, orderID, itemID, actorID int64, code, note string) (*model.OrderItem, bool, error)
	CancelOrder(ctx context.Context, orderID, actorID int64, reason string) (*model.Order, error)
	AppendOrderNote(ctx context.Context, orderID int64, note string) error
}

// Catalog описывает контракт внешнего каталога призов.
type Catalog interface {
	GetArticle(ctx context.Context, articleID int64) (*catalog.Article, error)
	IsVisible(ctx context.Context, articleID, userID int64) (bool, error)
}

// Notifier описывает контракт внешнего сервиса уведомлений.
type Notifier interface {
	NotifyNewOrder(ctx context.Context, order *model.Order) error
	NotifyOrderCancelled(ctx context.Context, order *model.Order, reason string) error
}

// Limits содержит действующие лимиты корзины.
type Limits struct {
	MaxDistinctItems int
	MaxItemQuantity  int
}

// Service содержит бизнес-логику сервиса обмена баллов.
type Service struct {
	repo     Repository
	catalog  Catalog
	notifier Notifier
	logger   *zap.Logger
	limits   Limits
	cartTTL  time.Duration

	expireQueue chan expireJob
}

// NewService создаёт новый сервис с указанными коллабораторами и лимитами.
func NewService(repo Repository, cat Catalog, notif Notifier, logger *zap.Logger, limits Limits, cartTTL time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxDistinctItems <= 0 {
		limits.MaxDistinctItems = 10
	}
	if limits.MaxItemQuantity <= 0 {
		limits.MaxItemQuantity = 5
	}
	if cartTTL <= 0 {
		cartTTL = 30 * time.Minute
	}

	return &Service{
		repo:        repo,
		catalog:     cat,
		notifier:    notif,
		logger:      logger,
		limits:      limits,
		cartTTL:     cartTTL,
		expireQueue: make(chan expireJob, 16),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его актора.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (model.Actor, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return model.Actor{}, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return model.Actor{}, ErrInvalidCredentials
	}

	return model.Actor{UserID: u.ID, Role: u.Role}, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetBalance возвращает счётчики кошелька пользователя.
func (s *Service) GetBalance(ctx context.Context, actor model.Actor) (*model.Balance, error) {
	return s.repo.GetBalance(ctx, actor.UserID)
}

// GrantPoints начисляет пользователю баллы. Доступно только администратору.
func (s *Service) GrantPoints(ctx context.Context, actor model.Actor, userID, earned, bonus int64) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if earned < 0 || bonus < 0 {
		return fmt.Errorf("%w: point amounts must be non-negative", ErrValidation)
	}
	if earned == 0 && bonus == 0 {
		return fmt.Errorf("%w: nothing to grant", ErrValidation)
	}
	return s.repo.AddPoints(ctx, userID, earned, bonus)
}

func (s *Service) repoLimits() repository.CartLimits {
	return repository.CartLimits{
		MaxDistinctItems: s.limits.MaxDistinctItems,
		MaxItemQuantity:  s.limits.MaxItemQuantity,
	}
}
