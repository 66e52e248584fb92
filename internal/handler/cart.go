package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/pointshop-system/internal/model"
)

type cartLineResponse struct {
	ID            int64  `json:"id"`
	ArticleID     int64  `json:"article_id"`
	ArticleName   string `json:"article_name"`
	ArticleSKU    string `json:"article_sku"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int32  `json:"quantity"`
	BlockedAmount int64  `json:"blocked_amount"`
	LastTouchedAt string `json:"last_touched_at"`
}

type cartResponse struct {
	Lines   []cartLineResponse `json:"lines"`
	Blocked int64              `json:"blocked"`
}

func toCartLineResponse(l *model.CartLine) cartLineResponse {
	return cartLineResponse{
		ID:            l.ID,
		ArticleID:     l.ArticleID,
		ArticleName:   l.ArticleName,
		ArticleSKU:    l.ArticleSKU,
		UnitPrice:     l.UnitPrice,
		Quantity:      l.Quantity,
		BlockedAmount: l.BlockedAmount,
		LastTouchedAt: l.LastTouchedAt.Format(time.RFC3339),
	}
}

// GetCart возвращает корзину текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	cart, err := h.service.GetCart(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "get cart error", zap.Int64("userID", actor.UserID))
		return
	}

	resp := cartResponse{
		Lines:   make([]cartLineResponse, 0, len(cart.Lines)),
		Blocked: cart.Blocked,
	}
	for i := range cart.Lines {
		resp.Lines = append(resp.Lines, toCartLineResponse(&cart.Lines[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type addItemRequest struct {
	ArticleID int64 `json:"article_id"`
	Quantity  int32 `json:"quantity"`
}

// AddItem резервирует позицию каталога в корзине текущего пользователя.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ArticleID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	line, err := h.service.AddItem(r.Context(), actor, req.ArticleID, req.Quantity)
	if err != nil {
		h.respondError(w, err, "add cart item error",
			zap.Int64("userID", actor.UserID), zap.Int64("articleID", req.ArticleID))
		return
	}

	writeJSON(w, http.StatusOK, toCartLineResponse(line))
}

type updateQuantityRequest struct {
	Quantity int32 `json:"quantity"`
}

// UpdateItem изменяет количество в строке корзины текущего пользователя.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	lineID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	line, err := h.service.UpdateQuantity(r.Context(), actor, lineID, req.Quantity)
	if err != nil {
		h.respondError(w, err, "update cart item error",
			zap.Int64("userID", actor.UserID), zap.Int64("lineID", lineID))
		return
	}

	if line == nil {
		// Нулевое количество: строка удалена.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, toCartLineResponse(line))
}

// RemoveItem удаляет строку корзины текущего пользователя.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	lineID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RemoveItem(r.Context(), actor, lineID); err != nil {
		h.respondError(w, err, "remove cart item error",
			zap.Int64("userID", actor.UserID), zap.Int64("lineID", lineID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearCart удаляет все строки корзины текущего пользователя.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	if _, err := h.service.ClearCart(r.Context(), actor); err != nil {
		h.respondError(w, err, "clear cart error", zap.Int64("userID", actor.UserID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
