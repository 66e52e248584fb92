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

type orderItemResponse struct {
	ID             int64  `json:"id"`
	ArticleID      int64  `json:"article_id"`
	ArticleName    string `json:"article_name"`
	ArticleSKU     string `json:"article_sku"`
	UnitPrice      int64  `json:"unit_price"`
	Quantity       int32  `json:"quantity"`
	Total          int64  `json:"total"`
	Status         string `json:"status"`
	RedemptionCode string `json:"redemption_code,omitempty"`
	FulfilledAt    string `json:"fulfilled_at,omitempty"`
	Note           string `json:"note,omitempty"`
}

type orderResponse struct {
	ID           int64               `json:"id"`
	Total        int64               `json:"total"`
	Status       string              `json:"status"`
	Priority     int32               `json:"priority"`
	ClaimedBy    *int64              `json:"claimed_by,omitempty"`
	CancelReason string              `json:"cancel_reason,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	CreatedAt    string              `json:"created_at"`
	Items        []orderItemResponse `json:"items,omitempty"`
}

func toOrderItemResponse(it *model.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:             it.ID,
		ArticleID:      it.ArticleID,
		ArticleName:    it.ArticleName,
		ArticleSKU:     it.ArticleSKU,
		UnitPrice:      it.UnitPrice,
		Quantity:       it.Quantity,
		Total:          it.Total,
		Status:         string(it.Status),
		RedemptionCode: it.RedemptionCode,
		Note:           it.Note,
	}
	if it.FulfilledAt != nil {
		resp.FulfilledAt = it.FulfilledAt.Format(time.RFC3339)
	}
	return resp
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		Total:        o.Total,
		Status:       string(o.Status),
		Priority:     o.Priority,
		ClaimedBy:    o.ClaimedBy,
		CancelReason: o.CancelReason,
		Notes:        o.Notes,
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
	for i := range o.Items {
		resp.Items = append(resp.Items, toOrderItemResponse(&o.Items[i]))
	}
	return resp
}

// Checkout оформляет заказ из корзины текущего пользователя.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	order, err := h.service.Checkout(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "checkout error", zap.Int64("userID", actor.UserID))
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), actor)
	if err != nil {
		h.respondError(w, err, "get orders error", zap.Int64("userID", actor.UserID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ текущего пользователя с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.GetOrder(r.Context(), actor, orderID)
	if err != nil {
		h.respondError(w, err, "get order error",
			zap.Int64("userID", actor.UserID), zap.Int64("orderID", orderID))
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder отменяет заказ текущего пользователя.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req cancelOrderRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.service.CancelOrder(r.Context(), actor, orderID, req.Reason)
	if err != nil {
		h.respondError(w, err, "cancel order error",
			zap.Int64("userID", actor.UserID), zap.Int64("orderID", orderID))
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
