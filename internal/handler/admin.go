package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminListOrders возвращает заказы для административной выдачи.
// Параметры запроса: status (необязательный фильтр), limit.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.service.ListOrders(r.Context(), actor, r.URL.Query().Get("status"), limit)
	if err != nil {
		h.respondError(w, err, "admin list orders error", zap.Int64("actorID", actor.UserID))
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

// AdminClaimOrder закрепляет заказ за текущим исполнителем и переводит его
// в обработку. Повторное взятие чужого заказа завершается конфликтом.
func (h *Handler) AdminClaimOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.ClaimOrder(r.Context(), actor, orderID)
	if err != nil {
		h.respondError(w, err, "claim order error",
			zap.Int64("actorID", actor.UserID), zap.Int64("orderID", orderID))
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type fulfillItemRequest struct {
	RedemptionCode string `json:"redemption_code"`
	Note           string `json:"note"`
}

type fulfillItemResponse struct {
	Item           orderItemResponse `json:"item"`
	OrderCompleted bool              `json:"order_completed"`
}

// AdminFulfillItem закрывает позицию заказа кодом погашения.
func (h *Handler) AdminFulfillItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req fulfillItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	item, completed, err := h.service.FulfillItem(r.Context(), actor, orderID, itemID, req.RedemptionCode, req.Note)
	if err != nil {
		h.respondError(w, err, "fulfill item error",
			zap.Int64("actorID", actor.UserID),
			zap.Int64("orderID", orderID),
			zap.Int64("itemID", itemID))
		return
	}

	writeJSON(w, http.StatusOK, fulfillItemResponse{
		Item:           toOrderItemResponse(item),
		OrderCompleted: completed,
	})
}

type addNoteRequest struct {
	Note string `json:"note"`
}

// AdminAddOrderNote дописывает заметку к заказу. Работает и для заказов
// в конечных статусах.
func (h *Handler) AdminAddOrderNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req addNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AddOrderNote(r.Context(), actor, orderID, req.Note); err != nil {
		h.respondError(w, err, "add order note error",
			zap.Int64("actorID", actor.UserID), zap.Int64("orderID", orderID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AdminCancelOrder отменяет заказ от имени администратора.
func (h *Handler) AdminCancelOrder(w http.ResponseWriter, r *http.Request) {
	h.CancelOrder(w, r)
}

type grantPointsRequest struct {
	Earned int64 `json:"earned"`
	Bonus  int64 `json:"bonus"`
}

// AdminGrantPoints начисляет пользователю баллы.
func (h *Handler) AdminGrantPoints(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req grantPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.GrantPoints(r.Context(), actor, userID, req.Earned, req.Bonus); err != nil {
		h.respondError(w, err, "grant points error",
			zap.Int64("actorID", actor.UserID), zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// AdminPreviewExpired показывает строки корзин, которые удалит очистка,
// без изменения данных.
func (h *Handler) AdminPreviewExpired(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.PreviewExpired(r.Context())
	if err != nil {
		h.respondError(w, err, "preview expired error")
		return
	}

	writeJSON(w, http.StatusOK, lines)
}

// AdminRunExpiration синхронно запускает очистку просроченных резервов.
func (h *Handler) AdminRunExpiration(w http.ResponseWriter, r *http.Request) {
	released, err := h.service.ExpireStale(r.Context())
	if err != nil {
		h.respondError(w, err, "run expiration error")
		return
	}

	writeJSON(w, http.StatusOK, released)
}

type enqueueExpirationResponse struct {
	JobID string `json:"job_id"`
}

// AdminEnqueueExpiration ставит отложенный проход очистки в очередь.
func (h *Handler) AdminEnqueueExpiration(w http.ResponseWriter, r *http.Request) {
	jobID, err := h.service.EnqueueExpiration(r.Context())
	if err != nil {
		h.respondError(w, err, "enqueue expiration error")
		return
	}

	writeJSON(w, http.StatusAccepted, enqueueExpirationResponse{JobID: jobID})
}
