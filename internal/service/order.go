package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/pointshop-system/internal/model"
)

// Checkout оформляет заказ из активных строк корзины актора. Резерв строк
// переходит к заказу без промежуточного возврата средств. Уведомление о
// новом заказе отправляется после фиксации и не влияет на результат.
func (s *Service) Checkout(ctx context.Context, actor model.Actor) (*model.Order, error) {
	order, err := s.repo.CreateOrderFromCart(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyNewOrder(ctx, order); err != nil {
			s.logger.Warn("notify new order failed",
				zap.Int64("orderID", order.ID), zap.Error(err))
		}
	}

	return order, nil
}

// GetOrder возвращает заказ с позициями. Участник видит только свои заказы.
func (s *Service) GetOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	return order, nil
}

// GetOrdersByUser возвращает заказы актора.
func (s *Service) GetOrdersByUser(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, actor.UserID)
}

// ListOrders возвращает заказы для административной выдачи с необязательным
// фильтром по статусу.
func (s *Service) ListOrders(ctx context.Context, actor model.Actor, statusFilter string, limit int) ([]model.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	var status model.OrderStatus
	if statusFilter != "" {
		status = model.OrderStatus(strings.ToLower(statusFilter))
		switch status {
		case model.OrderStatusPending, model.OrderStatusProcessing,
			model.OrderStatusCompleted, model.OrderStatusCancelled:
		default:
			return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, statusFilter)
		}
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	return s.repo.ListOrders(ctx, status, limit)
}

// ClaimOrder закрепляет заказ за актором-исполнителем. Второй исполнитель
// получает Conflict немедленно и может взять другой заказ.
func (s *Service) ClaimOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.ClaimOrder(ctx, orderID, actor.UserID)
}

// FulfillItem закрывает позицию заказа кодом погашения от имени актора.
// Возвращает признак того, что заказ завершился этой позицией.
func (s *Service) FulfillItem(ctx context.Context, actor model.Actor, orderID, itemID int64, code, note string) (*model.OrderItem, bool, error) {
	if !actor.IsAdmin() {
		return nil, false, ErrForbidden
	}
	if strings.TrimSpace(code) == "" {
		return nil, false, fmt.Errorf("%w: redemption code must not be empty", ErrValidation)
	}

	return s.repo.FulfillOrderItem(ctx, orderID, itemID, actor.UserID, code, note)
}

// CancelOrder отменяет незавершённый заказ. Отменить может администратор
// или владелец заказа. Уведомление клиенту отправляется после фиксации.
func (s *Service) CancelOrder(ctx context.Context, actor model.Actor, orderID int64, reason string) (*model.Order, error) {
	if !actor.IsAdmin() {
		order, err := s.repo.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.UserID != actor.UserID {
			return nil, ErrForbidden
		}
	}

	order, err := s.repo.CancelOrder(ctx, orderID, actor.UserID, reason)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyOrderCancelled(ctx, order, reason); err != nil {
			s.logger.Warn("notify order cancelled failed",
				zap.Int64("orderID", order.ID), zap.Error(err))
		}
	}

	return order, nil
}

// AddOrderNote дописывает заметку к заказу. Заметки — единственное поле,
// изменяемое у заказов в конечных статусах.
func (s *Service) AddOrderNote(ctx context.Context, actor model.Actor, orderID int64, note string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if strings.TrimSpace(note) == "" {
		return fmt.Errorf("%w: note must not be empty", ErrValidation)
	}
	return s.repo.AppendOrderNote(ctx, orderID, note)
}
