package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/pointshop-system/internal/model"
	"github.com/mmeshcher/pointshop-system/internal/repository"
)

// Cart описывает корзину пользователя: активные строки и их суммарный резерв.
type Cart struct {
	Lines   []model.CartLine
	Blocked int64
}

// GetCart возвращает корзину актора.
func (s *Service) GetCart(ctx context.Context, actor model.Actor) (*Cart, error) {
	lines, err := s.repo.GetCartLines(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	cart := &Cart{Lines: lines}
	for _, l := range lines {
		cart.Blocked += l.BlockedAmount
	}
	return cart, nil
}

// AddItem резервирует qty единиц позиции каталога в корзине актора.
// Позиция должна быть доступна и видима актору; для физических призов
// остаток на складе проверяется, но не резервируется — окончательная
// проверка остаётся за исполнителем заказа.
func (s *Service) AddItem(ctx context.Context, actor model.Actor, articleID int64, qty int32) (*model.CartLine, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if int(qty) > s.limits.MaxItemQuantity {
		return nil, fmt.Errorf("%w: quantity exceeds limit of %d", ErrValidation, s.limits.MaxItemQuantity)
	}

	art, err := s.catalog.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if !art.Available {
		return nil, fmt.Errorf("%w: article is not available", ErrValidation)
	}

	visible, err := s.catalog.IsVisible(ctx, articleID, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, fmt.Errorf("%w: article is not visible to user", ErrForbidden)
	}

	if !art.Digital && art.Stock < qty {
		return nil, fmt.Errorf("%w: not enough stock", ErrValidation)
	}

	snap := repository.ArticleSnapshot{
		ArticleID: art.ID,
		Name:      art.Name,
		SKU:       art.SKU,
		UnitPrice: art.Price,
	}

	return s.repo.AddCartLine(ctx, actor.UserID, snap, qty, s.repoLimits())
}

// UpdateQuantity изменяет количество в строке корзины актора.
// Нулевое количество удаляет строку; возвращается nil без ошибки.
func (s *Service) UpdateQuantity(ctx context.Context, actor model.Actor, lineID int64, qty int32) (*model.CartLine, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	if int(qty) > s.limits.MaxItemQuantity {
		return nil, fmt.Errorf("%w: quantity exceeds limit of %d", ErrValidation, s.limits.MaxItemQuantity)
	}

	return s.repo.UpdateCartLineQuantity(ctx, actor.UserID, lineID, qty, s.repoLimits())
}

// RemoveItem удаляет строку корзины актора и возвращает её резерв в баланс.
func (s *Service) RemoveItem(ctx context.Context, actor model.Actor, lineID int64) error {
	return s.repo.RemoveCartLine(ctx, actor.UserID, lineID)
}

// ClearCart удаляет все активные строки корзины актора.
func (s *Service) ClearCart(ctx context.Context, actor model.Actor) (int, error) {
	return s.repo.ClearCart(ctx, actor.UserID)
}
