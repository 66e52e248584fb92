package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/pointshop-system/internal/model"
)

// CreateOrderFromCart атомарно превращает активные строки корзины в заказ:
// строки перестают быть изменяемыми (pending_payment), их заблокированные
// суммы остаются закреплены за заказом до его завершения или отмены —
// средства не возвращаются и не блокируются заново.
func (r *PostgresRepository) CreateOrderFromCart(ctx context.Context, userID int64) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := lockWallet(ctx, tx, userID); err != nil {
				return err
			}

			rows, err := tx.Query(ctx,
				scanCartLine+` WHERE user_id = $1 AND status = $2 ORDER BY created_at`,
				userID, string(model.CartLineActive),
			)
			if err != nil {
				return fmt.Errorf("select cart lines: %w", err)
			}

			var lines []model.CartLine
			for rows.Next() {
				l, err := readCartLine(rows)
				if err != nil {
					rows.Close()
					return fmt.Errorf("scan cart line: %w", err)
				}
				lines = append(lines, *l)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("rows error: %w", err)
			}

			if len(lines) == 0 {
				return ErrEmptyCart
			}

			var total int64
			for _, l := range lines {
				total += l.BlockedAmount
			}

			o := &model.Order{
				UserID: userID,
				Total:  total,
				Status: model.OrderStatusPending,
			}
			err = tx.QueryRow(ctx,
				`INSERT INTO orders (user_id, total, status) VALUES ($1, $2, $3)
				 RETURNING id, created_at`,
				userID, total, string(model.OrderStatusPending),
			).Scan(&o.ID, &o.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}

			for _, l := range lines {
				item := model.OrderItem{
					OrderID:     o.ID,
					ArticleID:   l.ArticleID,
					ArticleName: l.ArticleName,
					ArticleSKU:  l.ArticleSKU,
					UnitPrice:   l.UnitPrice,
					Quantity:    l.Quantity,
					Total:       l.BlockedAmount,
					Status:      model.OrderItemPending,
				}
				err := tx.QueryRow(ctx,
					`INSERT INTO order_items (order_id, article_id, article_name, article_sku, unit_price, quantity, total)
					 VALUES ($1, $2, $3, $4, $5, $6, $7)
					 RETURNING id`,
					item.OrderID, item.ArticleID, item.ArticleName, item.ArticleSKU,
					item.UnitPrice, item.Quantity, item.Total,
				).Scan(&item.ID)
				if err != nil {
					return fmt.Errorf("insert order item: %w", err)
				}
				o.Items = append(o.Items, item)

				_, err = tx.Exec(ctx,
					`UPDATE cart_lines SET status = $2, order_id = $3, last_touched_at = now() WHERE id = $1`,
					l.ID, string(model.CartLinePendingPayment), o.ID,
				)
				if err != nil {
					return fmt.Errorf("attach cart line to order: %w", err)
				}
			}

			order = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

const scanOrder = `SELECT id, user_id, total, status, priority, claimed_by, claimed_at,
       cancel_reason, notes, created_at
 FROM orders`

func readOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &status, &o.Priority, &o.ClaimedBy, &o.ClaimedAt,
		&o.CancelReason, &o.Notes, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func readOrderItem(row pgx.Row) (*model.OrderItem, error) {
	var it model.OrderItem
	var status string
	err := row.Scan(&it.ID, &it.OrderID, &it.ArticleID, &it.ArticleName, &it.ArticleSKU,
		&it.UnitPrice, &it.Quantity, &it.Total, &status, &it.RedemptionCode,
		&it.FulfilledBy, &it.FulfilledAt, &it.Note)
	if err != nil {
		return nil, err
	}
	it.Status = model.OrderItemStatus(status)
	return &it, nil
}

const scanOrderItem = `SELECT id, order_id, article_id, article_name, article_sku,
       unit_price, quantity, total, status, redemption_code, fulfilled_by, fulfilled_at, note
 FROM order_items`

func (r *PostgresRepository) orderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx, scanOrderItem+` WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		it, err := readOrderItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, *it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetOrderByID возвращает заказ вместе с его позициями.
// Проверка владения выполняется на уровне сервиса.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	o, err := readOrder(r.pool.QueryRow(ctx, scanOrder+` WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	o.Items, err = r.orderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return o, nil
}

// GetOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		scanOrder+` WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := readOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// ListOrders возвращает заказы для административной выдачи, с необязательным
// фильтром по статусу; приоритетные и старые заказы идут первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, status model.OrderStatus, limit int) ([]model.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = r.pool.Query(ctx,
			scanOrder+` ORDER BY priority DESC, created_at LIMIT $1`, limit)
	} else {
		rows, err = r.pool.Query(ctx,
			scanOrder+` WHERE status = $1 ORDER BY priority DESC, created_at LIMIT $2`,
			string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := readOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// ClaimOrder закрепляет заказ за исполнителем условной записью: пустое поле
// claimed_by меняется на actorID, заказ переходит в processing. Проигравший
// получает ErrConflict сразу, без ожидания. Повторное взятие тем же
// исполнителем — успешная пустая операция.
func (r *PostgresRepository) ClaimOrder(ctx context.Context, orderID, actorID int64) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE orders
			 SET claimed_by = $2,
			     claimed_at = COALESCE(claimed_at, now()),
			     status = $3
			 WHERE id = $1
			   AND status IN ($4, $3)
			   AND (claimed_by IS NULL OR claimed_by = $2)`,
			orderID, actorID, string(model.OrderStatusProcessing), string(model.OrderStatusPending),
		)
		if err != nil {
			return fmt.Errorf("claim order: %w", err)
		}

		if cmdTag.RowsAffected() == 0 {
			_, err := readOrder(r.pool.QueryRow(ctx, scanOrder+` WHERE id = $1`, orderID))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("get order: %w", err)
			}
			return fmt.Errorf("%w: order already claimed", ErrConflict)
		}

		order, err = r.GetOrderByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// FulfillOrderItem закрывает позицию заказа кодом погашения. Если после этого
// не остаётся незакрытых позиций, заказ завершается в той же транзакции:
// заблокированная сумма становится потраченной ровно один раз.
func (r *PostgresRepository) FulfillOrderItem(ctx context.Context, orderID, itemID, actorID int64, code, note string) (*model.OrderItem, bool, error) {
	var (
		item      *model.OrderItem
		completed bool
	)

	err := r.withRetry(ctx, func() error {
		completed = false
		return r.inTx(ctx, func(tx pgx.Tx) error {
			order, err := readOrder(tx.QueryRow(ctx, scanOrder+` WHERE id = $1 FOR UPDATE`, orderID))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("lock order: %w", err)
			}

			if order.Status == model.OrderStatusPending {
				return fmt.Errorf("%w: order is not claimed", ErrConflict)
			}
			if order.Status.Terminal() {
				return fmt.Errorf("%w: order is %s", ErrConflict, order.Status)
			}

			existing, err := readOrderItem(tx.QueryRow(ctx,
				scanOrderItem+` WHERE id = $1 AND order_id = $2`, itemID, orderID))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("select order item: %w", err)
			}

			if !existing.Status.CanTransitionTo(model.OrderItemFulfilled) {
				return fmt.Errorf("%w: item is %s", ErrConflict, existing.Status)
			}

			item, err = readOrderItem(tx.QueryRow(ctx,
				`UPDATE order_items
				 SET status = $2, redemption_code = $3, fulfilled_by = $4, fulfilled_at = now(), note = $5
				 WHERE id = $1
				 RETURNING id, order_id, article_id, article_name, article_sku,
				           unit_price, quantity, total, status, redemption_code, fulfilled_by, fulfilled_at, note`,
				itemID, string(model.OrderItemFulfilled), code, actorID, note,
			))
			if err != nil {
				return fmt.Errorf("fulfill order item: %w", err)
			}

			var remaining int
			err = tx.QueryRow(ctx,
				`SELECT COUNT(*) FROM order_items WHERE order_id = $1 AND status <> $2`,
				orderID, string(model.OrderItemFulfilled),
			).Scan(&remaining)
			if err != nil {
				return fmt.Errorf("count remaining items: %w", err)
			}

			if remaining > 0 {
				return nil
			}

			// Последняя позиция закрыта: завершаем заказ и фиксируем траты.
			if err := lockWallet(ctx, tx, order.UserID); err != nil {
				return err
			}
			if err := finalizeLocked(ctx, tx, order.UserID, orderID, order.Total); err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE orders SET status = $2 WHERE id = $1`,
				orderID, string(model.OrderStatusCompleted),
			)
			if err != nil {
				return fmt.Errorf("complete order: %w", err)
			}
			completed = true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}

	return item, completed, nil
}

// CancelOrder отменяет незавершённый заказ: все неконечные позиции переходят
// в cancelled, строки корзины заказа удаляются, и вся заблокированная сумма
// возвращается в доступный баланс. Потраченные баллы не затрагиваются.
func (r *PostgresRepository) CancelOrder(ctx context.Context, orderID, actorID int64, reason string) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			o, err := readOrder(tx.QueryRow(ctx, scanOrder+` WHERE id = $1 FOR UPDATE`, orderID))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("lock order: %w", err)
			}

			if !o.Status.CanTransitionTo(model.OrderStatusCancelled) {
				return fmt.Errorf("%w: order is %s", ErrConflict, o.Status)
			}

			_, err = tx.Exec(ctx,
				`UPDATE order_items SET status = $2
				 WHERE order_id = $1 AND status NOT IN ($3, $2)`,
				orderID, string(model.OrderItemCancelled), string(model.OrderItemFulfilled),
			)
			if err != nil {
				return fmt.Errorf("cancel order items: %w", err)
			}

			_, err = tx.Exec(ctx,
				`UPDATE orders SET status = $2, cancel_reason = $3 WHERE id = $1`,
				orderID, string(model.OrderStatusCancelled), reason,
			)
			if err != nil {
				return fmt.Errorf("cancel order: %w", err)
			}

			if err := lockWallet(ctx, tx, o.UserID); err != nil {
				return err
			}
			if err := releaseOrderLocked(ctx, tx, orderID); err != nil {
				return err
			}

			o.Status = model.OrderStatusCancelled
			o.CancelReason = reason
			order = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	order.Items, err = r.orderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return order, nil
}

// AppendOrderNote дописывает строку к заметкам заказа. Заметки — единственное
// изменяемое поле завершённых и отменённых заказов.
func (r *PostgresRepository) AppendOrderNote(ctx context.Context, orderID int64, note string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END
		 WHERE id = $1`,
		orderID, note,
	)
	if err != nil {
		return fmt.Errorf("append order note: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
