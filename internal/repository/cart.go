package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/pointshop-system/internal/model"
)

// ArticleSnapshot описывает данные позиции каталога, фиксируемые в строке
// корзины в момент резервирования.
type ArticleSnapshot struct {
	ArticleID int64
	Name      string
	SKU       string
	UnitPrice int64
}

// CartLimits содержит действующие лимиты корзины.
type CartLimits struct {
	MaxDistinctItems int
	MaxItemQuantity  int
}

const scanCartLine = `SELECT id, user_id, article_id, article_name, article_sku,
       unit_price, quantity, blocked_amount, status, order_id, last_touched_at, created_at
 FROM cart_lines`

func readCartLine(row pgx.Row) (*model.CartLine, error) {
	var l model.CartLine
	var status string
	err := row.Scan(&l.ID, &l.UserID, &l.ArticleID, &l.ArticleName, &l.ArticleSKU,
		&l.UnitPrice, &l.Quantity, &l.BlockedAmount, &status, &l.OrderID, &l.LastTouchedAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.Status = model.CartLineStatus(status)
	return &l, nil
}

// AddCartLine резервирует баллы под позицию каталога: проверяет лимиты и
// доступный баланс под блокировкой кошелька, затем создаёт строку корзины
// или сливает количество в существующую активную строку той же позиции.
func (r *PostgresRepository) AddCartLine(ctx context.Context, userID int64, art ArticleSnapshot, qty int32, limits CartLimits) (*model.CartLine, error) {
	var line *model.CartLine

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := lockWallet(ctx, tx, userID); err != nil {
				return err
			}

			existing, err := readCartLine(tx.QueryRow(ctx,
				scanCartLine+` WHERE user_id = $1 AND article_id = $2 AND status = $3`,
				userID, art.ArticleID, string(model.CartLineActive),
			))
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("select cart line: %w", err)
			}

			if existing == nil {
				var count int
				err := tx.QueryRow(ctx,
					`SELECT COUNT(*) FROM cart_lines WHERE user_id = $1 AND status = $2`,
					userID, string(model.CartLineActive),
				).Scan(&count)
				if err != nil {
					return fmt.Errorf("count cart lines: %w", err)
				}
				if count >= limits.MaxDistinctItems {
					return ErrCartLimit
				}
			}

			newQty := qty
			if existing != nil {
				newQty += existing.Quantity
			}
			if int(newQty) > limits.MaxItemQuantity {
				return ErrQuantityLimit
			}

			cost := int64(qty) * art.UnitPrice
			if err := ensureAvailable(ctx, tx, userID, cost); err != nil {
				return err
			}

			if existing != nil {
				line, err = readCartLine(tx.QueryRow(ctx,
					`UPDATE cart_lines
					 SET quantity = quantity + $2,
					     blocked_amount = blocked_amount + $3,
					     last_touched_at = now()
					 WHERE id = $1
					 RETURNING id, user_id, article_id, article_name, article_sku,
					           unit_price, quantity, blocked_amount, status, order_id, last_touched_at, created_at`,
					existing.ID, qty, cost,
				))
				if err != nil {
					return fmt.Errorf("merge cart line: %w", err)
				}
				return nil
			}

			line, err = readCartLine(tx.QueryRow(ctx,
				`INSERT INTO cart_lines (user_id, article_id, article_name, article_sku, unit_price, quantity, blocked_amount)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 RETURNING id, user_id, article_id, article_name, article_sku,
				           unit_price, quantity, blocked_amount, status, order_id, last_touched_at, created_at`,
				userID, art.ArticleID, art.Name, art.SKU, art.UnitPrice, qty, cost,
			))
			if err != nil {
				return fmt.Errorf("insert cart line: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return line, nil
}

// UpdateCartLineQuantity изменяет количество в активной строке корзины.
// Рост количества блокирует разницу, уменьшение возвращает её; нулевое
// количество эквивалентно удалению строки.
func (r *PostgresRepository) UpdateCartLineQuantity(ctx context.Context, userID, lineID int64, newQty int32, limits CartLimits) (*model.CartLine, error) {
	if newQty == 0 {
		if err := r.RemoveCartLine(ctx, userID, lineID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var line *model.CartLine

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := lockWallet(ctx, tx, userID); err != nil {
				return err
			}

			existing, err := readCartLine(tx.QueryRow(ctx,
				scanCartLine+` WHERE id = $1 AND user_id = $2 AND status = $3`,
				lineID, userID, string(model.CartLineActive),
			))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return fmt.Errorf("select cart line: %w", err)
			}

			if int(newQty) > limits.MaxItemQuantity {
				return ErrQuantityLimit
			}

			delta := int64(newQty-existing.Quantity) * existing.UnitPrice
			if delta > 0 {
				if err := ensureAvailable(ctx, tx, userID, delta); err != nil {
					return err
				}
			}

			line, err = readCartLine(tx.QueryRow(ctx,
				`UPDATE cart_lines
				 SET quantity = $2, blocked_amount = $3, last_touched_at = now()
				 WHERE id = $1
				 RETURNING id, user_id, article_id, article_name, article_sku,
				           unit_price, quantity, blocked_amount, status, order_id, last_touched_at, created_at`,
				existing.ID, newQty, int64(newQty)*existing.UnitPrice,
			))
			if err != nil {
				return fmt.Errorf("update cart line: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return line, nil
}

// RemoveCartLine удаляет активную строку корзины, возвращая её
// заблокированную сумму в доступный баланс. Удаление строки и возврат
// средств — одно и то же действие, выполняемое под блокировкой кошелька.
func (r *PostgresRepository) RemoveCartLine(ctx context.Context, userID, lineID int64) error {
	return r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := lockWallet(ctx, tx, userID); err != nil {
				return err
			}

			cmdTag, err := tx.Exec(ctx,
				`DELETE FROM cart_lines WHERE id = $1 AND user_id = $2 AND status = $3`,
				lineID, userID, string(model.CartLineActive),
			)
			if err != nil {
				return fmt.Errorf("delete cart line: %w", err)
			}
			if cmdTag.RowsAffected() == 0 {
				return ErrNotFound
			}
			return nil
		})
	})
}

// ClearCart удаляет все активные строки корзины пользователя.
func (r *PostgresRepository) ClearCart(ctx context.Context, userID int64) (int, error) {
	var removed int

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			if err := lockWallet(ctx, tx, userID); err != nil {
				return err
			}

			cmdTag, err := tx.Exec(ctx,
				`DELETE FROM cart_lines WHERE user_id = $1 AND status = $2`,
				userID, string(model.CartLineActive),
			)
			if err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
			removed = int(cmdTag.RowsAffected())
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// GetCartLines возвращает активные строки корзины пользователя.
func (r *PostgresRepository) GetCartLines(ctx context.Context, userID int64) ([]model.CartLine, error) {
	rows, err := r.pool.Query(ctx,
		scanCartLine+` WHERE user_id = $1 AND status = $2 ORDER BY created_at`,
		userID, string(model.CartLineActive),
	)
	if err != nil {
		return nil, fmt.Errorf("select cart lines: %w", err)
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		l, err := readCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// GetStaleCartLines возвращает активные строки, не тронутые с указанного
// момента. Используется процессом очистки просроченных резервов.
func (r *PostgresRepository) GetStaleCartLines(ctx context.Context, olderThan time.Time, limit int) ([]model.CartLine, error) {
	rows, err := r.pool.Query(ctx,
		scanCartLine+` WHERE status = $1 AND last_touched_at < $2 ORDER BY last_touched_at LIMIT $3`,
		string(model.CartLineActive), olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select stale cart lines: %w", err)
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		l, err := readCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}
