package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/pointshop-system/internal/model"
)

// Кошелёк пользователя сериализуется блокировкой его строки в users.
// Заблокированная сумма не хранится отдельным полем: её источником служат
// живые строки cart_lines (active и pending_payment). Создание строки и есть
// блокировка средств, удаление и есть возврат — обе стороны меняются в одной
// транзакции под одной блокировкой.

// lockWallet захватывает эксклюзивную блокировку строки пользователя.
// Все мутации кошелька одного пользователя выстраиваются в очередь на ней.
func lockWallet(ctx context.Context, tx pgx.Tx, userID int64) error {
	var dummy int
	err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock wallet: %w", err)
	}
	return nil
}

// balanceLocked читает счётчики кошелька внутри транзакции, уже удерживающей
// блокировку строки пользователя.
func balanceLocked(ctx context.Context, tx pgx.Tx, userID int64) (*model.Balance, error) {
	var b model.Balance
	err := tx.QueryRow(ctx,
		`SELECT u.earned, u.bonus, u.spent,
		        COALESCE((SELECT SUM(cl.blocked_amount) FROM cart_lines cl WHERE cl.user_id = u.id), 0)
		 FROM users u
		 WHERE u.id = $1`,
		userID,
	).Scan(&b.Earned, &b.Bonus, &b.Spent, &b.Blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("read balance: %w", err)
	}

	b.Available = b.Earned + b.Bonus - b.Blocked - b.Spent
	return &b, nil
}

// ensureAvailable проверяет, что доступного баланса хватает на amount.
func ensureAvailable(ctx context.Context, tx pgx.Tx, userID, amount int64) error {
	b, err := balanceLocked(ctx, tx, userID)
	if err != nil {
		return err
	}
	if amount > b.Available {
		return ErrInsufficientFunds
	}
	return nil
}

// finalizeLocked переводит заблокированную сумму заказа в потраченную:
// увеличивает spent и удаляет строки корзины, закреплённые за заказом.
// Вызывается только при завершении заказа, под блокировкой кошелька.
func finalizeLocked(ctx context.Context, tx pgx.Tx, userID, orderID, amount int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE users SET spent = spent + $2 WHERE id = $1`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("finalize spent: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM cart_lines WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("finalize delete lines: %w", err)
	}

	return nil
}

// releaseOrderLocked возвращает заблокированную сумму заказа в доступный
// баланс: удаляет строки корзины заказа, spent не изменяется.
func releaseOrderLocked(ctx context.Context, tx pgx.Tx, orderID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("release order lines: %w", err)
	}
	return nil
}

// GetBalance возвращает согласованный снимок счётчиков кошелька пользователя.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	var b model.Balance
	err := r.pool.QueryRow(ctx,
		`SELECT u.earned, u.bonus, u.spent,
		        COALESCE((SELECT SUM(cl.blocked_amount) FROM cart_lines cl WHERE cl.user_id = u.id), 0)
		 FROM users u
		 WHERE u.id = $1`,
		userID,
	).Scan(&b.Earned, &b.Bonus, &b.Spent, &b.Blocked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}

	b.Available = b.Earned + b.Bonus - b.Blocked - b.Spent
	return &b, nil
}

// AddPoints начисляет пользователю заработанные и бонусные баллы.
func (r *PostgresRepository) AddPoints(ctx context.Context, userID, earned, bonus int64) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE users SET earned = earned + $2, bonus = bonus + $3 WHERE id = $1`,
			userID, earned, bonus,
		)
		if err != nil {
			return fmt.Errorf("add points: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}
