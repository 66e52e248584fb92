package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/pointshop-system/internal/model"
	"github.com/mmeshcher/pointshop-system/internal/repository"
)

// Очистка просроченных резервов. Срок жизни строки корзины отсчитывается
// от last_touched_at и продлевается каждой мутацией. Сама бизнес-логика
// одинакова во всех режимах запуска: меняется только способ планирования.

const reaperBatchSize = 200

// ExpiredLine описывает просроченную строку корзины и сумму, которая
// вернётся в баланс при её удалении.
type ExpiredLine struct {
	LineID        int64     `json:"line_id"`
	UserID        int64     `json:"user_id"`
	ArticleID     int64     `json:"article_id"`
	Amount        int64     `json:"amount"`
	LastTouchedAt time.Time `json:"last_touched_at"`
}

type expireJob struct {
	id string
}

func (s *Service) staleThreshold() time.Time {
	return time.Now().Add(-s.cartTTL)
}

func toExpired(lines []model.CartLine) []ExpiredLine {
	res := make([]ExpiredLine, 0, len(lines))
	for _, l := range lines {
		res = append(res, ExpiredLine{
			LineID:        l.ID,
			UserID:        l.UserID,
			ArticleID:     l.ArticleID,
			Amount:        l.BlockedAmount,
			LastTouchedAt: l.LastTouchedAt,
		})
	}
	return res
}

// PreviewExpired возвращает строки, которые были бы удалены очисткой,
// не изменяя данных.
func (s *Service) PreviewExpired(ctx context.Context) ([]ExpiredLine, error) {
	lines, err := s.repo.GetStaleCartLines(ctx, s.staleThreshold(), reaperBatchSize)
	if err != nil {
		return nil, err
	}
	return toExpired(lines), nil
}

// ExpireStale синхронно удаляет просроченные строки корзин, возвращая их
// резервы владельцам. Действует от имени системного актора. Строка, уже
// удалённая конкурентной операцией, пропускается.
func (s *Service) ExpireStale(ctx context.Context) ([]ExpiredLine, error) {
	lines, err := s.repo.GetStaleCartLines(ctx, s.staleThreshold(), reaperBatchSize)
	if err != nil {
		return nil, err
	}

	var released []ExpiredLine
	for _, l := range lines {
		if err := ctx.Err(); err != nil {
			return released, err
		}

		err := s.repo.RemoveCartLine(ctx, l.UserID, l.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return released, err
		}

		s.logger.Info("expired cart line released",
			zap.Int64("lineID", l.ID),
			zap.Int64("userID", l.UserID),
			zap.Int64("amount", l.BlockedAmount),
			zap.String("actor", string(model.SystemActor.Role)))

		released = append(released, toExpired([]model.CartLine{l})...)
	}

	return released, nil
}

// EnqueueExpiration ставит отложенный проход очистки в очередь и возвращает
// идентификатор задания. Задание выполнит фоновый воркер.
func (s *Service) EnqueueExpiration(ctx context.Context) (string, error) {
	job := expireJob{id: uuid.NewString()}

	select {
	case s.expireQueue <- job:
		return job.id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// StartExpirationWorker запускает фоновый процесс очистки: периодический
// проход по расписанию и обработку отложенных заданий из очереди.
func (s *Service) StartExpirationWorker(ctx context.Context) {
	interval := s.cartTTL / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runExpiration(ctx, "schedule")
			case job := <-s.expireQueue:
				s.runExpiration(ctx, job.id)
			}
		}
	}()
}

func (s *Service) runExpiration(ctx context.Context, trigger string) {
	released, err := s.ExpireStale(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		s.logger.Error("cart expiration pass failed",
			zap.String("trigger", trigger), zap.Error(err))
		return
	}

	if len(released) > 0 {
		s.logger.Info("cart expiration pass finished",
			zap.String("trigger", trigger), zap.Int("released", len(released)))
	}
}
