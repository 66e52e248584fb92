package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mmeshcher/pointshop-system/internal/model"
	"github.com/mmeshcher/pointshop-system/internal/repository"
)

func staleLine(id, userID, amount int64) model.CartLine {
	return model.CartLine{
		ID:            id,
		UserID:        userID,
		ArticleID:     id * 10,
		BlockedAmount: amount,
		Status:        model.CartLineActive,
		LastTouchedAt: time.Now().Add(-time.Hour),
	}
}

func TestPreviewExpired_DoesNotMutate(t *testing.T) {
	repo := &stubRepo{staleLines: []model.CartLine{staleLine(1, 7, 300), staleLine(2, 8, 500)}}
	svc := newTestService(repo, nil, nil)

	lines, err := svc.PreviewExpired(context.Background())
	if err != nil {
		t.Fatalf("PreviewExpired error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("previewed %d lines, want 2", len(lines))
	}
	if lines[0].Amount != 300 || lines[1].Amount != 500 {
		t.Fatalf("unexpected amounts: %+v", lines)
	}
	if len(repo.removedLineIDs) != 0 {
		t.Fatalf("preview must not remove lines, removed %v", repo.removedLineIDs)
	}
}

func TestExpireStale_RemovesAndReportsReleases(t *testing.T) {
	repo := &stubRepo{staleLines: []model.CartLine{staleLine(1, 7, 300), staleLine(2, 8, 500)}}
	svc := newTestService(repo, nil, nil)

	released, err := svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("ExpireStale error: %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("released %d lines, want 2", len(released))
	}
	if len(repo.removedLineIDs) != 2 || repo.removedLineIDs[0] != 1 || repo.removedLineIDs[1] != 2 {
		t.Fatalf("unexpected removals: %v", repo.removedLineIDs)
	}
}

func TestExpireStale_SkipsAlreadyRemovedLines(t *testing.T) {
	repo := &stubRepo{
		staleLines: []model.CartLine{staleLine(1, 7, 300)},
		removeErr:  repository.ErrNotFound,
	}
	svc := newTestService(repo, nil, nil)

	released, err := svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("ExpireStale must tolerate concurrent removal, got %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("released %d lines, want 0", len(released))
	}
}

// queueRepo защищает учёт удалений мьютексом: отложенные задания
// выполняются фоновым воркером.
type queueRepo struct {
	stubRepo
	mu      sync.Mutex
	removed []int64
}

func (q *queueRepo) RemoveCartLine(ctx context.Context, userID, lineID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, lineID)
	return nil
}

func (q *queueRepo) removedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.removed)
}

func TestEnqueueExpiration_DeferredJobRuns(t *testing.T) {
	repo := &queueRepo{}
	repo.staleLines = []model.CartLine{staleLine(1, 7, 300)}
	svc := newTestService(repo, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartExpirationWorker(ctx)

	jobID, err := svc.EnqueueExpiration(ctx)
	if err != nil {
		t.Fatalf("EnqueueExpiration error: %v", err)
	}
	if jobID == "" {
		t.Fatalf("job ID must not be empty")
	}

	deadline := time.After(2 * time.Second)
	for repo.removedCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("deferred expiration job did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnqueueExpiration_CancelledContext(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil, nil)

	// Забиваем очередь, чтобы Enqueue блокировался.
	for i := 0; i < cap(svc.expireQueue); i++ {
		svc.expireQueue <- expireJob{id: "fill"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := svc.EnqueueExpiration(ctx); err == nil {
		t.Fatalf("expected error for full queue with cancelled context")
	}
}
