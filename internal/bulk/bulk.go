// Package bulk fans a state transition out over a set of credentials with
// bounded concurrency and independent per-item outcomes. A bulk run is a
// best-effort batch, not a transaction: nothing is rolled back on partial
// failure.
package bulk

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/semaphore"

	"github.com/and161185/brokerlink/internal/model"
)

const defaultLimit = 8

// TransitionFn applies the operation to one credential. A nil error counts
// the item as succeeded.
type TransitionFn func(ctx context.Context, id uuid.UUID) error

// Coordinator dispatches per-item work concurrently while capping in-flight
// calls so the validator is not overwhelmed.
type Coordinator struct {
	limit int64
}

// NewCoordinator builds a coordinator with the given concurrency limit
// (defaulted when non-positive).
func NewCoordinator(limit int) *Coordinator {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Coordinator{limit: int64(limit)}
}

// Run applies fn to every ID and waits for all dispatched items before
// returning. Per-item single-flight is the state machine's job; the
// coordinator adds no locking of its own. An empty set returns an empty
// result without side effects.
func (c *Coordinator) Run(ctx context.Context, ids []uuid.UUID, fn TransitionFn) model.BulkResult {
	result := model.BulkResult{
		Succeeded: []uuid.UUID{},
		Failed:    []model.BulkFailure{},
	}
	if len(ids) == 0 {
		return result
	}

	sem := semaphore.NewWeighted(c.limit)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, model.BulkFailure{ID: id, Reason: err.Error()})
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			err := fn(ctx, id)
			mu.Lock()
			if err != nil {
				result.Failed = append(result.Failed, model.BulkFailure{ID: id, Reason: err.Error()})
			} else {
				result.Succeeded = append(result.Succeeded, id)
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	// Items complete in arbitrary order; sort for a deterministic report.
	sort.Slice(result.Succeeded, func(i, j int) bool {
		return bytes.Compare(result.Succeeded[i].Bytes(), result.Succeeded[j].Bytes()) < 0
	})
	sort.Slice(result.Failed, func(i, j int) bool {
		return bytes.Compare(result.Failed[i].ID.Bytes(), result.Failed[j].ID.Bytes()) < 0
	})
	return result
}
