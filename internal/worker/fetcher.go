package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/sxm1129/bookqueue/internal/apperrors"
	"github.com/sxm1129/bookqueue/internal/model"
)

// FetchStore is the store dependency the Fetcher needs.
type FetchStore interface {
	FetchOne(ctx context.Context, workerID string) (*model.ChapterTask, error)
}

// Fetcher claims one eligible task at a time (§4.3).
type Fetcher struct {
	store    FetchStore
	workerID string
}

// NewFetcher builds a Fetcher bound to workerID.
func NewFetcher(store FetchStore, workerID string) *Fetcher {
	return &Fetcher{store: store, workerID: workerID}
}

// FetchOne returns the next claimed task, or nil if none is currently
// fetchable. A store failure is wrapped as a FetchError.
func (f *Fetcher) FetchOne(ctx context.Context) (*model.ChapterTask, error) {
	task, err := f.store.FetchOne(ctx, f.workerID)
	if err != nil {
		return nil, &apperrors.FetchError{Err: err}
	}
	return task, nil
}

// Idle sleeps a random interval in [0.5s, 2.0s] to de-synchronize
// pollers when no work was available, returning early if ctx is
// cancelled.
func Idle(ctx context.Context) {
	d := 500*time.Millisecond + time.Duration(rand.Int63n(int64(1500*time.Millisecond)))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
