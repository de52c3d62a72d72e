package workerpool

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Result carries one unit's outcome to the reduce step. Index is the item's
// position in the input slice.
type Result[T, R any] struct {
	Index int
	Item  T
	Value R
	Err   error
}

// WorkFunc processes one item.
type WorkFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ReduceFunc folds one result. Calls never overlap, so it may mutate shared
// state without locking. Returning an error stops scheduling further items.
type ReduceFunc[T, R any] func(Result[T, R]) error

// Size returns the effective worker count: configured when positive,
// otherwise GOMAXPROCS, capped at pending when pending is positive.
func Size(configured, pending int) int {
	n := configured
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if pending > 0 && n > pending {
		n = pending
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run executes work for every item with at most workers concurrent calls and
// passes each result to reduce. Errors returned by work are handed to reduce
// instead of aborting the run, so one failed camera or frame does not stop
// the others. Run returns the first reduce error, or the context error when
// ctx is cancelled before every item was scheduled.
func Run[T, R any](ctx context.Context, workers int, items []T, work WorkFunc[T, R], reduce ReduceFunc[T, R]) error {
	if len(items) == 0 {
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Size(workers, len(items)))

	var (
		mu      sync.Mutex
		stopped bool
	)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			value, err := work(gctx, item)

			mu.Lock()
			defer mu.Unlock()
			if stopped {
				return nil
			}
			if rerr := reduce(Result[T, R]{Index: i, Item: item, Value: value, Err: err}); rerr != nil {
				stopped = true
				return rerr
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Map runs work for every item and returns values and errors aligned with
// items. It is Run with a reduce step that stores results by index.
func Map[T, R any](ctx context.Context, workers int, items []T, work WorkFunc[T, R]) ([]R, []error, error) {
	values := make([]R, len(items))
	errs := make([]error, len(items))
	err := Run(ctx, workers, items, work, func(res Result[T, R]) error {
		values[res.Index] = res.Value
		errs[res.Index] = res.Err
		return nil
	})
	return values, errs, err
}
