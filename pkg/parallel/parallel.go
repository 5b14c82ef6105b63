// Package parallel provides a bounded, order-preserving concurrent mapper.
package parallel

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item with at most limit invocations in flight.
// Results are returned in input order regardless of completion order. The
// first error cancels the shared context, remaining workers stop claiming
// new items, and that error is returned.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T, index int) (R, error)) ([]R, error) {
	if limit < 1 {
		return nil, fmt.Errorf("parallel: limit must be at least 1, got %d", limit)
	}

	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	workers := limit
	if len(items) < workers {
		workers = len(items)
	}

	var cursor atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				index := int(cursor.Add(1)) - 1
				if index >= len(items) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				out, err := fn(ctx, items[index], index)
				if err != nil {
					return err
				}
				results[index] = out
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
