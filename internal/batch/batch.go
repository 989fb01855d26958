// Package batch runs independent operations with bounded parallelism,
// capturing each outcome separately so one failure never aborts the
// rest.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the fan-out ceiling used by the batch tools.
const DefaultConcurrency = 5

// Result is the outcome of one item, in input order.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Run applies fn to every item with at most limit goroutines in
// flight. Results are returned in input order; errors are captured per
// item, never propagated as a group failure.
func Run[In, Out any](ctx context.Context, items []In, limit int, fn func(context.Context, In) (Out, error)) []Result[Out] {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	results := make([]Result[Out], len(items))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, item := range items {
		g.Go(func() error {
			value, err := fn(ctx, item)
			results[i] = Result[Out]{Index: i, Value: value, Err: err}

			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()

	return results
}
