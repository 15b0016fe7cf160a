package fn

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParFilter evaluates keep for each item with bounded concurrency and returns
// the kept items in input order. The first error cancels the remaining work.
func ParFilter[T any](ctx context.Context, items []T, workers int, keep func(context.Context, T) (bool, error)) ([]T, error) {
	flags := make([]bool, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, v := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := keep(gctx, v)
			if err != nil {
				return err
			}
			flags[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []T
	for i, v := range items {
		if flags[i] {
			out = append(out, v)
		}
	}
	return out, nil
}

// FanOut runs fns concurrently and returns their results in order, or the
// first error.
func FanOut[T any](ctx context.Context, fns ...func(context.Context) (T, error)) ([]T, error) {
	out := make([]T, len(fns))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fns {
		g.Go(func() error {
			v, err := f(gctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
