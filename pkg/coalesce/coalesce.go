// Package coalesce collapses concurrent fetches of the same key into a single
// call.
package coalesce

import (
	"context"
	"strings"

	"github.com/raterudder/esplus/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Group deduplicates in-flight calls per key. Results are never cached: once
// the leading call returns, the next call for the key starts a fresh fetch.
// The zero value is ready to use.
type Group[T any] struct {
	g singleflight.Group
}

// Do calls fn unless a call for key is already in flight, in which case it
// waits for and returns that call's result. A caller whose ctx ends stops
// waiting and returns ctx.Err(); the in-flight call keeps running for the
// remaining callers.
//
// fn runs with a context that carries the values of the first caller's ctx
// but not its cancellation, so it must be bounded by its own timeout (the
// portal client's).
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := g.g.DoChan(key, func() (interface{}, error) {
		return fn(fetchCtx)
	})

	select {
	case res := <-ch:
		metrics.ObserveCoalesced(kind(key), res.Shared)
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Forget drops the in-flight call for key so the next Do fetches again
// without waiting for it.
func (g *Group[T]) Forget(key string) {
	g.g.Forget(key)
}

// kind returns the part of the key after the last slash.
func kind(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}
