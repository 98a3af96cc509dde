package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	n int
}

func TestDo(t *testing.T) {
	t.Run("Concurrent Calls Share One Fetch", func(t *testing.T) {
		var g Group[*result]
		var calls atomic.Int32
		release := make(chan struct{})
		fn := func(ctx context.Context) (*result, error) {
			calls.Add(1)
			<-release
			return &result{n: 42}, nil
		}

		const k = 8
		results := make([]*result, k)
		var started, done sync.WaitGroup
		for i := 0; i < k; i++ {
			started.Add(1)
			done.Add(1)
			go func(i int) {
				defer done.Done()
				started.Done()
				r, err := g.Do(context.Background(), "acc1/meters", fn)
				assert.NoError(t, err)
				results[i] = r
			}(i)
		}
		started.Wait()
		// give every goroutine time to join the in-flight call
		time.Sleep(100 * time.Millisecond)
		close(release)
		done.Wait()

		assert.EqualValues(t, 1, calls.Load())
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
	})

	t.Run("Keys Are Independent", func(t *testing.T) {
		var g Group[int]
		a, err := g.Do(context.Background(), "acc1/meters", func(ctx context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
		b, err := g.Do(context.Background(), "acc2/meters", func(ctx context.Context) (int, error) { return 2, nil })
		require.NoError(t, err)
		assert.Equal(t, 1, a)
		assert.Equal(t, 2, b)
	})

	t.Run("No Caching", func(t *testing.T) {
		var g Group[int]
		var calls int
		fn := func(ctx context.Context) (int, error) {
			calls++
			return calls, nil
		}
		first, err := g.Do(context.Background(), "k", fn)
		require.NoError(t, err)
		second, err := g.Do(context.Background(), "k", fn)
		require.NoError(t, err)
		assert.Equal(t, 1, first)
		assert.Equal(t, 2, second)
	})

	t.Run("Error Releases Slot", func(t *testing.T) {
		var g Group[int]
		boom := errors.New("boom")
		_, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
			return 0, boom
		})
		assert.ErrorIs(t, err, boom)

		v, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("Cancelled Leader Does Not Cancel Shared Fetch", func(t *testing.T) {
		var g Group[int]
		ctx, cancel := context.WithCancel(context.Background())
		fetching := make(chan struct{})
		release := make(chan struct{})
		var fetchErr error
		errc := make(chan error, 1)
		go func() {
			_, err := g.Do(ctx, "acc1/meters", func(ctx context.Context) (int, error) {
				close(fetching)
				<-release
				fetchErr = ctx.Err()
				return 5, nil
			})
			errc <- err
		}()
		<-fetching

		type outcome struct {
			v   int
			err error
		}
		waiter := make(chan outcome, 1)
		go func() {
			v, err := g.Do(context.Background(), "acc1/meters", func(ctx context.Context) (int, error) {
				t.Error("waiter must not fetch")
				return 0, nil
			})
			waiter <- outcome{v, err}
		}()
		// let the waiter join the in-flight call
		time.Sleep(50 * time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-errc, context.Canceled)

		close(release)
		got := <-waiter
		require.NoError(t, got.err)
		assert.Equal(t, 5, got.v)
		assert.NoError(t, fetchErr)

		// the slot is released once the fetch returns
		v, err := g.Do(context.Background(), "acc1/meters", func(ctx context.Context) (int, error) {
			return 6, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 6, v)
	})

	t.Run("Fetch Keeps Caller Values", func(t *testing.T) {
		type key struct{}
		var g Group[string]
		ctx := context.WithValue(context.Background(), key{}, "entry1")
		v, err := g.Do(ctx, "k", func(ctx context.Context) (string, error) {
			s, _ := ctx.Value(key{}).(string)
			return s, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "entry1", v)
	})

	t.Run("Waiter Stops On Own Context", func(t *testing.T) {
		var g Group[int]
		release := make(chan struct{})
		defer close(release)
		fetching := make(chan struct{})
		go func() {
			_, _ = g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
				close(fetching)
				<-release
				return 1, nil
			})
		}()
		<-fetching

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := g.Do(ctx, "k", func(ctx context.Context) (int, error) {
			t.Error("waiter must not fetch")
			return 0, nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestKind(t *testing.T) {
	assert.Equal(t, "meters", kind("acc1/meters"))
	assert.Equal(t, "characteristics", kind("characteristics"))
}
