package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ResultsInInputOrder(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}

	results := Run(context.Background(), items, 3, func(_ context.Context, n int) (string, error) {
		return fmt.Sprintf("item-%d", n), nil
	})

	require.Len(t, results, len(items))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("item-%d", i), r.Value)
	}
}

// One failing item never aborts the others.
func TestRun_PartialFailure(t *testing.T) {
	boom := errors.New("boom")

	results := Run(context.Background(), []int{1, 2, 3}, 2, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n * 10, nil
	})

	assert.NoError(t, results[0].Err)
	assert.Equal(t, 10, results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 30, results[2].Value)
}

func TestRun_ConcurrencyBounded(t *testing.T) {
	const limit = 3

	var current, peak atomic.Int32
	var mu sync.Mutex

	Run(context.Background(), make([]struct{}, 20), limit, func(_ context.Context, _ struct{}) (struct{}, error) {
		n := current.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		current.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestRun_ZeroLimitUsesDefault(t *testing.T) {
	results := Run(context.Background(), []int{1, 2}, 0, func(_ context.Context, n int) (int, error) {
		return n, nil
	})

	require.Len(t, results, 2)
	assert.Equal(t, 2, results[1].Value)
}

func TestRun_EmptyInput(t *testing.T) {
	results := Run(context.Background(), nil, 5, func(_ context.Context, n int) (int, error) {
		return n, nil
	})

	assert.Empty(t, results)
}
