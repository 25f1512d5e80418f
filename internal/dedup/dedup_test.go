package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMarkIfNew(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	fresh, err := s.MarkIfNew(ctx, "a")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.MarkIfNew(ctx, "a")
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = s.MarkIfNew(ctx, "b")
	require.NoError(t, err)
	assert.True(t, fresh)
}

// Exactly one of many concurrent markers of the same slug may win.
func TestMemoryStoreConcurrentMark(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	var wins atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := s.MarkIfNew(context.Background(), "contested")
			require.NoError(t, err)
			if fresh {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
}
