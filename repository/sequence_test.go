package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySequenceIsPerKeyAndConcurrent(t *testing.T) {
	seq := NewMemorySequence()
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx, "CUST20240601")
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)

	n, err := seq.Next(ctx, "LEAD20240601")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "each key counts independently")
}
