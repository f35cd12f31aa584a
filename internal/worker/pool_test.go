package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsAllJobs(t *testing.T) {
	t.Parallel()

	p := NewPool(4, 8)
	var (
		n  atomic.Int64
		wg sync.WaitGroup
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(t.Context(), func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	p.Stop()

	assert.Equal(t, int64(100), n.Load())
}

func TestPool_SubmitAfterStop(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 1)
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(t.Context(), func() {}), ErrStopped)
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 1)
	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(t.Context(), func() { close(started); <-block }))
	<-started
	require.NoError(t, p.Submit(t.Context(), func() {}))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, p.Submit(ctx, func() {}), context.Canceled)

	close(block)
	p.Stop()
}
