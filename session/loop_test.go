package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	loop := NewLoop(8)
	go loop.Run()
	defer loop.Stop()

	var got []int
	for i := range 5 {
		require.True(t, loop.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, loop.Do(context.Background(), func() { got = append(got, 99) }))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 99}, got)
}

func TestLoopStop(t *testing.T) {
	loop := NewLoop(1)
	go loop.Run()

	loop.Stop()
	loop.Stop()
	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrLoopStopped)
}

func TestLoopDoHonoursContext(t *testing.T) {
	loop := NewLoop(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, loop.Do(ctx, func() {}), context.Canceled)
}
