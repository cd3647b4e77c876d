package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFixedWindowRejectsInvalidParams(t *testing.T) {
	_, err := NewFixedWindow(0, time.Second)
	assert.Error(t, err)
	_, err = NewFixedWindow(-1, time.Second)
	assert.Error(t, err)
	_, err = NewFixedWindow(5, 0)
	assert.Error(t, err)
	_, err = NewFixedWindow(5, -time.Second)
	assert.Error(t, err)
}

func TestNilLimiterIsDisabled(t *testing.T) {
	var f *FixedWindow
	assert.NoError(t, f.Acquire(context.Background(), 100))
}

func TestAcquireRejectsOversizedRequest(t *testing.T) {
	f, err := NewFixedWindow(2, time.Second)
	require.NoError(t, err)
	assert.Error(t, f.Acquire(context.Background(), 3))
}

func TestAcquireWithinLimitIsImmediate(t *testing.T) {
	f, err := NewFixedWindow(3, time.Second)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.Acquire(context.Background(), 1))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

// Five sequential acquires against limit 2: the first two are immediate, the
// third and fourth land in the second window, the fifth in the third.
func TestAcquireWindowRollover(t *testing.T) {
	period := 200 * time.Millisecond
	f, err := NewFixedWindow(2, period)
	require.NoError(t, err)

	start := time.Now()
	var grants []time.Duration
	for i := 0; i < 5; i++ {
		require.NoError(t, f.Acquire(context.Background(), 1))
		grants = append(grants, time.Since(start))
	}

	assert.Less(t, grants[1], period/2)
	assert.GreaterOrEqual(t, grants[2], period)
	assert.Less(t, grants[3], 2*period)
	assert.GreaterOrEqual(t, grants[4], 2*period)
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	f, err := NewFixedWindow(1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = f.Acquire(ctx, 1)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
