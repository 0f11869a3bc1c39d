package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a manually advanced time source
type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLeaseStore(t *testing.T) (*InMemoryLeaseStore, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)}
	s := NewInMemoryLeaseStore()
	s.now = c.Now
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

func TestInMemoryLeaseStore_TryAcquire(t *testing.T) {
	s, c := newTestLeaseStore(t)
	ctx := context.Background()

	ok, err := s.TryAcquire(ctx, "retrain:payment_predictor", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "free key is granted")

	ok, err = s.TryAcquire(ctx, "retrain:payment_predictor", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "held key is refused")

	ok, err = s.TryAcquire(ctx, "retrain:cashflow_forecaster", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	c.Advance(time.Hour)
	ok, err = s.TryAcquire(ctx, "retrain:payment_predictor", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken again")
}

func TestInMemoryLeaseStore_Held(t *testing.T) {
	s, c := newTestLeaseStore(t)
	ctx := context.Background()

	held, err := s.Held(ctx, "k")
	require.NoError(t, err)
	assert.False(t, held)

	_, _ = s.TryAcquire(ctx, "k", time.Minute)
	held, _ = s.Held(ctx, "k")
	assert.True(t, held)

	c.Advance(2 * time.Minute)
	held, _ = s.Held(ctx, "k")
	assert.False(t, held)
}

func TestInMemoryLeaseStore_Cleanup(t *testing.T) {
	s, c := newTestLeaseStore(t)
	ctx := context.Background()

	_, _ = s.TryAcquire(ctx, "short-1", time.Second)
	_, _ = s.TryAcquire(ctx, "short-2", time.Second)
	_, _ = s.TryAcquire(ctx, "long", time.Hour)
	assert.Equal(t, 3, s.Size())

	c.Advance(time.Minute)
	s.cleanup()

	assert.Equal(t, 1, s.Size())
	held, _ := s.Held(ctx, "long")
	assert.True(t, held)
}

func TestInMemoryLeaseStore_ConcurrentAcquire(t *testing.T) {
	s, _ := newTestLeaseStore(t)
	ctx := context.Background()
	const n = 100

	results := make(chan bool, n)
	for range n {
		go func() {
			ok, err := s.TryAcquire(ctx, "contended", time.Hour)
			results <- err == nil && ok
		}()
	}

	granted := 0
	for range n {
		if <-results {
			granted++
		}
	}
	assert.Equal(t, 1, granted, "exactly one caller wins the lease")
}

func TestInMemoryLeaseStore_Close(t *testing.T) {
	s := NewInMemoryLeaseStore()
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
