package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memoryLeases grants each key once
type memoryLeases struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (m *memoryLeases) TryAcquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) CheckTrainable(ctx context.Context, purpose forecast.Purpose) error {
	return m.Called(ctx, purpose).Error(0)
}

// idleScheduler accepts submissions without running them
func idleScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler(DefaultSchedulerConfig(), new(mockTrainer), zaptest.NewLogger(t))
	s.isRunning = true
	return s
}

func TestRetrainTrigger_TickQueuesEveryPurpose(t *testing.T) {
	s := idleScheduler(t)
	trigger := NewRetrainTrigger(RetrainTriggerConfig{Interval: 24 * time.Hour}, s, &memoryLeases{}, nil, zaptest.NewLogger(t))

	jobs := trigger.Tick(context.Background())
	require.Len(t, jobs, 2)
	assert.Equal(t, forecast.PurposePaymentPredictor, jobs[0].Purpose)
	assert.Equal(t, forecast.PurposeCashflowForecaster, jobs[1].Purpose)
	for _, j := range jobs {
		assert.Equal(t, TriggerSchedule, j.Trigger)
	}
}

func TestRetrainTrigger_LeaseOncePerSlot(t *testing.T) {
	leases := &memoryLeases{}
	at := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	replicaA := NewRetrainTrigger(RetrainTriggerConfig{Interval: 24 * time.Hour}, idleScheduler(t), leases, nil, zaptest.NewLogger(t))
	replicaB := NewRetrainTrigger(RetrainTriggerConfig{Interval: 24 * time.Hour}, idleScheduler(t), leases, nil, zaptest.NewLogger(t))
	replicaA.now = func() time.Time { return at }
	replicaB.now = func() time.Time { return at.Add(3 * time.Hour) }

	assert.Len(t, replicaA.Tick(context.Background()), 2)
	assert.Empty(t, replicaB.Tick(context.Background()), "same slot is already claimed")

	replicaB.now = func() time.Time { return at.Add(24 * time.Hour) }
	assert.Len(t, replicaB.Tick(context.Background()), 2, "next slot is free")
	assert.Contains(t, leases.keys, "retrain:payment_predictor:1709251200")
}

func TestRetrainTrigger_SkipsUntrainablePurpose(t *testing.T) {
	checker := new(mockChecker)
	checker.On("CheckTrainable", mock.Anything, forecast.PurposePaymentPredictor).
		Return(forecast.NewInsufficientDataError(3, 50))
	checker.On("CheckTrainable", mock.Anything, forecast.PurposeCashflowForecaster).Return(nil)

	trigger := NewRetrainTrigger(RetrainTriggerConfig{Interval: time.Hour}, idleScheduler(t), &memoryLeases{}, checker, zaptest.NewLogger(t))

	jobs := trigger.Tick(context.Background())
	require.Len(t, jobs, 1)
	assert.Equal(t, forecast.PurposeCashflowForecaster, jobs[0].Purpose)
	checker.AssertExpectations(t)
}

func TestRetrainTrigger_LeaseErrorSkips(t *testing.T) {
	trigger := NewRetrainTrigger(RetrainTriggerConfig{Interval: time.Hour}, idleScheduler(t),
		&memoryLeases{err: errors.New("redis down")}, nil, zaptest.NewLogger(t))
	assert.Empty(t, trigger.Tick(context.Background()))
}

func TestRetrainTrigger_DisabledStart(t *testing.T) {
	trigger := NewRetrainTrigger(RetrainTriggerConfig{}, idleScheduler(t), &memoryLeases{}, nil, zaptest.NewLogger(t))
	require.NoError(t, trigger.Start(context.Background()))
	assert.False(t, trigger.isRunning)
	require.NoError(t, trigger.Stop(context.Background()))
}

func TestRetrainTrigger_StartStop(t *testing.T) {
	leases := &memoryLeases{}
	s := idleScheduler(t)
	trigger := NewRetrainTrigger(RetrainTriggerConfig{
		Interval: 10 * time.Millisecond,
		Purposes: []forecast.Purpose{forecast.PurposeCashflowForecaster},
	}, s, leases, nil, zaptest.NewLogger(t))

	require.NoError(t, trigger.Start(context.Background()))
	require.Eventually(t, func() bool { return len(s.List()) > 0 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(ctx))
}
