package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForSubscribers(t *testing.T, bus *InMemoryActivationBus, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return bus.Subscribers() == n }, time.Second, 5*time.Millisecond)
}

func TestInMemoryActivationBus_DeliversToEverySubscriber(t *testing.T) {
	bus := NewInMemoryActivationBus("replica-a")
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ActivationMessage, 4)
	for range 2 {
		go func() {
			_ = bus.Subscribe(ctx, func(_ context.Context, msg ActivationMessage) {
				received <- msg
			})
		}()
	}
	waitForSubscribers(t, bus, 2)

	id := uuid.New()
	require.NoError(t, bus.PublishActivation(ctx, forecast.PurposePaymentPredictor, id))

	for range 2 {
		select {
		case msg := <-received:
			assert.Equal(t, forecast.PurposePaymentPredictor, msg.Purpose)
			assert.Equal(t, id, msg.ModelID)
			assert.Equal(t, "replica-a", msg.Origin)
			assert.NotZero(t, msg.Timestamp)
		case <-time.After(time.Second):
			t.Fatal("activation not delivered")
		}
	}
}

func TestInMemoryActivationBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewInMemoryActivationBus("")
	assert.NoError(t, bus.PublishActivation(context.Background(), forecast.PurposeCashflowForecaster, uuid.New()))
}

func TestInMemoryActivationBus_SubscribeStops(t *testing.T) {
	t.Run("on context cancel", func(t *testing.T) {
		bus := NewInMemoryActivationBus("")
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- bus.Subscribe(ctx, func(context.Context, ActivationMessage) {}) }()
		waitForSubscribers(t, bus, 1)

		cancel()
		select {
		case err := <-done:
			assert.True(t, errors.Is(err, context.Canceled))
		case <-time.After(time.Second):
			t.Fatal("subscription did not stop")
		}
		waitForSubscribers(t, bus, 0)
	})

	t.Run("on close", func(t *testing.T) {
		bus := NewInMemoryActivationBus("")
		done := make(chan error, 1)
		go func() { done <- bus.Subscribe(context.Background(), func(context.Context, ActivationMessage) {}) }()
		waitForSubscribers(t, bus, 1)

		require.NoError(t, bus.Close())
		require.NoError(t, bus.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("subscription did not stop")
		}

		assert.NoError(t, bus.Subscribe(context.Background(), func(context.Context, ActivationMessage) {}),
			"subscribing to a closed bus returns immediately")
	})
}
