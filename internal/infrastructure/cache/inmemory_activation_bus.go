package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/google/uuid"
)

var _ ActivationBus = (*InMemoryActivationBus)(nil)

// InMemoryActivationBus delivers activations to subscribers in the same process.
// It is suitable for single-instance deployments and testing.
type InMemoryActivationBus struct {
	mu        sync.RWMutex
	origin    string
	subs      map[int]chan ActivationMessage
	nextID    int
	closed    bool
	closeOnce sync.Once
	stopCh    chan struct{}
}

// NewInMemoryActivationBus creates a new in-process bus
func NewInMemoryActivationBus(origin string) *InMemoryActivationBus {
	return &InMemoryActivationBus{
		origin: origin,
		subs:   make(map[int]chan ActivationMessage),
		stopCh: make(chan struct{}),
	}
}

// PublishActivation hands the message to every current subscriber.
// Slow subscribers drop messages rather than block the publisher.
func (b *InMemoryActivationBus) PublishActivation(_ context.Context, purpose forecast.Purpose, modelID uuid.UUID) error {
	msg := ActivationMessage{
		Purpose:   purpose,
		ModelID:   modelID,
		Origin:    b.origin,
		Timestamp: time.Now().UnixNano(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe blocks delivering messages to handler until ctx is done or the bus closes
func (b *InMemoryActivationBus) Subscribe(ctx context.Context, handler ActivationHandler) error {
	ch := make(chan ActivationMessage, 16)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case msg := <-ch:
			handler(ctx, msg)
		}
	}
}

// Subscribers returns the number of active subscriptions
func (b *InMemoryActivationBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops every subscription. Safe to call multiple times.
func (b *InMemoryActivationBus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stopCh)
	})
	return nil
}
