package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCloseTimeout = 5 * time.Second

var _ ActivationBus = (*RedisActivationBus)(nil)

// RedisActivationBus broadcasts model activations over Redis Pub/Sub
type RedisActivationBus struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	origin     string
	logger     *zap.Logger
	cancelFn   context.CancelFunc
	doneCh     chan struct{}
	doneOnce   sync.Once
	mu         sync.Mutex
	isRunning  bool
}

// RedisActivationBusOption is a functional option for configuring the bus
type RedisActivationBusOption func(*RedisActivationBus)

// WithChannel sets the Pub/Sub channel name
func WithChannel(channel string) RedisActivationBusOption {
	return func(b *RedisActivationBus) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithOrigin tags published messages with the sending instance
func WithOrigin(origin string) RedisActivationBusOption {
	return func(b *RedisActivationBus) {
		b.origin = origin
	}
}

// WithBusLogger sets the logger for the bus
func WithBusLogger(logger *zap.Logger) RedisActivationBusOption {
	return func(b *RedisActivationBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewRedisActivationBusWithClient creates a bus on an existing client.
// The caller retains ownership of the client and is responsible for closing it.
func NewRedisActivationBusWithClient(client *redis.Client, opts ...RedisActivationBusOption) *RedisActivationBus {
	b := &RedisActivationBus{
		client:  client,
		channel: DefaultActivationChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PublishActivation announces a new active model to every subscriber
func (b *RedisActivationBus) PublishActivation(ctx context.Context, purpose forecast.Purpose, modelID uuid.UUID) error {
	msg := ActivationMessage{
		Purpose:   purpose,
		ModelID:   modelID,
		Origin:    b.origin,
		Timestamp: time.Now().UnixNano(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal activation: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish activation",
			zap.String("channel", b.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish activation: %w", err)
	}

	b.logger.Debug("Published activation",
		zap.String("purpose", string(purpose)),
		zap.String("model_id", modelID.String()),
		zap.String("channel", b.channel))
	return nil
}

// Subscribe listens for activations and invokes handler for each one.
// It blocks, so call it in a goroutine.
func (b *RedisActivationBus) Subscribe(ctx context.Context, handler ActivationHandler) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	b.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelFn = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.markDone()
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	b.logger.Info("Subscribed to model activation channel", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("Model activation subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Model activation channel closed")
				return nil
			}

			var activation ActivationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &activation); err != nil {
				b.logger.Error("Failed to unmarshal activation",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}

			go func(m ActivationMessage) {
				defer func() {
					if r := recover(); r != nil {
						b.logger.Error("Panic in activation handler", zap.Any("panic", r))
					}
				}()
				handler(subCtx, m)
			}(activation)
		}
	}
}

func (b *RedisActivationBus) markDone() {
	b.doneOnce.Do(func() {
		close(b.doneCh)
	})
}

// Close stops a running subscription
func (b *RedisActivationBus) Close() error {
	b.mu.Lock()
	cancelFn := b.cancelFn
	b.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-b.doneCh:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("Timeout waiting for activation subscription to stop")
		}
	}

	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}
