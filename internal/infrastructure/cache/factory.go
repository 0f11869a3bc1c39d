package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/cashflow/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds the activation bus and lease store from configuration,
// sharing one Redis client between them.
type Factory struct {
	cfg                   config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	origin                string
	client                *redis.Client
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory implementations when Redis is unavailable.
// Default is true (allow fallback).
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// WithInstanceID tags activations published by this process
func WithInstanceID(id string) FactoryOption {
	return func(f *Factory) {
		f.origin = id
	}
}

// NewFactory creates a new factory. Call Connect before building components.
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		cfg:                   cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect opens and pings the Redis client when Redis is enabled.
// When Redis is disabled, or unreachable with fallback allowed, components run in memory.
func (f *Factory) Connect(ctx context.Context) error {
	if !f.cfg.Enabled {
		f.logger.Info("Redis disabled, model activations stay in-process")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port),
		Password: f.cfg.Password,
		DB:       f.cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if !f.allowInMemoryFallback {
			return fmt.Errorf("Redis required but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory activation bus. "+
			"Peer replicas will not reload activated models until restart.",
			zap.Error(err))
		return nil
	}

	f.client = client
	f.logger.Info("Connected to Redis",
		zap.String("addr", client.Options().Addr),
		zap.Int("db", f.cfg.DB))
	return nil
}

// Redis reports whether components are backed by Redis
func (f *Factory) Redis() bool {
	return f.client != nil
}

// ActivationBus returns a Redis bus when connected, an in-process bus otherwise
func (f *Factory) ActivationBus() ActivationBus {
	if f.client == nil {
		return NewInMemoryActivationBus(f.origin)
	}
	return NewRedisActivationBusWithClient(f.client,
		WithChannel(f.cfg.Channel),
		WithOrigin(f.origin),
		WithBusLogger(f.logger))
}

// LeaseStore returns a Redis lease store when connected, an in-memory one otherwise
func (f *Factory) LeaseStore() LeaseStore {
	if f.client == nil {
		return NewInMemoryLeaseStore()
	}
	return NewRedisLeaseStoreWithClient(f.client, "")
}

// Ping checks Redis health; it is nil when Redis is not in use
func (f *Factory) Ping(ctx context.Context) error {
	if f.client == nil {
		return nil
	}
	return f.client.Ping(ctx).Err()
}

// Close closes the shared client
func (f *Factory) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}
