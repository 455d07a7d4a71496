package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/stride/internal/retrier"
)

const scanBatch = 100

// RedisConfig configures the Redis medium.
type RedisConfig struct {
	// Prefix namespaces every key.
	Prefix         string
	CircuitBreaker gobreaker.Settings
	Retrier        *retrier.Retrier
}

// Redis stores keys in Redis without expiry. Calls go through a circuit
// breaker and a retrier.
type Redis struct {
	client  redis.Cmdable
	prefix  string
	breaker *gobreaker.CircuitBreaker
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// NewRedis wraps client.
func NewRedis(client redis.Cmdable, cfg RedisConfig, logger *zap.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := cfg.Retrier
	if r == nil {
		var err error
		r, err = retrier.NewRetrier(3, 50*time.Millisecond, 500*time.Millisecond, 2, 0.1, retrier.ExponentialBackoff, isTransient)
		if err != nil {
			return nil, fmt.Errorf("failed to create retrier: %w", err)
		}
	}
	settings := cfg.CircuitBreaker
	if settings.Name == "" {
		settings.Name = "RedisMedium"
	}
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}
	}
	return &Redis{
		client:  client,
		prefix:  cfg.Prefix,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retrier: r,
		logger:  logger,
	}, nil
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

func (r *Redis) executeWithResilience(ctx context.Context, f func() error) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.retrier.Run(ctx, f)
	})
	return err
}

// Read implements Medium.
func (r *Redis) Read(ctx context.Context, key string) (string, bool, error) {
	var value string
	found := true
	err := r.executeWithResilience(ctx, func() error {
		v, err := r.client.Get(ctx, r.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		value = v
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return value, found, nil
}

// Write implements Medium.
func (r *Redis) Write(ctx context.Context, key, value string) error {
	if err := r.executeWithResilience(ctx, func() error {
		return r.client.Set(ctx, r.key(key), value, 0).Err()
	}); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements Medium.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.executeWithResilience(ctx, func() error {
		return r.client.Del(ctx, r.key(key)).Err()
	}); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Keys implements Scanner by scanning the prefix namespace.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.executeWithResilience(ctx, func() error {
		keys = keys[:0]
		iter := r.client.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
		}
		return iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}

// Close closes the client when it owns a connection pool.
func (r *Redis) Close() error {
	if closer, ok := r.client.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close redis connection: %w", err)
		}
	}
	return nil
}

func isTransient(err error) bool {
	if retrier.IsTemporary(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
