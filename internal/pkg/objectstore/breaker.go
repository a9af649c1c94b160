package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sony/gobreaker"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

// BreakerConfig tunes the circuit breaker in front of a remote store.
type BreakerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MaxFailures uint32 `mapstructure:"max_failures"`
	IntervalSec int    `mapstructure:"interval_sec"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
}

// BreakerClient fails fast with apperror.ErrBackendUnavailable once the wrapped store
// keeps failing. Missing keys and cancelled requests do not count as failures.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps next with a circuit breaker named name.
func NewBreakerClient(name string, next Client, cfg BreakerConfig) *BreakerClient {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Duration(cfg.IntervalSec) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[ObjectStore] Circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, apperror.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	}
	return &BreakerClient{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// State exposes the breaker state for health reporting.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}

func (b *BreakerClient) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Put(ctx, key, data, contentType)
	})
	return mapBreakerError(err)
}

func (b *BreakerClient) Get(ctx context.Context, key string) ([]byte, string, error) {
	var contentType string
	res, err := b.cb.Execute(func() (interface{}, error) {
		data, ct, err := b.next.Get(ctx, key)
		contentType = ct
		return data, err
	})
	if err != nil {
		return nil, "", mapBreakerError(err)
	}
	return res.([]byte), contentType, nil
}

func (b *BreakerClient) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.ListByPrefix(ctx, prefix)
	})
	if err != nil {
		return nil, mapBreakerError(err)
	}
	return res.([]string), nil
}

func (b *BreakerClient) DeleteMany(ctx context.Context, keys []string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.DeleteMany(ctx, keys)
	})
	return mapBreakerError(err)
}

func (b *BreakerClient) URL(key string) string {
	return b.next.URL(key)
}

// Ping bypasses the breaker so the health monitor sees the real store state.
func (b *BreakerClient) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

func mapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", apperror.ErrBackendUnavailable, err)
	}
	return err
}
