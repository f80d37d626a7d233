package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"saged/internal/logging"
)

// =============================================================================
// CIRCUIT BREAKER
// =============================================================================

// BreakerConfig tunes the circuit breaker guarding an embedding backend.
type BreakerConfig struct {
	MaxRequests  uint32        // Probes allowed while half-open
	Interval     time.Duration // Counter reset interval while closed
	Timeout      time.Duration // Open -> half-open delay
	FailureRatio float64       // Trip once this ratio of requests fail
	MinRequests  uint32        // Samples required before the ratio is evaluated
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// BreakerEngine wraps an Engine with a circuit breaker. Once the backend
// trips, calls fail immediately with gobreaker.ErrOpenState until the open
// timeout elapses and a probe succeeds.
type BreakerEngine struct {
	inner Engine
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerEngine guards inner with a circuit breaker.
func NewBreakerEngine(inner Engine, cfg BreakerConfig) *BreakerEngine {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = DefaultBreakerConfig().FailureRatio
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.EmbeddingWarn("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// A canceled call says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerEngine{inner: inner, cb: cb}
}

// Embed generates an embedding for a single text.
func (b *BreakerEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (b *BreakerEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return out.([][]float32), nil
}

// Dimensions returns the dimensionality of the wrapped engine.
func (b *BreakerEngine) Dimensions() int {
	return b.inner.Dimensions()
}

// Name returns the wrapped engine name.
func (b *BreakerEngine) Name() string {
	return b.inner.Name()
}

// State reports the current breaker state.
func (b *BreakerEngine) State() gobreaker.State {
	return b.cb.State()
}

// HealthCheck consults the wrapped engine when it supports health checks,
// otherwise it reports breaker state.
func (b *BreakerEngine) HealthCheck(ctx context.Context) error {
	if hc, ok := b.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("embedding circuit %q is open", b.inner.Name())
	}
	return nil
}
