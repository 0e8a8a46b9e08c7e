package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/gupta2140/sensenet/internal/models"
)

// RetryConfig configures retry behavior for transient sink errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetrySink wraps a DocumentSink with automatic retry on transient errors.
// Safe because every sink operation is idempotent.
type RetrySink struct {
	inner  DocumentSink
	config *RetryConfig
}

// NewRetrySink creates a RetrySink that wraps the given sink.
func NewRetrySink(inner DocumentSink, cfg *RetryConfig) *RetrySink {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetrySink{inner: inner, config: cfg}
}

// isTransient returns true for errors that are worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true // network and backend errors are transient
}

// backoff computes the delay for the given attempt with jitter.
func (rs *RetrySink) backoff(attempt int) time.Duration {
	base := float64(rs.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rs.config.MaxBackoff) {
		base = float64(rs.config.MaxBackoff)
	}
	jitter := base * rs.config.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn with retry logic. Only retries transient errors.
func (rs *RetrySink) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rs.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt < rs.config.MaxRetries {
			d := rs.backoff(attempt)
			if err := sleep(ctx, d); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, rs.config.MaxRetries)
}

func (rs *RetrySink) Put(ctx context.Context, doc *models.IndexDocument) error {
	return rs.retry(ctx, "put index document", func() error {
		return rs.inner.Put(ctx, doc)
	})
}

func (rs *RetrySink) Delete(ctx context.Context, versionID int64) error {
	return rs.retry(ctx, "delete index document", func() error {
		return rs.inner.Delete(ctx, versionID)
	})
}

func (rs *RetrySink) DeleteTree(ctx context.Context, pathPrefix string) error {
	return rs.retry(ctx, "delete index tree", func() error {
		return rs.inner.DeleteTree(ctx, pathPrefix)
	})
}

func (rs *RetrySink) Count(ctx context.Context) (count int, err error) {
	err = rs.retry(ctx, "count index documents", func() error {
		count, err = rs.inner.Count(ctx)
		return err
	})
	return
}
