// Package classifier provides semantic risk judgment of transaction
// descriptions. The signal is advisory: when the backing model is slow,
// down, or misconfigured, scoring proceeds without it.
package classifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// None is the disabled classifier. It returns no signal for every
// description and is the Community tier default.
type None struct{}

// Classify implements domain.SemanticClassifier.
func (None) Classify(ctx context.Context, description string) (domain.Signal, error) {
	return domain.SignalNone, nil
}

// BestEffort wraps a classifier with a timeout and absorbs its failures.
type BestEffort struct {
	inner   domain.SemanticClassifier
	timeout time.Duration
	logger  *slog.Logger
}

// NewBestEffort wraps inner. A zero timeout defaults to two seconds.
func NewBestEffort(inner domain.SemanticClassifier, timeout time.Duration, logger *slog.Logger) *BestEffort {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffort{inner: inner, timeout: timeout, logger: logger}
}

// Judge classifies a description within the configured budget.
// The second return value is false when no signal was available, whether
// from an empty description, a timeout, or a classifier error.
func (b *BestEffort) Judge(ctx context.Context, description string) (domain.Signal, bool) {
	if description == "" || b.inner == nil {
		return domain.SignalNone, false
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	sig, err := b.classify(ctx, description)
	if err != nil {
		b.logger.Debug("classifier unavailable", "error", err)
		return domain.SignalNone, false
	}
	return sig, true
}

// classify shields the pipeline from a panicking implementation.
func (b *BestEffort) classify(ctx context.Context, description string) (sig domain.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = domain.SignalNone
			err = &panicError{value: r}
		}
	}()
	return b.inner.Classify(ctx, description)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return "classifier panic"
}
