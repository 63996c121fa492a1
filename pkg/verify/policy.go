// Package verify holds the regression probes run inside a session and the
// retry policy that wraps the flaky ones.
package verify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/devicelab-dev/appium-compat/pkg/logger"
)

// RetryPolicy bounds how often a probe re-attempts a flaky remote call.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// DefaultScreenshotPolicy: screenshots on physical iOS devices fail
// intermittently while the backend is still settling.
var DefaultScreenshotPolicy = RetryPolicy{MaxAttempts: 10, Backoff: 8 * time.Second}

// NoRetry runs the operation exactly once.
var NoRetry = RetryPolicy{MaxAttempts: 1}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs op until it succeeds, returns a permanent error, or the attempt
// budget is spent, sleeping Backoff between failed attempts. Each failure is
// logged. The error of the last attempt is returned.
func (p RetryPolicy) Do(ctx context.Context, name string, op func() error) error {
	max := p.attempts()
	attempt := 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			logger.Info("try to %s again (attempt %d/%d)", name, attempt, max)
		}
		return struct{}{}, op()
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Backoff)),
		backoff.WithMaxTries(uint(max)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("%s failed (attempt %d/%d), retrying in %v: %v", name, attempt, max, next, err)
		}),
	)
	return err
}

// Permanent marks err so Do stops retrying immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
