// Package report sends errors that need human attention to Sentry.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Sentry reports errors to Sentry. The zero value and a nil *Sentry are no-ops,
// which is what the bot uses when no DSN is configured.
type Sentry struct {
	enabled bool
}

func NewSentry(dsn, release, environment string) (*Sentry, error) {
	if dsn == "" {
		return &Sentry{}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Release:     release,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing sentry: %w", err)
	}

	return &Sentry{enabled: true}, nil
}

// Report captures err with the given tags attached.
func (s *Sentry) Report(ctx context.Context, err error, tags map[string]string) {
	if s == nil || !s.enabled || err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be delivered.
func (s *Sentry) Flush() {
	if s == nil || !s.enabled {
		return
	}
	sentry.Flush(flushTimeout)
}
