// Package observability wires error reporting. Metrics live in the metrics
// subpackage.
package observability

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/errors"
	"github.com/estoca-ai/estoca-worker/internal/logger"
)

const flushTimeout = 2 * time.Second

// SentryOption adjusts the client options before Init.
type SentryOption func(*sentry.ClientOptions)

// InitSentry initializes sentry and installs it as the errors reporter.
// With no DSN configured it does nothing and returns a no-op flush.
func InitSentry(settings conf.SentrySettings, release string, log logger.Logger, opts ...SentryOption) (func(), error) {
	if settings.DSN == "" {
		log.Debug("sentry disabled, no DSN configured")
		return func() {}, nil
	}

	options := sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
		Release:     "estoca-worker@" + release,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if err := sentry.Init(options); err != nil {
		return func() {}, errors.New(err).
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetReporter(captureEnhanced)
	log.Info("sentry error reporting enabled", logger.String("environment", settings.Environment))

	return func() {
		errors.SetReporter(nil)
		sentry.Flush(flushTimeout)
	}, nil
}

func captureEnhanced(ee *errors.EnhancedError) {
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.GetCategory()))
		if ctx := ee.GetContext(); len(ctx) > 0 {
			scope.SetContext("error", sentry.Context(ctx))
		}
		hub.CaptureException(ee)
	})
}
