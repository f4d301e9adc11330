package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/leafwatch/leafwatch/internal/conf"
	"github.com/leafwatch/leafwatch/internal/errors"
)

const sentryFlushTimeout = 2 * time.Second

// InitSentry configures the Sentry client and installs it as the error
// reporter. It is a no-op when no DSN is configured. The returned func
// flushes buffered events and should be deferred by the caller.
func InitSentry(settings conf.SentrySettings, release string) (func(), error) {
	if settings.DSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
		Release:     release,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetReporter(captureEnhanced)
	return func() {
		errors.SetReporter(nil)
		sentry.Flush(sentryFlushTimeout)
	}, nil
}

// captureEnhanced forwards an enhanced error to Sentry with its component,
// category and context attached.
func captureEnhanced(ee *errors.EnhancedError) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component())
		scope.SetTag("category", string(ee.Category()))
		if ctx := ee.Context(); len(ctx) > 0 {
			scope.SetContext("error", sentry.Context(ctx))
		}
		sentry.CaptureException(ee)
	})
}
