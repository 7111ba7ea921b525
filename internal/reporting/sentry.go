// Package reporting sends unexpected errors to Sentry. Without a DSN every
// report is only logged.
package reporting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 5 * time.Second

// Init configures the global Sentry client and returns a flush function to
// defer in main. An empty dsn leaves Sentry disabled.
func Init(dsn, environment string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return nil, err
	}
	return func() { sentry.Flush(flushTimeout) }, nil
}

func Report(ctx context.Context, err error, extras ...map[string]string) {
	if err == nil {
		err = errors.New("no error provided")
	}
	slog.ErrorContext(ctx, "reporting error", "error", err, "extras", extras)

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for _, extra := range extras {
			for key, value := range extra {
				scope.SetExtra(key, value)
			}
		}
		if userID := userIDFromExtras(extras); userID != "" {
			scope.SetUser(sentry.User{ID: userID})
		}
		hub.CaptureException(err)
	})
}

func userIDFromExtras(extras []map[string]string) string {
	for _, extra := range extras {
		if id, ok := extra["user_id"]; ok {
			return id
		}
	}
	return ""
}
