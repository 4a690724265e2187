package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/etala/case-service/internal/config"
)

// Alerter surfaces failures that an operator must look at.
type Alerter interface {
	Alert(err error, tags map[string]string)
}

// NopAlerter drops alerts.
type NopAlerter struct{}

// Alert implements Alerter.
func (NopAlerter) Alert(error, map[string]string) {}

// SentryAlerter reports alerts to Sentry.
type SentryAlerter struct {
	hub *sentry.Hub
}

// NewSentryAlerter initialises the Sentry client when a DSN is configured.
// Without a DSN it returns NopAlerter.
func NewSentryAlerter(cfg config.SentryConfig, app config.AppConfig, logger *zap.Logger) Alerter {
	if cfg.DSN == "" {
		return NopAlerter{}
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		Environment:      app.Env,
		Release:          app.Version,
	}); err != nil {
		logger.Error("sentry init failed", zap.Error(err))
		return NopAlerter{}
	}
	logger.Info("sentry alerting enabled")
	return &SentryAlerter{hub: sentry.CurrentHub()}
}

// Alert implements Alerter.
func (a *SentryAlerter) Alert(err error, tags map[string]string) {
	if a == nil || err == nil {
		return
	}
	a.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		a.hub.CaptureException(err)
	})
}

// FlushAlerts waits for buffered alerts to be delivered.
func FlushAlerts(timeout time.Duration) {
	sentry.Flush(timeout)
}
