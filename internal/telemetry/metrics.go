package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/autoshop"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Pipeline metrics
	RequestsRejectedTotal metric.Int64Counter
	PipelineDuration      metric.Float64Histogram

	// Credential metrics
	TokensIssuedTotal     metric.Int64Counter
	SessionRotationsTotal metric.Int64Counter
	RefreshReuseTotal     metric.Int64Counter
	SessionsRevokedTotal  metric.Int64Counter
	SessionsSweptTotal    metric.Int64Counter

	// Tenant metrics
	TenantResolutionsTotal metric.Int64Counter
	TenantCacheLookups     metric.Int64Counter

	// Rate limiter metrics
	RateLimitedTotal       metric.Int64Counter
	RateLimiterErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// RecordRejection counts a request rejected by the pipeline.
func (m *Metrics) RecordRejection(ctx context.Context, kind string) {
	m.RequestsRejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRevocation counts sessions revoked for reason.
func (m *Metrics) RecordRevocation(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.SessionsRevokedTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Pipeline metrics
	m.RequestsRejectedTotal, _ = meter.Int64Counter(
		"autoshop.pipeline.rejected.total",
		metric.WithDescription("Total number of requests rejected by the auth pipeline, by error kind"),
		metric.WithUnit("{request}"),
	)

	m.PipelineDuration, _ = meter.Float64Histogram(
		"autoshop.pipeline.duration",
		metric.WithDescription("Time spent authenticating, resolving and authorizing a request"),
		metric.WithUnit("ms"),
	)

	// Credential metrics
	m.TokensIssuedTotal, _ = meter.Int64Counter(
		"autoshop.tokens.issued.total",
		metric.WithDescription("Total number of tokens issued, by token type"),
		metric.WithUnit("{token}"),
	)

	m.SessionRotationsTotal, _ = meter.Int64Counter(
		"autoshop.sessions.rotations.total",
		metric.WithDescription("Total number of successful refresh token rotations"),
		metric.WithUnit("{rotation}"),
	)

	m.RefreshReuseTotal, _ = meter.Int64Counter(
		"autoshop.sessions.reuse_detected.total",
		metric.WithDescription("Total number of refresh token reuse detections"),
		metric.WithUnit("{event}"),
	)

	m.SessionsRevokedTotal, _ = meter.Int64Counter(
		"autoshop.sessions.revoked.total",
		metric.WithDescription("Total number of sessions revoked, by reason"),
		metric.WithUnit("{session}"),
	)

	m.SessionsSweptTotal, _ = meter.Int64Counter(
		"autoshop.sessions.swept.total",
		metric.WithDescription("Total number of expired sessions deleted by the sweeper"),
		metric.WithUnit("{session}"),
	)

	// Tenant metrics
	m.TenantResolutionsTotal, _ = meter.Int64Counter(
		"autoshop.tenants.resolutions.total",
		metric.WithDescription("Total number of tenant resolutions, by outcome"),
		metric.WithUnit("{resolution}"),
	)

	m.TenantCacheLookups, _ = meter.Int64Counter(
		"autoshop.tenants.cache.lookups.total",
		metric.WithDescription("Total number of tenant hint cache lookups, by result"),
		metric.WithUnit("{lookup}"),
	)

	// Rate limiter metrics
	m.RateLimitedTotal, _ = meter.Int64Counter(
		"autoshop.ratelimit.limited.total",
		metric.WithDescription("Total number of requests rejected by the rate limiter, by scope"),
		metric.WithUnit("{request}"),
	)

	m.RateLimiterErrorsTotal, _ = meter.Int64Counter(
		"autoshop.ratelimit.errors.total",
		metric.WithDescription("Total number of rate limiter backend errors (requests allowed)"),
		metric.WithUnit("{error}"),
	)

	return m
}
