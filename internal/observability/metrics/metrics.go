package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type instrument int

const (
	inboxBuilds instrument = iota
	inboxSourceFailures
	inboxActions
	scarcityChecks
	scarcityFallbacks
	notificationsQueued
	notificationsDelivered
	rateLimitAllowed
	rateLimitDenied
)

var instruments = map[instrument][2]string{
	inboxBuilds:            {"directory_inbox_builds_total", "Operations inbox aggregations by outcome."},
	inboxSourceFailures:    {"directory_inbox_source_failures_total", "Inbox sources that failed and were left out."},
	inboxActions:           {"directory_inbox_actions_total", "Operator actions by kind and outcome."},
	scarcityChecks:         {"directory_scarcity_checks_total", "Plan upgrade checks by plan and outcome."},
	scarcityFallbacks:      {"directory_scarcity_fallbacks_total", "Fail-open scarcity answers."},
	notificationsQueued:    {"directory_notifications_queued_total", "Notifications written to the outbox."},
	notificationsDelivered: {"directory_notifications_delivered_total", "Outbox delivery attempts by provider and outcome."},
	rateLimitAllowed:       {"directory_rate_limit_allowed_total", "Public requests admitted by the rate limiter."},
	rateLimitDenied:        {"directory_rate_limit_denied_total", "Public requests rejected by the rate limiter."},
}

// Metrics holds the OTel counters for domain events. A nil *Metrics records
// nothing.
type Metrics struct {
	counters map[instrument]metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.serviceName())
	m := &Metrics{counters: make(map[instrument]metric.Int64Counter, len(instruments))}
	for id, def := range instruments {
		c, err := meter.Int64Counter(def[0], metric.WithDescription(def[1]))
		if err != nil {
			return nil, err
		}
		m.counters[id] = c
	}
	return m, nil
}

// NewNoop returns instruments backed by the no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) add(ctx context.Context, id instrument, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	if c, ok := m.counters[id]; ok {
		c.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
	}
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// RecordInboxBuild counts an inbox aggregation and whether it was partial.
func (m *Metrics) RecordInboxBuild(ctx context.Context, degraded bool) {
	outcome := "complete"
	if degraded {
		outcome = "partial"
	}
	m.add(ctx, inboxBuilds, label("outcome", outcome))
}

func (m *Metrics) RecordInboxSourceFailure(ctx context.Context, source string) {
	m.add(ctx, inboxSourceFailures, label("source", source))
}

func (m *Metrics) RecordInboxAction(ctx context.Context, action, kind, outcome string) {
	m.add(ctx, inboxActions, label("action", action), label("kind", kind), label("outcome", outcome))
}

func (m *Metrics) RecordScarcityCheck(ctx context.Context, plan string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "full"
	}
	m.add(ctx, scarcityChecks, label("plan", plan), label("outcome", outcome))
}

// RecordScarcityFallback counts fail-open answers served after a backend error.
func (m *Metrics) RecordScarcityFallback(ctx context.Context, operation string) {
	m.add(ctx, scarcityFallbacks, label("operation", operation))
}

func (m *Metrics) RecordNotificationQueued(ctx context.Context, kind string) {
	m.add(ctx, notificationsQueued, label("kind", kind))
}

func (m *Metrics) RecordNotificationDelivered(ctx context.Context, provider, outcome string) {
	m.add(ctx, notificationsDelivered, label("provider", provider), label("outcome", outcome))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	m.add(ctx, rateLimitAllowed, label("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.add(ctx, rateLimitDenied, label("endpoint", endpoint), label("reason", reason))
}

// allowedLabels keeps series low-cardinality. Ids and emails never become
// labels.
var allowedLabels = map[attribute.Key]bool{
	"endpoint":    true,
	"status_code": true,
	"source":      true,
	"action":      true,
	"kind":        true,
	"plan":        true,
	"operation":   true,
	"outcome":     true,
	"provider":    true,
	"reason":      true,
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	var kept []attribute.KeyValue
	for _, attr := range attrs {
		if allowedLabels[attr.Key] {
			kept = append(kept, attr)
		}
	}
	return kept
}
