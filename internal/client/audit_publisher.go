// Package client holds outbound collaborators: the audit sink publishers.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/SAH-VenD/expense-approvals/internal/service"
)

// AuditPublisher forwards approval audit events to NATS JetStream for
// consumption by the audit-log service.
//
// Subject convention: approvals.audit.<event_type>
// Event types: request_approved, request_emergency_approved,
//              request_rejected, clarification_requested, request_resubmitted
//
// All publish operations are non-fatal: errors are logged but never
// propagated to the caller, so audit delivery failures never interrupt
// approval operations.
type AuditPublisher struct {
	js    nats.JetStreamContext
	log   zerolog.Logger
	drops prometheus.Counter
}

// NewAuditPublisher creates a publisher backed by the given JetStream context.
// drops may be nil when metrics are not wired.
func NewAuditPublisher(js nats.JetStreamContext, log zerolog.Logger, drops prometheus.Counter) *AuditPublisher {
	return &AuditPublisher{
		js:    js,
		log:   log.With().Str("client", "audit").Logger(),
		drops: drops,
	}
}

// RecordAuditEvent publishes one audit event. Implements service.AuditSink.
func (p *AuditPublisher) RecordAuditEvent(ctx context.Context, event service.AuditEvent) {
	if p.js == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("audit: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("approvals.audit.%s", event.EventType)
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		if p.drops != nil {
			p.drops.Inc()
		}
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("request_id", event.RequestID).
			Msg("audit: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("request_id", event.RequestID).
		Msg("audit: event published")
}

// LogSink is the fallback audit sink used when NATS is not configured: events
// are written to the structured log only.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a log-only audit sink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("client", "audit").Logger()}
}

// RecordAuditEvent logs the event. Implements service.AuditSink.
func (s *LogSink) RecordAuditEvent(_ context.Context, event service.AuditEvent) {
	s.log.Info().
		Str("event_type", event.EventType).
		Str("request_id", event.RequestID).
		Str("actor_id", event.ActorID).
		Bool("emergency", event.Emergency).
		Str("status_before", string(event.StatusBefore)).
		Str("status_after", string(event.StatusAfter)).
		Msg("audit event")
}
