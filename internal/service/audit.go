package service

import (
	"context"
	"time"

	"github.com/SAH-VenD/expense-approvals/internal/repository"
)

// AuditEvent is what the engine forwards to the audit sink for every state
// change. The engine constructs events, it never stores them.
type AuditEvent struct {
	EventType     string                   `json:"event_type"`
	RequestID     string                   `json:"request_id"`
	ActorID       string                   `json:"actor_id"`
	TierOrder     int                      `json:"tier_order"`
	DelegatedFrom *string                  `json:"delegated_from,omitempty"`
	Emergency     bool                     `json:"emergency,omitempty"`
	Justification string                   `json:"justification,omitempty"`
	StatusBefore  repository.RequestStatus `json:"status_before"`
	StatusAfter   repository.RequestStatus `json:"status_after"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// Audit event types.
const (
	AuditRequestApproved          = "request_approved"
	AuditRequestEmergencyApproved = "request_emergency_approved"
	AuditRequestRejected          = "request_rejected"
	AuditClarificationRequested   = "clarification_requested"
	AuditRequestResubmitted       = "request_resubmitted"
)

// AuditSink receives audit events. Delivery failures must never interrupt an
// approval operation, so implementations log and swallow errors.
type AuditSink interface {
	RecordAuditEvent(ctx context.Context, event AuditEvent)
}
