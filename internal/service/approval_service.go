package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
	"github.com/SAH-VenD/expense-approvals/internal/repository"
)

// minEmergencyReasonLen is the minimum justification length required from
// non-cfo principals on the emergency bypass path.
const minEmergencyReasonLen = 20

// ApprovalService owns the request lifecycle: it applies tier resolution and
// authorization results to approve/reject/clarify/resubmit commands and
// appends the immutable action trail. Every transition goes through the
// store's status-guarded AtomicTransition, so two concurrent commands on the
// same request can never both advance it.
type ApprovalService struct {
	store      repository.Store
	authorizer *Authorizer
	audit      AuditSink
	log        zerolog.Logger
	now        func() time.Time
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(store repository.Store, authorizer *Authorizer, audit AuditSink, log zerolog.Logger) *ApprovalService {
	return &ApprovalService{
		store:      store,
		authorizer: authorizer,
		audit:      audit,
		log:        log.With().Str("service", "approval").Logger(),
		now:        time.Now,
	}
}

// ── Commands ──────────────────────────────────────────────────────────────────

// ApproveCommand approves a request at its currently required tier, or via
// the emergency bypass.
type ApproveCommand struct {
	RequestID       string
	ActorID         string
	Comment         *string
	Emergency       bool
	EmergencyReason string
}

// RejectCommand rejects a request with a mandatory reason.
type RejectCommand struct {
	RequestID string
	ActorID   string
	Reason    string
}

// ClarifyCommand sends a request back to its submitter with a question.
type ClarifyCommand struct {
	RequestID string
	ActorID   string
	Question  string
}

// ResubmitCommand re-enters a rejected or clarification-requested request
// into the tier walk. Only the submitter may resubmit.
type ResubmitCommand struct {
	RequestID string
	CallerID  string
	Note      *string
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve processes an approval command and returns the updated request.
func (s *ApprovalService) Approve(ctx context.Context, cmd ApproveCommand) (*repository.Request, error) {
	req, err := s.store.LoadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.Actionable() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("request %s cannot be approved in status %q", req.ID, req.Status))
	}

	if cmd.Emergency {
		return s.approveEmergency(ctx, req, cmd)
	}
	return s.approveStandard(ctx, req, cmd)
}

// approveEmergency is the explicit override path: no tier walk, no
// authorization resolution, gated on a fixed set of high-trust roles.
func (s *ApprovalService) approveEmergency(ctx context.Context, req *repository.Request, cmd ApproveCommand) (*repository.Request, error) {
	actor, err := s.store.LoadPrincipal(ctx, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	if !emergencyEligible[actor.Role] {
		return nil, apperrors.New(apperrors.ErrCodeForbidden,
			fmt.Sprintf("role %q may not use the emergency approval path", actor.Role))
	}
	// The top override role may omit the justification; everyone else must
	// explain themselves at length.
	if actor.Role != repository.RoleCFO && len(cmd.EmergencyReason) < minEmergencyReasonLen {
		return nil, apperrors.InvalidInput("emergency_reason",
			fmt.Sprintf("emergency justification must be at least %d characters", minEmergencyReasonLen))
	}

	var reason *string
	if cmd.EmergencyReason != "" {
		reason = &cmd.EmergencyReason
	}
	action := &repository.ApprovalAction{
		RequestID:       req.ID,
		ActorID:         cmd.ActorID,
		Kind:            repository.ActionApproved,
		TierOrder:       repository.EmergencyTierOrder,
		Comment:         cmd.Comment,
		IsEmergency:     true,
		EmergencyReason: reason,
	}

	prev := req.Status
	if err := s.store.AtomicTransition(ctx, req.ID, prev, repository.StatusApproved, action, repository.RequestUpdate{}); err != nil {
		return nil, err
	}
	req.Status = repository.StatusApproved

	s.log.Warn().
		Str("request_id", req.ID).
		Str("actor_id", cmd.ActorID).
		Str("role", string(actor.Role)).
		Msg("Request approved via emergency bypass")

	s.audit.RecordAuditEvent(ctx, AuditEvent{
		EventType:     AuditRequestEmergencyApproved,
		RequestID:     req.ID,
		ActorID:       cmd.ActorID,
		TierOrder:     repository.EmergencyTierOrder,
		Emergency:     true,
		Justification: cmd.EmergencyReason,
		StatusBefore:  prev,
		StatusAfter:   repository.StatusApproved,
		OccurredAt:    s.now(),
	})
	return req, nil
}

// approveStandard walks the tier chain: resolve the required tier, authorize
// the actor, record the action and advance to the next tier or to Approved.
func (s *ApprovalService) approveStandard(ctx context.Context, req *repository.Request, cmd ApproveCommand) (*repository.Request, error) {
	tier, tiers, err := s.resolveRequiredTier(ctx, req)
	if err != nil {
		return nil, err
	}

	decision, err := s.authorizeActor(ctx, cmd.ActorID, tier)
	if err != nil {
		return nil, err
	}

	action := &repository.ApprovalAction{
		RequestID:       req.ID,
		ActorID:         cmd.ActorID,
		Kind:            repository.ActionApproved,
		TierOrder:       tier.Order,
		Comment:         cmd.Comment,
		DelegatedFromID: decision.DelegatedFrom,
	}

	newStatus := repository.StatusApproved
	next := NextTier(tiers, req.Amount, tier.Order)
	if next != nil {
		newStatus = repository.StatusPendingApproval
	}

	prev := req.Status
	if err := s.store.AtomicTransition(ctx, req.ID, prev, newStatus, action, repository.RequestUpdate{}); err != nil {
		return nil, err
	}
	req.Status = newStatus

	s.log.Info().
		Str("request_id", req.ID).
		Str("actor_id", cmd.ActorID).
		Int("tier_order", tier.Order).
		Bool("fully_approved", next == nil).
		Msg("Request approved at tier")

	s.audit.RecordAuditEvent(ctx, AuditEvent{
		EventType:     AuditRequestApproved,
		RequestID:     req.ID,
		ActorID:       cmd.ActorID,
		TierOrder:     tier.Order,
		DelegatedFrom: decision.DelegatedFrom,
		StatusBefore:  prev,
		StatusAfter:   newStatus,
		OccurredAt:    s.now(),
	})
	return req, nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject rejects a request at its currently required tier. The reason is
// mandatory and stored on the request.
func (s *ApprovalService) Reject(ctx context.Context, cmd RejectCommand) (*repository.Request, error) {
	if cmd.Reason == "" {
		return nil, apperrors.InvalidInput("reason", "rejection reason is required")
	}

	req, err := s.store.LoadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.Actionable() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("request %s cannot be rejected in status %q", req.ID, req.Status))
	}

	tier, _, err := s.resolveRequiredTier(ctx, req)
	if err != nil {
		return nil, err
	}
	decision, err := s.authorizeActor(ctx, cmd.ActorID, tier)
	if err != nil {
		return nil, err
	}

	action := &repository.ApprovalAction{
		RequestID:       req.ID,
		ActorID:         cmd.ActorID,
		Kind:            repository.ActionRejected,
		TierOrder:       tier.Order,
		Comment:         &cmd.Reason,
		DelegatedFromID: decision.DelegatedFrom,
	}

	prev := req.Status
	update := repository.RequestUpdate{RejectionReason: &cmd.Reason}
	if err := s.store.AtomicTransition(ctx, req.ID, prev, repository.StatusRejected, action, update); err != nil {
		return nil, err
	}
	req.Status = repository.StatusRejected
	req.RejectionReason = &cmd.Reason

	s.log.Info().
		Str("request_id", req.ID).
		Str("actor_id", cmd.ActorID).
		Int("tier_order", tier.Order).
		Msg("Request rejected")

	s.audit.RecordAuditEvent(ctx, AuditEvent{
		EventType:     AuditRequestRejected,
		RequestID:     req.ID,
		ActorID:       cmd.ActorID,
		TierOrder:     tier.Order,
		DelegatedFrom: decision.DelegatedFrom,
		Justification: cmd.Reason,
		StatusBefore:  prev,
		StatusAfter:   repository.StatusRejected,
		OccurredAt:    s.now(),
	})
	return req, nil
}

// ── Clarification ─────────────────────────────────────────────────────────────

// RequestClarification sends the request back to the submitter with a
// mandatory question, pausing the tier walk.
func (s *ApprovalService) RequestClarification(ctx context.Context, cmd ClarifyCommand) (*repository.Request, error) {
	if cmd.Question == "" {
		return nil, apperrors.InvalidInput("question", "clarification question is required")
	}

	req, err := s.store.LoadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.Actionable() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("request %s cannot be sent for clarification in status %q", req.ID, req.Status))
	}

	tier, _, err := s.resolveRequiredTier(ctx, req)
	if err != nil {
		return nil, err
	}
	decision, err := s.authorizeActor(ctx, cmd.ActorID, tier)
	if err != nil {
		return nil, err
	}

	action := &repository.ApprovalAction{
		RequestID:       req.ID,
		ActorID:         cmd.ActorID,
		Kind:            repository.ActionClarificationRequested,
		TierOrder:       tier.Order,
		Comment:         &cmd.Question,
		DelegatedFromID: decision.DelegatedFrom,
	}

	prev := req.Status
	update := repository.RequestUpdate{ClarificationQuestion: &cmd.Question}
	if err := s.store.AtomicTransition(ctx, req.ID, prev, repository.StatusClarificationRequested, action, update); err != nil {
		return nil, err
	}
	req.Status = repository.StatusClarificationRequested
	req.ClarificationQuestion = &cmd.Question

	s.log.Info().
		Str("request_id", req.ID).
		Str("actor_id", cmd.ActorID).
		Int("tier_order", tier.Order).
		Msg("Clarification requested")

	s.audit.RecordAuditEvent(ctx, AuditEvent{
		EventType:     AuditClarificationRequested,
		RequestID:     req.ID,
		ActorID:       cmd.ActorID,
		TierOrder:     tier.Order,
		DelegatedFrom: decision.DelegatedFrom,
		Justification: cmd.Question,
		StatusBefore:  prev,
		StatusAfter:   repository.StatusClarificationRequested,
		OccurredAt:    s.now(),
	})
	return req, nil
}

// ── Resubmit ──────────────────────────────────────────────────────────────────

// Resubmit re-enters the tier walk from scratch. Approvals previously
// recorded under earlier tiers remain in history and are still honored by
// the required-tier filtering.
func (s *ApprovalService) Resubmit(ctx context.Context, cmd ResubmitCommand) (*repository.Request, error) {
	req, err := s.store.LoadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != repository.StatusRejected && req.Status != repository.StatusClarificationRequested {
		return nil, apperrors.New(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("request %s cannot be resubmitted in status %q", req.ID, req.Status))
	}
	if req.SubmitterID != cmd.CallerID {
		return nil, apperrors.New(apperrors.ErrCodeForbidden, "only the submitter can resubmit the request")
	}

	action := &repository.ApprovalAction{
		RequestID:      req.ID,
		ActorID:        cmd.CallerID,
		Kind:           repository.ActionClarificationRequested,
		TierOrder:      repository.EmergencyTierOrder,
		Comment:        cmd.Note,
		IsResubmission: true,
	}

	prev := req.Status
	update := repository.RequestUpdate{ClearReview: true}
	if err := s.store.AtomicTransition(ctx, req.ID, prev, repository.StatusSubmitted, action, update); err != nil {
		return nil, err
	}
	req.Status = repository.StatusSubmitted
	req.RejectionReason = nil
	req.ClarificationQuestion = nil

	s.log.Info().
		Str("request_id", req.ID).
		Str("submitter_id", cmd.CallerID).
		Msg("Request resubmitted")

	s.audit.RecordAuditEvent(ctx, AuditEvent{
		EventType:    AuditRequestResubmitted,
		RequestID:    req.ID,
		ActorID:      cmd.CallerID,
		StatusBefore: prev,
		StatusAfter:  repository.StatusSubmitted,
		OccurredAt:   s.now(),
	})
	return req, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// PendingFor returns the actionable requests the principal is currently
// authorized to act on, preserving store ordering.
func (s *ApprovalService) PendingFor(ctx context.Context, principalID string, page, limit int) ([]*repository.Request, error) {
	principal, err := s.store.LoadPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	candidates, err := s.store.ListActionableRequests(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	tiers, err := s.store.ListActiveTiers(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var pending []*repository.Request
	for _, req := range candidates {
		approved, err := s.store.LoadApprovedTierOrders(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		tier := RequiredTier(tiers, req.Amount, approved)
		if tier == nil {
			continue
		}
		decision, err := s.authorizer.Authorize(ctx, principal, tier, now)
		if err != nil {
			return nil, err
		}
		if decision.Allowed {
			pending = append(pending, req)
		}
	}
	return pending, nil
}

// HistoryFor returns the actions the principal performed, newest-first.
func (s *ApprovalService) HistoryFor(ctx context.Context, principalID string) ([]*repository.ApprovalAction, error) {
	return s.store.ListActionsByActor(ctx, principalID)
}

// TimelineFor returns a request's full audit trail, oldest-first.
func (s *ApprovalService) TimelineFor(ctx context.Context, requestID string) ([]*repository.ApprovalAction, error) {
	if _, err := s.store.LoadRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.ListActionsForRequest(ctx, requestID)
}

// ── Submission (inbound path) ─────────────────────────────────────────────────

// Submit creates a new expense request in Submitted status.
func (s *ApprovalService) Submit(ctx context.Context, submitterID string, amount int64, description *string) (*repository.Request, error) {
	if amount <= 0 {
		return nil, apperrors.InvalidInput("amount", "amount must be positive")
	}
	if _, err := s.store.LoadPrincipal(ctx, submitterID); err != nil {
		return nil, err
	}

	req := &repository.Request{
		Amount:      amount,
		Status:      repository.StatusSubmitted,
		SubmitterID: submitterID,
		Description: description,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("submitter_id", submitterID).
		Int64("amount", amount).
		Msg("Expense request submitted")

	return req, nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// resolveRequiredTier loads one consistent tier/history snapshot and resolves
// the governing tier. These reads happen before the authorization decision
// and before the guarded transition, so a stale read can only fail the guard,
// never double-advance.
func (s *ApprovalService) resolveRequiredTier(ctx context.Context, req *repository.Request) (*repository.Tier, []*repository.Tier, error) {
	tiers, err := s.store.ListActiveTiers(ctx)
	if err != nil {
		return nil, nil, err
	}
	approved, err := s.store.LoadApprovedTierOrders(ctx, req.ID)
	if err != nil {
		return nil, nil, err
	}

	tier := RequiredTier(tiers, req.Amount, approved)
	if tier == nil {
		return nil, nil, apperrors.New(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("no approval tier covers amount %d for request %s", req.Amount, req.ID))
	}
	return tier, tiers, nil
}

// authorizeActor loads the actor and checks them against the tier.
func (s *ApprovalService) authorizeActor(ctx context.Context, actorID string, tier *repository.Tier) (Decision, error) {
	actor, err := s.store.LoadPrincipal(ctx, actorID)
	if err != nil {
		return Decision{}, err
	}
	decision, err := s.authorizer.Authorize(ctx, actor, tier, s.now())
	if err != nil {
		return Decision{}, err
	}
	if !decision.Allowed {
		return Decision{}, apperrors.New(apperrors.ErrCodeForbidden,
			fmt.Sprintf("principal %s (role %s) may not act at tier %d (requires %s)",
				actorID, actor.Role, tier.Order, tier.RequiredRole))
	}
	return decision, nil
}
