package repository

import (
	"context"
	"time"
)

// RequestUpdate carries the request field changes committed alongside a
// status transition.
type RequestUpdate struct {
	// RejectionReason is stored on rejection.
	RejectionReason *string
	// ClarificationQuestion is stored when clarification is requested.
	ClarificationQuestion *string
	// ClearReview resets both review fields (resubmission).
	ClearReview bool
}

// Store is the persistence boundary consumed by the approval engine.
// Implemented by PostgresStore and by memory.Store for development/tests.
type Store interface {
	// ── engine reads ─────────────────────────────────────────────────────

	// LoadRequest returns a request by ID, or a not_found error.
	LoadRequest(ctx context.Context, id string) (*Request, error)
	// LoadApprovedTierOrders returns the set of tier orders already satisfied
	// by Approved actions on the request.
	LoadApprovedTierOrders(ctx context.Context, requestID string) (map[int]struct{}, error)
	// ListActiveTiers returns active tiers ordered ascending by Order.
	ListActiveTiers(ctx context.Context) ([]*Tier, error)
	// LoadPrincipal returns a principal by ID, or a not_found error.
	LoadPrincipal(ctx context.Context, id string) (*Principal, error)
	// FindActiveDelegationFor returns an active delegation to toUserID whose
	// delegator holds requiredRole and whose window contains at, or nil.
	FindActiveDelegationFor(ctx context.Context, toUserID string, requiredRole Role, at time.Time) (*Delegation, error)
	// FindOverlappingDelegation returns an active delegation from fromUserID
	// whose window overlaps [start, end], or nil.
	FindOverlappingDelegation(ctx context.Context, fromUserID string, start, end time.Time) (*Delegation, error)

	// ── engine writes ────────────────────────────────────────────────────

	// AtomicTransition commits the status change, the appended action and the
	// request field updates in one transaction, guarded by expectedStatus.
	// Returns a conflict error when the guard fails, not_found when the
	// request is absent.
	AtomicTransition(ctx context.Context, requestID string, expectedStatus, newStatus RequestStatus, action *ApprovalAction, update RequestUpdate) error
	// CreateRequest persists a new request in Submitted status.
	CreateRequest(ctx context.Context, req *Request) error

	// ── queries ──────────────────────────────────────────────────────────

	// ListActionableRequests returns requests in submitted/pending_approval
	// status ordered oldest-first, paginated.
	ListActionableRequests(ctx context.Context, limit, offset int) ([]*Request, error)
	// ListActionsByActor returns the actions a principal performed, newest-first.
	ListActionsByActor(ctx context.Context, actorID string) ([]*ApprovalAction, error)
	// ListActionsForRequest returns a request's full audit trail oldest-first.
	ListActionsForRequest(ctx context.Context, requestID string) ([]*ApprovalAction, error)

	// ── tier administration ──────────────────────────────────────────────

	CreateTier(ctx context.Context, tier *Tier) error
	UpdateTier(ctx context.Context, tier *Tier) error
	// SetTierActive soft-activates or soft-deactivates a tier.
	SetTierActive(ctx context.Context, id string, active bool) error
	// ListTiers returns all tiers ordered ascending by Order.
	ListTiers(ctx context.Context, activeOnly bool) ([]*Tier, error)

	// ── delegation CRUD ──────────────────────────────────────────────────

	CreateDelegation(ctx context.Context, d *Delegation) error
	GetDelegation(ctx context.Context, id string) (*Delegation, error)
	// RevokeDelegation soft-revokes (active=false, RevokedAt stamped).
	RevokeDelegation(ctx context.Context, id string, at time.Time) error
	// ListActiveDelegations returns delegations where userID is either party,
	// active, and at falls within the window.
	ListActiveDelegations(ctx context.Context, userID string, at time.Time) ([]*Delegation, error)
}
