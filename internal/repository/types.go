package repository

import "time"

// ── Domain types for the expense approval engine ─────────────────────────────

// Role is the closed set of approver roles, ordered by override authority.
type Role string

const (
	// RoleManager is the base approver role.
	RoleManager Role = "manager"
	// RoleFinance subsumes manager-tier authority but not director/cfo tiers.
	RoleFinance Role = "finance"
	// RoleDirector is the second-tier override: any tier except cfo-only ones.
	RoleDirector Role = "director"
	// RoleCFO is the top override: allowed at any tier.
	RoleCFO Role = "cfo"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleFinance, RoleDirector, RoleCFO:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of an expense request.
type RequestStatus string

const (
	StatusSubmitted              RequestStatus = "submitted"
	StatusPendingApproval        RequestStatus = "pending_approval"
	StatusApproved               RequestStatus = "approved"
	StatusRejected               RequestStatus = "rejected"
	StatusClarificationRequested RequestStatus = "clarification_requested"
)

// Actionable reports whether approve/reject/clarify commands may target a
// request in this state.
func (s RequestStatus) Actionable() bool {
	return s == StatusSubmitted || s == StatusPendingApproval
}

// ActionKind classifies an approval action record.
type ActionKind string

const (
	ActionApproved               ActionKind = "approved"
	ActionRejected               ActionKind = "rejected"
	ActionClarificationRequested ActionKind = "clarification_requested"
)

// EmergencyTierOrder is the reserved tier order recorded for emergency
// approvals and resubmission notes, which bypass the tier walk.
const EmergencyTierOrder = 0

// Tier is an ordered authorization checkpoint keyed by amount range and role.
// Amount bounds are cents in the reference currency; the range is
// [MinAmount, MaxAmount), MaxAmount nil = unbounded.
type Tier struct {
	ID           string
	Name         string
	Order        int
	MinAmount    int64
	MaxAmount    *int64
	RequiredRole Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Covers reports whether amount falls inside the tier's half-open range.
func (t *Tier) Covers(amount int64) bool {
	if amount < t.MinAmount {
		return false
	}
	return t.MaxAmount == nil || amount < *t.MaxAmount
}

// Request is an expense request moving through the sign-off chain.
// Amount is already normalized to the reference currency, in cents.
type Request struct {
	ID                    string
	Amount                int64
	Status                RequestStatus
	SubmitterID           string
	Description           *string
	RejectionReason       *string
	ClarificationQuestion *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ApprovalAction is one immutable record in a request's audit trail.
// The ordered set of Approved actions per request, keyed by TierOrder, is the
// authoritative record of which tiers are already satisfied.
type ApprovalAction struct {
	ID              string
	RequestID       string
	ActorID         string
	Kind            ActionKind
	TierOrder       int
	Comment         *string
	DelegatedFromID *string
	IsEmergency     bool
	EmergencyReason *string
	IsResubmission  bool
	CreatedAt       time.Time
}

// Delegation is a time-bound grant: FromUserID's tier authority is exercised
// by ToUserID for [StartDate, EndDate]. Soft-revoked, never deleted.
type Delegation struct {
	ID         string
	FromUserID string
	ToUserID   string
	StartDate  time.Time
	EndDate    time.Time
	Reason     *string
	Active     bool
	RevokedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InWindow reports whether at falls within the delegation's inclusive window.
func (d *Delegation) InWindow(at time.Time) bool {
	return !at.Before(d.StartDate) && !at.After(d.EndDate)
}

// Principal is a user known to the approval engine.
type Principal struct {
	ID   string
	Name string
	Role Role
}
