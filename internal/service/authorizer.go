package service

import (
	"context"
	"time"

	"github.com/SAH-VenD/expense-approvals/internal/repository"
)

// roleRank orders the closed role set by override authority. A principal may
// act directly at any tier whose required role ranks at or below their own:
// cfo covers everything, director covers everything except cfo-only tiers,
// finance covers finance and manager tiers, manager only its own.
var roleRank = map[repository.Role]int{
	repository.RoleManager:  1,
	repository.RoleFinance:  2,
	repository.RoleDirector: 3,
	repository.RoleCFO:      4,
}

// emergencyEligible is the fixed set of roles allowed to use the emergency
// bypass path.
var emergencyEligible = map[repository.Role]bool{
	repository.RoleCFO:      true,
	repository.RoleDirector: true,
	repository.RoleFinance:  true,
}

// Decision is the result of an authorization check.
type Decision struct {
	Allowed bool
	// DelegatedFrom is set when the principal acts via delegated authority.
	DelegatedFrom *string
}

// Authorizer decides whether a principal may act at a required tier.
type Authorizer struct {
	store repository.Store
}

// NewAuthorizer creates an Authorizer backed by the given store.
func NewAuthorizer(store repository.Store) *Authorizer {
	return &Authorizer{store: store}
}

// Authorize resolves, in order: override/own-role authority via the ranking
// table, then delegated authority. Delegation is strictly the last resort and
// only transfers the nominal-role path: override authority is not delegable,
// so the delegator's role must equal the tier's required role exactly.
func (a *Authorizer) Authorize(ctx context.Context, principal *repository.Principal, tier *repository.Tier, now time.Time) (Decision, error) {
	// Both lookups must hit: a role outside the closed set ranks nowhere,
	// never at zero.
	principalRank, ok := roleRank[principal.Role]
	requiredRank, known := roleRank[tier.RequiredRole]
	if ok && known && principalRank >= requiredRank {
		return Decision{Allowed: true}, nil
	}

	delegation, err := a.store.FindActiveDelegationFor(ctx, principal.ID, tier.RequiredRole, now)
	if err != nil {
		return Decision{}, err
	}
	if delegation != nil {
		from := delegation.FromUserID
		return Decision{Allowed: true, DelegatedFrom: &from}, nil
	}

	return Decision{}, nil
}
