// Package memory implements repository.Store with in-memory maps.
// Thread-safe for concurrent access. For development and testing only.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
	"github.com/SAH-VenD/expense-approvals/internal/repository"
)

// Store keeps all approval state in process memory. The single mutex makes
// AtomicTransition's check-and-set trivially atomic.
type Store struct {
	mu          sync.RWMutex
	requests    map[string]*repository.Request
	actions     []*repository.ApprovalAction
	tiers       map[string]*repository.Tier
	delegations map[string]*repository.Delegation
	principals  map[string]*repository.Principal
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		requests:    make(map[string]*repository.Request),
		tiers:       make(map[string]*repository.Tier),
		delegations: make(map[string]*repository.Delegation),
		principals:  make(map[string]*repository.Principal),
	}
}

// ── requests ─────────────────────────────────────────────────────────────────

// CreateRequest persists a new request, assigning an ID and timestamps.
func (s *Store) CreateRequest(_ context.Context, req *repository.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	req.ID = uuid.NewString()
	req.CreatedAt = now
	req.UpdatedAt = now
	s.requests[req.ID] = copyRequest(req)
	return nil
}

// LoadRequest returns a copy of the request, or a not_found error.
func (s *Store) LoadRequest(_ context.Context, id string) (*repository.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, apperrors.NotFound("request", id)
	}
	return copyRequest(req), nil
}

// LoadApprovedTierOrders returns tier orders satisfied by Approved actions,
// excluding the reserved emergency order 0.
func (s *Store) LoadApprovedTierOrders(_ context.Context, requestID string) (map[int]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make(map[int]struct{})
	for _, a := range s.actions {
		if a.RequestID == requestID && a.Kind == repository.ActionApproved && a.TierOrder > 0 {
			orders[a.TierOrder] = struct{}{}
		}
	}
	return orders, nil
}

// ListActionableRequests returns requests awaiting action, oldest first.
func (s *Store) ListActionableRequests(_ context.Context, limit, offset int) ([]*repository.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*repository.Request
	for _, req := range s.requests {
		if req.Status.Actionable() {
			result = append(result, copyRequest(req))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AtomicTransition applies the status check-and-set, appends the action and
// applies field updates under one lock acquisition.
func (s *Store) AtomicTransition(
	_ context.Context,
	requestID string,
	expectedStatus, newStatus repository.RequestStatus,
	action *repository.ApprovalAction,
	update repository.RequestUpdate,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return apperrors.NotFound("request", requestID)
	}
	if req.Status != expectedStatus {
		return apperrors.New(apperrors.ErrCodeConflict,
			fmt.Sprintf("request %s moved from %s to %s during the decision", requestID, expectedStatus, req.Status))
	}

	// The status guard alone cannot catch two mid-walk approvals racing at
	// the same tier (both transition pending_approval to pending_approval),
	// so a tier may gain at most one Approved action.
	if action.Kind == repository.ActionApproved && action.TierOrder > 0 {
		for _, a := range s.actions {
			if a.RequestID == requestID && a.Kind == repository.ActionApproved && a.TierOrder == action.TierOrder {
				return apperrors.New(apperrors.ErrCodeConflict,
					fmt.Sprintf("tier %d of request %s was already approved", action.TierOrder, requestID))
			}
		}
	}

	req.Status = newStatus
	req.UpdatedAt = time.Now()
	if update.ClearReview {
		req.RejectionReason = nil
		req.ClarificationQuestion = nil
	}
	if update.RejectionReason != nil {
		req.RejectionReason = update.RejectionReason
	}
	if update.ClarificationQuestion != nil {
		req.ClarificationQuestion = update.ClarificationQuestion
	}

	action.ID = uuid.NewString()
	action.CreatedAt = time.Now()
	s.actions = append(s.actions, copyAction(action))
	return nil
}

// ── actions ──────────────────────────────────────────────────────────────────

// ListActionsForRequest returns the audit trail oldest-first.
func (s *Store) ListActionsForRequest(_ context.Context, requestID string) ([]*repository.ApprovalAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*repository.ApprovalAction
	for _, a := range s.actions {
		if a.RequestID == requestID {
			result = append(result, copyAction(a))
		}
	}
	return result, nil
}

// ListActionsByActor returns the actions a principal performed, newest-first.
func (s *Store) ListActionsByActor(_ context.Context, actorID string) ([]*repository.ApprovalAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*repository.ApprovalAction
	for i := len(s.actions) - 1; i >= 0; i-- {
		if s.actions[i].ActorID == actorID {
			result = append(result, copyAction(s.actions[i]))
		}
	}
	return result, nil
}

// ── tiers ────────────────────────────────────────────────────────────────────

// CreateTier persists a tier, assigning an ID and timestamps.
func (s *Store) CreateTier(_ context.Context, tier *repository.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	tier.ID = uuid.NewString()
	tier.CreatedAt = now
	tier.UpdatedAt = now
	s.tiers[tier.ID] = copyTier(tier)
	return nil
}

// UpdateTier replaces an existing tier's attributes.
func (s *Store) UpdateTier(_ context.Context, tier *repository.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tiers[tier.ID]
	if !ok {
		return apperrors.NotFound("tier", tier.ID)
	}
	tier.CreatedAt = existing.CreatedAt
	tier.UpdatedAt = time.Now()
	s.tiers[tier.ID] = copyTier(tier)
	return nil
}

// SetTierActive toggles the tier's active flag.
func (s *Store) SetTierActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tier, ok := s.tiers[id]
	if !ok {
		return apperrors.NotFound("tier", id)
	}
	tier.Active = active
	tier.UpdatedAt = time.Now()
	return nil
}

// ListActiveTiers returns active tiers ordered ascending by Order.
func (s *Store) ListActiveTiers(ctx context.Context) ([]*repository.Tier, error) {
	return s.ListTiers(ctx, true)
}

// ListTiers returns tiers ordered ascending by Order.
func (s *Store) ListTiers(_ context.Context, activeOnly bool) ([]*repository.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*repository.Tier
	for _, t := range s.tiers {
		if activeOnly && !t.Active {
			continue
		}
		result = append(result, copyTier(t))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result, nil
}

// ── delegations ──────────────────────────────────────────────────────────────

// CreateDelegation persists a delegation, assigning an ID and timestamps.
func (s *Store) CreateDelegation(_ context.Context, d *repository.Delegation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	d.ID = uuid.NewString()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.delegations[d.ID] = copyDelegation(d)
	return nil
}

// GetDelegation returns a copy of the delegation, or a not_found error.
func (s *Store) GetDelegation(_ context.Context, id string) (*repository.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.delegations[id]
	if !ok {
		return nil, apperrors.NotFound("delegation", id)
	}
	return copyDelegation(d), nil
}

// RevokeDelegation soft-revokes the delegation, keeping the row for audit.
func (s *Store) RevokeDelegation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.delegations[id]
	if !ok {
		return apperrors.NotFound("delegation", id)
	}
	d.Active = false
	d.RevokedAt = &at
	d.UpdatedAt = time.Now()
	return nil
}

// FindActiveDelegationFor returns an active delegation to toUserID from a
// delegator holding requiredRole, valid at the given time, or nil.
func (s *Store) FindActiveDelegationFor(_ context.Context, toUserID string, requiredRole repository.Role, at time.Time) (*repository.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.delegations {
		if !d.Active || d.ToUserID != toUserID || !d.InWindow(at) {
			continue
		}
		from, ok := s.principals[d.FromUserID]
		if !ok || from.Role != requiredRole {
			continue
		}
		return copyDelegation(d), nil
	}
	return nil, nil
}

// FindOverlappingDelegation returns an active delegation from fromUserID
// overlapping [start, end], or nil.
func (s *Store) FindOverlappingDelegation(_ context.Context, fromUserID string, start, end time.Time) (*repository.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.delegations {
		if !d.Active || d.FromUserID != fromUserID {
			continue
		}
		if !d.StartDate.After(end) && !d.EndDate.Before(start) {
			return copyDelegation(d), nil
		}
	}
	return nil, nil
}

// ListActiveDelegations returns delegations where userID is either party,
// active and valid at the given time.
func (s *Store) ListActiveDelegations(_ context.Context, userID string, at time.Time) ([]*repository.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*repository.Delegation
	for _, d := range s.delegations {
		if !d.Active || !d.InWindow(at) {
			continue
		}
		if d.FromUserID == userID || d.ToUserID == userID {
			result = append(result, copyDelegation(d))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result, nil
}

// ── principals ───────────────────────────────────────────────────────────────

// LoadPrincipal returns a copy of the principal, or a not_found error.
func (s *Store) LoadPrincipal(_ context.Context, id string) (*repository.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, apperrors.NotFound("principal", id)
	}
	cp := *p
	return &cp, nil
}

// AddPrincipal adds a principal (for seeding and tests).
func (s *Store) AddPrincipal(p *repository.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.principals[p.ID] = &cp
}

// ── copy helpers ─────────────────────────────────────────────────────────────

func copyRequest(req *repository.Request) *repository.Request {
	cp := *req
	cp.Description = copyStr(req.Description)
	cp.RejectionReason = copyStr(req.RejectionReason)
	cp.ClarificationQuestion = copyStr(req.ClarificationQuestion)
	return &cp
}

func copyAction(a *repository.ApprovalAction) *repository.ApprovalAction {
	cp := *a
	cp.Comment = copyStr(a.Comment)
	cp.DelegatedFromID = copyStr(a.DelegatedFromID)
	cp.EmergencyReason = copyStr(a.EmergencyReason)
	return &cp
}

func copyTier(t *repository.Tier) *repository.Tier {
	cp := *t
	if t.MaxAmount != nil {
		v := *t.MaxAmount
		cp.MaxAmount = &v
	}
	return &cp
}

func copyDelegation(d *repository.Delegation) *repository.Delegation {
	cp := *d
	cp.Reason = copyStr(d.Reason)
	if d.RevokedAt != nil {
		v := *d.RevokedAt
		cp.RevokedAt = &v
	}
	return &cp
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
