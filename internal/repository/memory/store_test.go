package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
	"github.com/SAH-VenD/expense-approvals/internal/repository"
)

func newRequest(t *testing.T, store *Store, amount int64) *repository.Request {
	t.Helper()
	req := &repository.Request{
		Amount:      amount,
		Status:      repository.StatusSubmitted,
		SubmitterID: "submitter-1",
	}
	require.NoError(t, store.CreateRequest(context.Background(), req))
	return req
}

func TestAtomicTransitionGuard(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	req := newRequest(t, store, 50_000)

	action := &repository.ApprovalAction{
		RequestID: req.ID,
		ActorID:   "manager-1",
		Kind:      repository.ActionApproved,
		TierOrder: 1,
	}
	err := store.AtomicTransition(ctx, req.ID, repository.StatusSubmitted, repository.StatusApproved, action, repository.RequestUpdate{})
	require.NoError(t, err)

	// The second transition sees a status that no longer matches its guard.
	err = store.AtomicTransition(ctx, req.ID, repository.StatusSubmitted, repository.StatusApproved, action, repository.RequestUpdate{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))

	// Exactly one action was appended.
	actions, err := store.ListActionsForRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	err = store.AtomicTransition(ctx, "missing", repository.StatusSubmitted, repository.StatusApproved, action, repository.RequestUpdate{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestAtomicTransitionRejectsDuplicateTierApproval(t *testing.T) {
	// Mid-walk approvals keep the status at pending_approval, so the status
	// guard alone passes for both writers. The second Approved action at the
	// same tier order must still be refused.
	store := NewStore()
	ctx := context.Background()
	req := newRequest(t, store, 2_000_000)

	first := &repository.ApprovalAction{RequestID: req.ID, ActorID: "manager-1", Kind: repository.ActionApproved, TierOrder: 1}
	require.NoError(t, store.AtomicTransition(ctx, req.ID, repository.StatusSubmitted, repository.StatusPendingApproval, first, repository.RequestUpdate{}))

	second := &repository.ApprovalAction{RequestID: req.ID, ActorID: "finance-1", Kind: repository.ActionApproved, TierOrder: 2}
	require.NoError(t, store.AtomicTransition(ctx, req.ID, repository.StatusPendingApproval, repository.StatusPendingApproval, second, repository.RequestUpdate{}))

	duplicate := &repository.ApprovalAction{RequestID: req.ID, ActorID: "director-1", Kind: repository.ActionApproved, TierOrder: 2}
	err := store.AtomicTransition(ctx, req.ID, repository.StatusPendingApproval, repository.StatusPendingApproval, duplicate, repository.RequestUpdate{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))

	actions, err := store.ListActionsForRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, actions, 2)

	// The reserved order 0 is exempt from the uniqueness rule.
	emergency := &repository.ApprovalAction{RequestID: req.ID, ActorID: "cfo-1", Kind: repository.ActionApproved, TierOrder: 0, IsEmergency: true}
	require.NoError(t, store.AtomicTransition(ctx, req.ID, repository.StatusPendingApproval, repository.StatusApproved, emergency, repository.RequestUpdate{}))
}

func TestAtomicTransitionFieldUpdates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	req := newRequest(t, store, 50_000)

	reason := "missing receipt"
	action := &repository.ApprovalAction{RequestID: req.ID, ActorID: "manager-1", Kind: repository.ActionRejected, TierOrder: 1}
	err := store.AtomicTransition(ctx, req.ID, repository.StatusSubmitted, repository.StatusRejected, action,
		repository.RequestUpdate{RejectionReason: &reason})
	require.NoError(t, err)

	loaded, err := store.LoadRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.RejectionReason)
	assert.Equal(t, reason, *loaded.RejectionReason)

	// ClearReview wipes both review fields on resubmission.
	note := &repository.ApprovalAction{RequestID: req.ID, ActorID: "submitter-1", Kind: repository.ActionClarificationRequested, IsResubmission: true}
	err = store.AtomicTransition(ctx, req.ID, repository.StatusRejected, repository.StatusSubmitted, note,
		repository.RequestUpdate{ClearReview: true})
	require.NoError(t, err)

	loaded, err = store.LoadRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.RejectionReason)
	assert.Nil(t, loaded.ClarificationQuestion)
	assert.Equal(t, repository.StatusSubmitted, loaded.Status)
}

func TestLoadApprovedTierOrdersExcludesEmergency(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	req := newRequest(t, store, 500_000)

	steps := []struct {
		from, to repository.RequestStatus
		action   repository.ApprovalAction
	}{
		{repository.StatusSubmitted, repository.StatusPendingApproval,
			repository.ApprovalAction{Kind: repository.ActionApproved, TierOrder: 1}},
		{repository.StatusPendingApproval, repository.StatusRejected,
			repository.ApprovalAction{Kind: repository.ActionRejected, TierOrder: 2}},
		{repository.StatusRejected, repository.StatusSubmitted,
			repository.ApprovalAction{Kind: repository.ActionClarificationRequested, TierOrder: 0, IsResubmission: true}},
		{repository.StatusSubmitted, repository.StatusApproved,
			repository.ApprovalAction{Kind: repository.ActionApproved, TierOrder: 0, IsEmergency: true}},
	}
	for _, step := range steps {
		action := step.action
		action.RequestID = req.ID
		action.ActorID = "actor-1"
		require.NoError(t, store.AtomicTransition(ctx, req.ID, step.from, step.to, &action, repository.RequestUpdate{}))
	}

	// Only non-emergency Approved actions count toward satisfied tiers.
	orders, err := store.LoadApprovedTierOrders(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int]struct{}{1: {}}, orders)
}

func TestListActionableRequestsPagination(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, newRequest(t, store, 1_000).ID)
	}

	// One of them is no longer actionable.
	action := &repository.ApprovalAction{RequestID: ids[0], ActorID: "manager-1", Kind: repository.ActionApproved, TierOrder: 1}
	require.NoError(t, store.AtomicTransition(ctx, ids[0], repository.StatusSubmitted, repository.StatusApproved, action, repository.RequestUpdate{}))

	page1, err := store.ListActionableRequests(ctx, 3, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 3)

	page2, err := store.ListActionableRequests(ctx, 3, 3)
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	empty, err := store.ListActionableRequests(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindOverlappingDelegation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, store.CreateDelegation(ctx, &repository.Delegation{
		FromUserID: "finance-1",
		ToUserID:   "manager-1",
		StartDate:  day(1),
		EndDate:    day(10),
		Active:     true,
	}))

	// Overlapping window from the same delegator.
	found, err := store.FindOverlappingDelegation(ctx, "finance-1", day(5), day(20))
	require.NoError(t, err)
	assert.NotNil(t, found)

	// Touching endpoints overlap under the inclusive window.
	found, err = store.FindOverlappingDelegation(ctx, "finance-1", day(10), day(20))
	require.NoError(t, err)
	assert.NotNil(t, found)

	// Disjoint window.
	found, err = store.FindOverlappingDelegation(ctx, "finance-1", day(12), day(20))
	require.NoError(t, err)
	assert.Nil(t, found)

	// Other delegators are unaffected.
	found, err = store.FindOverlappingDelegation(ctx, "director-1", day(5), day(20))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindActiveDelegationForMatchesDelegatorRole(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.AddPrincipal(&repository.Principal{ID: "finance-1", Role: repository.RoleFinance})

	now := time.Now()
	require.NoError(t, store.CreateDelegation(ctx, &repository.Delegation{
		FromUserID: "finance-1",
		ToUserID:   "manager-1",
		StartDate:  now.Add(-time.Hour),
		EndDate:    now.Add(time.Hour),
		Active:     true,
	}))

	found, err := store.FindActiveDelegationFor(ctx, "manager-1", repository.RoleFinance, now)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "finance-1", found.FromUserID)

	// The delegator's role must equal the required role exactly.
	found, err = store.FindActiveDelegationFor(ctx, "manager-1", repository.RoleDirector, now)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	req := newRequest(t, store, 1_000)

	loaded, err := store.LoadRequest(ctx, req.ID)
	require.NoError(t, err)
	loaded.Status = repository.StatusApproved
	loaded.Amount = 999_999

	// Mutating the returned copy must not leak into the store.
	reloaded, err := store.LoadRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusSubmitted, reloaded.Status)
	assert.Equal(t, int64(1_000), reloaded.Amount)
}
