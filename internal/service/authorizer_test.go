package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAH-VenD/expense-approvals/internal/repository"
	"github.com/SAH-VenD/expense-approvals/internal/repository/memory"
)

func tierRequiring(role repository.Role, order int) *repository.Tier {
	return &repository.Tier{ID: "tier-" + string(role), Order: order, RequiredRole: role, Active: true}
}

func TestAuthorizeRoleMatrix(t *testing.T) {
	// Enumerates every role against every tier role with no delegations in
	// play. Expected results follow the override hierarchy:
	// cfo > director > finance > manager.
	store := memory.NewStore()
	auth := NewAuthorizer(store)
	now := time.Now()

	cases := []struct {
		principalRole repository.Role
		tierRole      repository.Role
		allowed       bool
	}{
		{repository.RoleCFO, repository.RoleManager, true},
		{repository.RoleCFO, repository.RoleFinance, true},
		{repository.RoleCFO, repository.RoleDirector, true},
		{repository.RoleCFO, repository.RoleCFO, true},

		{repository.RoleDirector, repository.RoleManager, true},
		{repository.RoleDirector, repository.RoleFinance, true},
		{repository.RoleDirector, repository.RoleDirector, true},
		{repository.RoleDirector, repository.RoleCFO, false},

		{repository.RoleFinance, repository.RoleManager, true},
		{repository.RoleFinance, repository.RoleFinance, true},
		{repository.RoleFinance, repository.RoleDirector, false},
		{repository.RoleFinance, repository.RoleCFO, false},

		{repository.RoleManager, repository.RoleManager, true},
		{repository.RoleManager, repository.RoleFinance, false},
		{repository.RoleManager, repository.RoleDirector, false},
		{repository.RoleManager, repository.RoleCFO, false},
	}

	for _, tc := range cases {
		principal := &repository.Principal{ID: "p", Role: tc.principalRole}
		decision, err := auth.Authorize(context.Background(), principal, tierRequiring(tc.tierRole, 1), now)
		require.NoError(t, err)
		assert.Equal(t, tc.allowed, decision.Allowed,
			"role %s at %s tier", tc.principalRole, tc.tierRole)
		assert.Nil(t, decision.DelegatedFrom)
	}
}

func TestAuthorizeUnknownRolesDenied(t *testing.T) {
	// Roles outside the closed set must never authorize, even when both
	// sides are unknown (a zero rank would otherwise satisfy 0 >= 0).
	store := memory.NewStore()
	auth := NewAuthorizer(store)
	now := time.Now()

	cases := []struct {
		name          string
		principalRole repository.Role
		tierRole      repository.Role
	}{
		{"unknown principal role", "intern", repository.RoleManager},
		{"unknown tier role", repository.RoleCFO, "auditor"},
		{"both unknown", "intern", "auditor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			principal := &repository.Principal{ID: "p", Role: tc.principalRole}
			decision, err := auth.Authorize(context.Background(), principal, tierRequiring(tc.tierRole, 1), now)
			require.NoError(t, err)
			assert.False(t, decision.Allowed)
		})
	}
}

func TestAuthorizeViaDelegation(t *testing.T) {
	store := memory.NewStore()
	store.AddPrincipal(&repository.Principal{ID: "director-1", Role: repository.RoleDirector})
	store.AddPrincipal(&repository.Principal{ID: "manager-1", Role: repository.RoleManager})

	now := time.Now()
	err := store.CreateDelegation(context.Background(), &repository.Delegation{
		FromUserID: "director-1",
		ToUserID:   "manager-1",
		StartDate:  now.Add(-24 * time.Hour),
		EndDate:    now.Add(24 * time.Hour),
		Active:     true,
	})
	require.NoError(t, err)

	auth := NewAuthorizer(store)
	manager := &repository.Principal{ID: "manager-1", Role: repository.RoleManager}

	// The manager can act at director tiers through the delegation.
	decision, err := auth.Authorize(context.Background(), manager, tierRequiring(repository.RoleDirector, 3), now)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	require.NotNil(t, decision.DelegatedFrom)
	assert.Equal(t, "director-1", *decision.DelegatedFrom)

	// Delegation only transfers the delegator's nominal role. The director's
	// delegation does not open cfo tiers.
	decision, err = auth.Authorize(context.Background(), manager, tierRequiring(repository.RoleCFO, 4), now)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestAuthorizeDelegationWindow(t *testing.T) {
	store := memory.NewStore()
	store.AddPrincipal(&repository.Principal{ID: "finance-1", Role: repository.RoleFinance})
	store.AddPrincipal(&repository.Principal{ID: "manager-1", Role: repository.RoleManager})

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	err := store.CreateDelegation(context.Background(), &repository.Delegation{
		FromUserID: "finance-1",
		ToUserID:   "manager-1",
		StartDate:  start,
		EndDate:    end,
		Active:     true,
	})
	require.NoError(t, err)

	auth := NewAuthorizer(store)
	manager := &repository.Principal{ID: "manager-1", Role: repository.RoleManager}
	tier := tierRequiring(repository.RoleFinance, 2)

	// Inside the window, including both inclusive endpoints.
	for _, at := range []time.Time{start, start.AddDate(0, 0, 5), end} {
		decision, err := auth.Authorize(context.Background(), manager, tier, at)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "at %s", at)
	}

	// Outside the window.
	for _, at := range []time.Time{start.AddDate(0, 0, -1), end.AddDate(0, 0, 1)} {
		decision, err := auth.Authorize(context.Background(), manager, tier, at)
		require.NoError(t, err)
		assert.False(t, decision.Allowed, "at %s", at)
	}
}

func TestAuthorizeRevokedDelegationDenied(t *testing.T) {
	store := memory.NewStore()
	store.AddPrincipal(&repository.Principal{ID: "finance-1", Role: repository.RoleFinance})

	now := time.Now()
	d := &repository.Delegation{
		FromUserID: "finance-1",
		ToUserID:   "manager-1",
		StartDate:  now.Add(-time.Hour),
		EndDate:    now.Add(time.Hour),
		Active:     true,
	}
	require.NoError(t, store.CreateDelegation(context.Background(), d))
	require.NoError(t, store.RevokeDelegation(context.Background(), d.ID, now))

	auth := NewAuthorizer(store)
	manager := &repository.Principal{ID: "manager-1", Role: repository.RoleManager}
	decision, err := auth.Authorize(context.Background(), manager, tierRequiring(repository.RoleFinance, 2), now)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}
