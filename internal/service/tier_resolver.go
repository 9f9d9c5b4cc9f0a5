package service

import (
	"github.com/SAH-VenD/expense-approvals/internal/repository"
)

// Tier resolution is pure over the active tier list so a decision can be made
// against one consistent snapshot. The approval service loads the tiers once
// per command and the ApprovalAction history stays the single source of truth
// for which tiers are already satisfied.

// RequiredTier returns the first active tier covering amount (ascending by
// Order) whose order is not yet in approvedOrders. A nil result means either
// no tier covers the amount or every covering tier is already approved;
// both are data-consistency errors for an actionable request.
func RequiredTier(tiers []*repository.Tier, amount int64, approvedOrders map[int]struct{}) *repository.Tier {
	for _, tier := range tiers {
		if !tier.Covers(amount) {
			continue
		}
		if _, done := approvedOrders[tier.Order]; done {
			continue
		}
		return tier
	}
	return nil
}

// NextTier returns the first active tier covering amount with Order greater
// than currentOrder. nil means currentOrder is the last required step for
// this amount.
func NextTier(tiers []*repository.Tier, amount int64, currentOrder int) *repository.Tier {
	for _, tier := range tiers {
		if tier.Order <= currentOrder {
			continue
		}
		if tier.Covers(amount) {
			return tier
		}
	}
	return nil
}
