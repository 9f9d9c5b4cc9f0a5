package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
	"github.com/SAH-VenD/expense-approvals/internal/repository"
)

// TierService is the administrative surface for approval tiers. Tier writes
// are out of the approval hot path.
type TierService struct {
	store repository.Store
	log   zerolog.Logger
}

// NewTierService creates a new TierService.
func NewTierService(store repository.Store, log zerolog.Logger) *TierService {
	return &TierService{
		store: store,
		log:   log.With().Str("service", "tier").Logger(),
	}
}

// Create validates and persists a new tier.
func (s *TierService) Create(ctx context.Context, tier *repository.Tier) error {
	if err := validateTier(tier); err != nil {
		return err
	}
	if err := s.store.CreateTier(ctx, tier); err != nil {
		return err
	}

	s.log.Info().
		Str("tier_id", tier.ID).
		Str("name", tier.Name).
		Int("order", tier.Order).
		Str("required_role", string(tier.RequiredRole)).
		Msg("Tier created")

	return nil
}

// Update validates and persists changes to an existing tier.
func (s *TierService) Update(ctx context.Context, tier *repository.Tier) error {
	if err := validateTier(tier); err != nil {
		return err
	}
	return s.store.UpdateTier(ctx, tier)
}

// Deactivate soft-deactivates a tier, keeping it on record.
func (s *TierService) Deactivate(ctx context.Context, id string) error {
	if err := s.store.SetTierActive(ctx, id, false); err != nil {
		return err
	}
	s.log.Info().Str("tier_id", id).Msg("Tier deactivated")
	return nil
}

// List returns tiers ordered ascending by order.
func (s *TierService) List(ctx context.Context, activeOnly bool) ([]*repository.Tier, error) {
	return s.store.ListTiers(ctx, activeOnly)
}

func validateTier(tier *repository.Tier) error {
	if tier.Name == "" {
		return apperrors.InvalidInput("name", "tier name is required")
	}
	if tier.Order <= 0 {
		return apperrors.InvalidInput("order", "tier order must be a positive integer")
	}
	if tier.MinAmount < 0 {
		return apperrors.InvalidInput("min_amount", "minimum amount cannot be negative")
	}
	if tier.MaxAmount != nil && *tier.MaxAmount <= tier.MinAmount {
		return apperrors.InvalidInput("max_amount", "maximum amount must be greater than minimum amount")
	}
	if !tier.RequiredRole.Valid() {
		return apperrors.InvalidInput("required_role", "unknown approver role")
	}
	return nil
}
