package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
)

// ── Tier administration ───────────────────────────────────────────────────────

// CreateTier inserts a new approval tier.
func (s *PostgresStore) CreateTier(ctx context.Context, tier *Tier) error {
	query := `
		INSERT INTO approval_tiers
		    (name, tier_order, min_amount, max_amount, required_role, active)
		VALUES ($1, $2, $3, $4, $5::approver_role, $6)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		tier.Name,
		tier.Order,
		tier.MinAmount,
		tier.MaxAmount,
		tier.RequiredRole,
		tier.Active,
	).Scan(&tier.ID, &tier.CreatedAt, &tier.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create tier")
	}
	return nil
}

// UpdateTier persists changes to an existing tier.
func (s *PostgresStore) UpdateTier(ctx context.Context, tier *Tier) error {
	query := `
		UPDATE approval_tiers
		SET name          = $2,
		    tier_order    = $3,
		    min_amount    = $4,
		    max_amount    = $5,
		    required_role = $6::approver_role,
		    active        = $7,
		    updated_at    = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := s.db.QueryRow(ctx, query,
		tier.ID,
		tier.Name,
		tier.Order,
		tier.MinAmount,
		tier.MaxAmount,
		tier.RequiredRole,
		tier.Active,
	).Scan(&tier.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("tier", tier.ID)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update tier")
	}
	return nil
}

// SetTierActive soft-activates or soft-deactivates a tier. Deactivated tiers
// stay on record for audit.
func (s *PostgresStore) SetTierActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE approval_tiers
		SET active     = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := s.db.QueryRow(ctx, query, id, active).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("tier", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update tier active flag")
	}
	return nil
}

// ListActiveTiers returns active tiers ordered ascending by tier_order.
func (s *PostgresStore) ListActiveTiers(ctx context.Context) ([]*Tier, error) {
	return s.ListTiers(ctx, true)
}

// ListTiers returns tiers ordered ascending by tier_order, optionally
// filtered to active only.
func (s *PostgresStore) ListTiers(ctx context.Context, activeOnly bool) ([]*Tier, error) {
	query := `
		SELECT id, name, tier_order, min_amount, max_amount,
		       required_role, active, created_at, updated_at
		FROM approval_tiers
	`
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY tier_order ASC"

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list tiers")
	}
	defer rows.Close()

	var tiers []*Tier
	for rows.Next() {
		t := &Tier{}
		err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Order,
			&t.MinAmount,
			&t.MaxAmount,
			&t.RequiredRole,
			&t.Active,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan tier")
		}
		tiers = append(tiers, t)
	}
	return tiers, nil
}
