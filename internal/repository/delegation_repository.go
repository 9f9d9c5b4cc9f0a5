package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
)

// ── Delegation persistence ────────────────────────────────────────────────────

// CreateDelegation inserts a new delegation. The non-overlap invariant is
// enforced by DelegationService before this call.
func (s *PostgresStore) CreateDelegation(ctx context.Context, d *Delegation) error {
	query := `
		INSERT INTO approval_delegations
		    (from_user_id, to_user_id, start_date, end_date, reason, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		d.FromUserID,
		d.ToUserID,
		d.StartDate,
		d.EndDate,
		d.Reason,
		d.Active,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create delegation")
	}
	return nil
}

// GetDelegation retrieves a delegation by primary key.
func (s *PostgresStore) GetDelegation(ctx context.Context, id string) (*Delegation, error) {
	query := selectDelegations + ` WHERE id = $1`

	d, err := scanDelegation(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("delegation", id)
	}
	return d, err
}

// RevokeDelegation soft-revokes: the row is kept for audit.
func (s *PostgresStore) RevokeDelegation(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE approval_delegations
		SET active     = FALSE,
		    revoked_at = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := s.db.QueryRow(ctx, query, id, at).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("delegation", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to revoke delegation")
	}
	return nil
}

// FindActiveDelegationFor returns an active delegation granted to toUserID by
// a delegator holding requiredRole, valid at the given time. Returns nil when
// none exists.
func (s *PostgresStore) FindActiveDelegationFor(ctx context.Context, toUserID string, requiredRole Role, at time.Time) (*Delegation, error) {
	query := `
		SELECT d.id, d.from_user_id, d.to_user_id,
		       d.start_date, d.end_date, d.reason,
		       d.active, d.revoked_at, d.created_at, d.updated_at
		FROM approval_delegations d
		JOIN principals p ON p.id = d.from_user_id
		WHERE d.to_user_id = $1
		  AND d.active = TRUE
		  AND p.role = $2::approver_role
		  AND d.start_date <= $3
		  AND d.end_date >= $3
		ORDER BY d.start_date ASC
		LIMIT 1
	`

	d, err := scanDelegation(s.db.QueryRow(ctx, query, toUserID, requiredRole, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// FindOverlappingDelegation returns an active delegation from fromUserID whose
// window overlaps [start, end], or nil.
func (s *PostgresStore) FindOverlappingDelegation(ctx context.Context, fromUserID string, start, end time.Time) (*Delegation, error) {
	query := selectDelegations + `
		WHERE from_user_id = $1
		  AND active = TRUE
		  AND start_date <= $3
		  AND end_date >= $2
		ORDER BY start_date ASC
		LIMIT 1
	`

	d, err := scanDelegation(s.db.QueryRow(ctx, query, fromUserID, start, end))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// ListActiveDelegations returns delegations where userID is either party,
// active and valid at the given time.
func (s *PostgresStore) ListActiveDelegations(ctx context.Context, userID string, at time.Time) ([]*Delegation, error) {
	query := selectDelegations + `
		WHERE (from_user_id = $1 OR to_user_id = $1)
		  AND active = TRUE
		  AND start_date <= $2
		  AND end_date >= $2
		ORDER BY start_date ASC
	`

	rows, err := s.db.Query(ctx, query, userID, at)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list delegations")
	}
	defer rows.Close()

	var delegations []*Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan delegation")
		}
		delegations = append(delegations, d)
	}
	return delegations, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const selectDelegations = `
	SELECT id, from_user_id, to_user_id,
	       start_date, end_date, reason,
	       active, revoked_at, created_at, updated_at
	FROM approval_delegations
`

type delegationScanner interface {
	Scan(dest ...any) error
}

func scanDelegation(row delegationScanner) (*Delegation, error) {
	d := &Delegation{}
	err := row.Scan(
		&d.ID,
		&d.FromUserID,
		&d.ToUserID,
		&d.StartDate,
		&d.EndDate,
		&d.Reason,
		&d.Active,
		&d.RevokedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
