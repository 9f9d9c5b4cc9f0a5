package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
)

// LoadPrincipal retrieves a principal from the directory table. Principals
// are managed by an external identity workflow; the engine only reads them.
func (s *PostgresStore) LoadPrincipal(ctx context.Context, id string) (*Principal, error) {
	query := `
		SELECT id, name, role
		FROM principals
		WHERE id = $1
	`

	p := &Principal{}
	err := s.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("principal", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load principal")
	}
	return p, nil
}
