package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
)

// ApprovalAction rows are append-only: a delete-prevention trigger on the
// table backs the immutability invariant, so insertAction is the only
// mutation in this file.
//
// A partial unique index backs the at-most-once tier advancement:
//
//	CREATE UNIQUE INDEX approval_actions_request_tier_approved_key
//	    ON approval_actions (request_id, tier_order)
//	    WHERE kind = 'approved' AND tier_order > 0;
//
// Two approvals racing at the same mid-walk tier both pass the status guard
// (pending_approval to pending_approval), so the second insert must fail
// here instead.

// insertAction appends one action inside an open transaction.
func insertAction(ctx context.Context, tx pgx.Tx, action *ApprovalAction) error {
	query := `
		INSERT INTO approval_actions
		    (request_id, actor_id, kind, tier_order,
		     comment, delegated_from_id,
		     is_emergency, emergency_reason, is_resubmission)
		VALUES ($1, $2, $3::action_kind, $4,
		        $5, $6,
		        $7, $8, $9)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		action.RequestID,
		action.ActorID,
		action.Kind,
		action.TierOrder,
		action.Comment,
		action.DelegatedFromID,
		action.IsEmergency,
		action.EmergencyReason,
		action.IsResubmission,
	).Scan(&action.ID, &action.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.New(apperrors.ErrCodeConflict,
				fmt.Sprintf("tier %d of request %s was already approved", action.TierOrder, action.RequestID))
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to append approval action")
	}
	return nil
}

// ListActionsForRequest returns a request's audit trail ordered oldest-first.
func (s *PostgresStore) ListActionsForRequest(ctx context.Context, requestID string) ([]*ApprovalAction, error) {
	query := selectActions + `
		WHERE request_id = $1
		ORDER BY created_at ASC
	`
	return s.queryActions(ctx, query, requestID)
}

// ListActionsByActor returns the actions a principal performed, newest-first.
func (s *PostgresStore) ListActionsByActor(ctx context.Context, actorID string) ([]*ApprovalAction, error) {
	query := selectActions + `
		WHERE actor_id = $1
		ORDER BY created_at DESC
	`
	return s.queryActions(ctx, query, actorID)
}

const selectActions = `
	SELECT id, request_id, actor_id, kind, tier_order,
	       comment, delegated_from_id,
	       is_emergency, emergency_reason, is_resubmission,
	       created_at
	FROM approval_actions
`

func (s *PostgresStore) queryActions(ctx context.Context, query string, args ...any) ([]*ApprovalAction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list approval actions")
	}
	defer rows.Close()

	var actions []*ApprovalAction
	for rows.Next() {
		a := &ApprovalAction{}
		err := rows.Scan(
			&a.ID,
			&a.RequestID,
			&a.ActorID,
			&a.Kind,
			&a.TierOrder,
			&a.Comment,
			&a.DelegatedFromID,
			&a.IsEmergency,
			&a.EmergencyReason,
			&a.IsResubmission,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan approval action")
		}
		actions = append(actions, a)
	}
	return actions, nil
}
