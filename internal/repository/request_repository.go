package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
)

// ── Request persistence ───────────────────────────────────────────────────────

// CreateRequest inserts a new expense request in Submitted status.
func (s *PostgresStore) CreateRequest(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO expense_requests
		    (amount, status, submitter_id, description)
		VALUES ($1, $2::request_status, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		req.Amount,
		req.Status,
		req.SubmitterID,
		req.Description,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create expense request")
	}
	return nil
}

// LoadRequest retrieves a request by primary key.
func (s *PostgresStore) LoadRequest(ctx context.Context, id string) (*Request, error) {
	query := `
		SELECT id, amount, status, submitter_id, description,
		       rejection_reason, clarification_question,
		       created_at, updated_at
		FROM expense_requests
		WHERE id = $1
	`

	req, err := scanRequest(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("request", id)
	}
	return req, err
}

// LoadApprovedTierOrders returns the tier orders satisfied by Approved actions
// on the request. Emergency approvals (tier order 0) are excluded from the
// tier walk.
func (s *PostgresStore) LoadApprovedTierOrders(ctx context.Context, requestID string) (map[int]struct{}, error) {
	query := `
		SELECT DISTINCT tier_order
		FROM approval_actions
		WHERE request_id = $1
		  AND kind = 'approved'
		  AND tier_order > 0
	`

	rows, err := s.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load approved tier orders")
	}
	defer rows.Close()

	orders := make(map[int]struct{})
	for rows.Next() {
		var order int
		if err := rows.Scan(&order); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan tier order")
		}
		orders[order] = struct{}{}
	}
	return orders, nil
}

// ListActionableRequests returns requests awaiting action, oldest first.
func (s *PostgresStore) ListActionableRequests(ctx context.Context, limit, offset int) ([]*Request, error) {
	query := `
		SELECT id, amount, status, submitter_id, description,
		       rejection_reason, clarification_question,
		       created_at, updated_at
		FROM expense_requests
		WHERE status IN ('submitted', 'pending_approval')
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list actionable requests")
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan request")
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// AtomicTransition commits the status change, appended action and request
// field updates in one transaction. The UPDATE is guarded on the expected
// status: zero rows means either the request vanished (not_found) or a
// concurrent writer advanced it first (conflict). Races the status guard
// cannot see (two approvals at the same mid-walk tier keep the status at
// pending_approval) are caught by the unique index on approved actions when
// insertAction runs.
func (s *PostgresStore) AtomicTransition(
	ctx context.Context,
	requestID string,
	expectedStatus, newStatus RequestStatus,
	action *ApprovalAction,
	update RequestUpdate,
) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		set := "status = $3, updated_at = NOW()"
		args := []any{requestID, expectedStatus, newStatus}

		if update.ClearReview {
			set += ", rejection_reason = NULL, clarification_question = NULL"
		}
		if update.RejectionReason != nil {
			args = append(args, update.RejectionReason)
			set += fmt.Sprintf(", rejection_reason = $%d", len(args))
		}
		if update.ClarificationQuestion != nil {
			args = append(args, update.ClarificationQuestion)
			set += fmt.Sprintf(", clarification_question = $%d", len(args))
		}

		query := fmt.Sprintf(`
			UPDATE expense_requests
			SET %s
			WHERE id = $1 AND status = $2::request_status
			RETURNING id
		`, set)

		var returnedID string
		err := tx.QueryRow(ctx, query, args...).Scan(&returnedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.classifyGuardFailure(ctx, tx, requestID, expectedStatus)
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to transition request")
		}

		return insertAction(ctx, tx, action)
	})
}

// classifyGuardFailure distinguishes a missing request from a lost
// optimistic-concurrency race.
func (s *PostgresStore) classifyGuardFailure(ctx context.Context, tx pgx.Tx, requestID string, expected RequestStatus) error {
	var current RequestStatus
	err := tx.QueryRow(ctx, `SELECT status FROM expense_requests WHERE id = $1`, requestID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("request", requestID)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to read request status")
	}
	return apperrors.New(apperrors.ErrCodeConflict,
		fmt.Sprintf("request %s moved from %s to %s during the decision", requestID, expected, current))
}

// ── scan helper ───────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row requestScanner) (*Request, error) {
	req := &Request{}
	err := row.Scan(
		&req.ID,
		&req.Amount,
		&req.Status,
		&req.SubmitterID,
		&req.Description,
		&req.RejectionReason,
		&req.ClarificationQuestion,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
