package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
	"github.com/SAH-VenD/expense-approvals/internal/repository"
)

// DelegationService manages time-bound delegations of approval authority.
type DelegationService struct {
	store repository.Store
	log   zerolog.Logger
}

// NewDelegationService creates a new DelegationService.
func NewDelegationService(store repository.Store, log zerolog.Logger) *DelegationService {
	return &DelegationService{
		store: store,
		log:   log.With().Str("service", "delegation").Logger(),
	}
}

// Create validates and persists a new delegation. A delegator may hold at
// most one active delegation per overlapping window.
func (s *DelegationService) Create(ctx context.Context, fromUserID, toUserID string, start, end time.Time, reason *string) (*repository.Delegation, error) {
	if !end.After(start) {
		return nil, apperrors.InvalidInput("end_date", "end date must be after start date")
	}
	if _, err := s.store.LoadPrincipal(ctx, toUserID); err != nil {
		return nil, err
	}

	existing, err := s.store.FindOverlappingDelegation(ctx, fromUserID, start, end)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.ErrCodeConflict,
			fmt.Sprintf("an active delegation already covers %s to %s",
				existing.StartDate.Format(time.DateOnly), existing.EndDate.Format(time.DateOnly)))
	}

	d := &repository.Delegation{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		StartDate:  start,
		EndDate:    end,
		Reason:     reason,
		Active:     true,
	}
	if err := s.store.CreateDelegation(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("delegation_id", d.ID).
		Str("from_user_id", fromUserID).
		Str("to_user_id", toUserID).
		Time("start", start).
		Time("end", end).
		Msg("Delegation created")

	return d, nil
}

// Revoke soft-revokes a delegation. Only the delegator may revoke; the record
// stays on file for audit.
func (s *DelegationService) Revoke(ctx context.Context, callerID, delegationID string) error {
	d, err := s.store.GetDelegation(ctx, delegationID)
	if err != nil {
		return err
	}
	if d.FromUserID != callerID {
		return apperrors.New(apperrors.ErrCodeForbidden, "only the delegator can revoke the delegation")
	}

	if err := s.store.RevokeDelegation(ctx, delegationID, time.Now()); err != nil {
		return err
	}

	s.log.Info().
		Str("delegation_id", delegationID).
		Str("revoked_by", callerID).
		Msg("Delegation revoked")

	return nil
}

// ListActive returns delegations where userID is delegator or delegate,
// active and currently in window.
func (s *DelegationService) ListActive(ctx context.Context, userID string, now time.Time) ([]*repository.Delegation, error) {
	return s.store.ListActiveDelegations(ctx, userID, now)
}
