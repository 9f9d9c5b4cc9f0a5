package service

import (
	"context"
)

// BulkItemResult is the tagged outcome of one item in a bulk operation.
type BulkItemResult struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BulkSummary aggregates a bulk operation's outcomes.
type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BulkResult is the full outcome of a bulk operation. Result ordering always
// matches the input requestIDs ordering.
type BulkResult struct {
	Summary BulkSummary      `json:"summary"`
	Results []BulkItemResult `json:"results"`
}

// BulkApprove fans the single-item Approve command out over requestIDs,
// sequentially and in input order. Each item is isolated: a failure is
// captured into its result entry and never aborts the batch, and there is no
// rollback of already-succeeded items.
func (s *ApprovalService) BulkApprove(ctx context.Context, actorID string, requestIDs []string, comment *string, emergency bool, emergencyReason string) *BulkResult {
	return s.runBulk(requestIDs, func(requestID string) error {
		_, err := s.Approve(ctx, ApproveCommand{
			RequestID:       requestID,
			ActorID:         actorID,
			Comment:         comment,
			Emergency:       emergency,
			EmergencyReason: emergencyReason,
		})
		return err
	})
}

// BulkReject fans the single-item Reject command out over requestIDs with the
// same isolation contract as BulkApprove.
func (s *ApprovalService) BulkReject(ctx context.Context, actorID string, requestIDs []string, reason string) *BulkResult {
	return s.runBulk(requestIDs, func(requestID string) error {
		_, err := s.Reject(ctx, RejectCommand{
			RequestID: requestID,
			ActorID:   actorID,
			Reason:    reason,
		})
		return err
	})
}

// runBulk folds fn over the IDs, accumulating tagged results.
func (s *ApprovalService) runBulk(requestIDs []string, fn func(requestID string) error) *BulkResult {
	result := &BulkResult{
		Summary: BulkSummary{Total: len(requestIDs)},
		Results: make([]BulkItemResult, 0, len(requestIDs)),
	}

	for _, id := range requestIDs {
		if err := fn(id); err != nil {
			result.Summary.Failed++
			result.Results = append(result.Results, BulkItemResult{RequestID: id, Error: err.Error()})
			continue
		}
		result.Summary.Successful++
		result.Results = append(result.Results, BulkItemResult{RequestID: id, Success: true})
	}
	return result
}
