package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/SAH-VenD/expense-approvals/internal/apperrors"
	"github.com/SAH-VenD/expense-approvals/internal/repository"
	"github.com/SAH-VenD/expense-approvals/internal/service"
)

// HTTPHandler handles HTTP requests for the approvals API.
type HTTPHandler struct {
	approvals   *service.ApprovalService
	delegations *service.DelegationService
	tiers       *service.TierService
	validate    *validator.Validate
	metrics     *Metrics
	log         zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler. metrics may be nil in tests.
func NewHTTPHandler(
	approvals *service.ApprovalService,
	delegations *service.DelegationService,
	tiers *service.TierService,
	metrics *Metrics,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		approvals:   approvals,
		delegations: delegations,
		tiers:       tiers,
		validate:    validator.New(),
		metrics:     metrics,
		log:         log.With().Str("handler", "http").Logger(),
	}
}

func (h *HTTPHandler) countDecision(kind string) {
	if h.metrics != nil {
		h.metrics.DecisionsTotal.WithLabelValues(kind).Inc()
	}
}

// ── Request DTOs ──────────────────────────────────────────────────────────────

type submitRequest struct {
	SubmitterID string  `json:"submitter_id" validate:"required"`
	Amount      int64   `json:"amount" validate:"required,gt=0"`
	Description *string `json:"description"`
}

type approveRequest struct {
	RequestID       string  `json:"request_id" validate:"required"`
	ActorID         string  `json:"actor_id" validate:"required"`
	Comment         *string `json:"comment"`
	Emergency       bool    `json:"emergency"`
	EmergencyReason string  `json:"emergency_reason"`
}

type rejectRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	ActorID   string `json:"actor_id" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

type clarifyRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	ActorID   string `json:"actor_id" validate:"required"`
	Question  string `json:"question" validate:"required"`
}

type resubmitRequest struct {
	RequestID string  `json:"request_id" validate:"required"`
	CallerID  string  `json:"caller_id" validate:"required"`
	Note      *string `json:"note"`
}

type bulkApproveRequest struct {
	ActorID         string   `json:"actor_id" validate:"required"`
	RequestIDs      []string `json:"request_ids" validate:"required,min=1"`
	Comment         *string  `json:"comment"`
	Emergency       bool     `json:"emergency"`
	EmergencyReason string   `json:"emergency_reason"`
}

type bulkRejectRequest struct {
	ActorID    string   `json:"actor_id" validate:"required"`
	RequestIDs []string `json:"request_ids" validate:"required,min=1"`
	Reason     string   `json:"reason" validate:"required"`
}

type createTierRequest struct {
	Name         string `json:"name" validate:"required"`
	Order        int    `json:"order" validate:"required,gt=0"`
	MinAmount    int64  `json:"min_amount" validate:"gte=0"`
	MaxAmount    *int64 `json:"max_amount"`
	RequiredRole string `json:"required_role" validate:"required"`
}

type createDelegationRequest struct {
	FromUserID string  `json:"from_user_id" validate:"required"`
	ToUserID   string  `json:"to_user_id" validate:"required"`
	StartDate  string  `json:"start_date" validate:"required"`
	EndDate    string  `json:"end_date" validate:"required"`
	Reason     *string `json:"reason"`
}

type revokeDelegationRequest struct {
	DelegationID string `json:"delegation_id" validate:"required"`
	CallerID     string `json:"caller_id" validate:"required"`
}

// ── Request lifecycle endpoints ───────────────────────────────────────────────

// SubmitRequest handles expense request creation.
func (h *HTTPHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.approvals.Submit(r.Context(), req.SubmitterID, req.Amount, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// Approve handles single-request approval, standard or emergency.
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.approvals.Approve(r.Context(), service.ApproveCommand{
		RequestID:       req.RequestID,
		ActorID:         req.ActorID,
		Comment:         req.Comment,
		Emergency:       req.Emergency,
		EmergencyReason: req.EmergencyReason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.countDecision("approved")
	h.writeJSON(w, http.StatusOK, updated)
}

// Reject handles single-request rejection.
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.approvals.Reject(r.Context(), service.RejectCommand{
		RequestID: req.RequestID,
		ActorID:   req.ActorID,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.countDecision("rejected")
	h.writeJSON(w, http.StatusOK, updated)
}

// RequestClarification sends a request back to its submitter with a question.
func (h *HTTPHandler) RequestClarification(w http.ResponseWriter, r *http.Request) {
	var req clarifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.approvals.RequestClarification(r.Context(), service.ClarifyCommand{
		RequestID: req.RequestID,
		ActorID:   req.ActorID,
		Question:  req.Question,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.countDecision("clarification_requested")
	h.writeJSON(w, http.StatusOK, updated)
}

// Resubmit re-enters a rejected or clarification-requested request.
func (h *HTTPHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	var req resubmitRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.approvals.Resubmit(r.Context(), service.ResubmitCommand{
		RequestID: req.RequestID,
		CallerID:  req.CallerID,
		Note:      req.Note,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// BulkApprove fans an approval out over a batch of request IDs.
func (h *HTTPHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req bulkApproveRequest
	if !h.decode(w, r, &req) {
		return
	}

	result := h.approvals.BulkApprove(r.Context(), req.ActorID, req.RequestIDs, req.Comment, req.Emergency, req.EmergencyReason)
	h.writeJSON(w, http.StatusOK, result)
}

// BulkReject fans a rejection out over a batch of request IDs.
func (h *HTTPHandler) BulkReject(w http.ResponseWriter, r *http.Request) {
	var req bulkRejectRequest
	if !h.decode(w, r, &req) {
		return
	}

	result := h.approvals.BulkReject(r.Context(), req.ActorID, req.RequestIDs, req.Reason)
	h.writeJSON(w, http.StatusOK, result)
}

// ── Read endpoints ────────────────────────────────────────────────────────────

// PendingApprovals lists the requests a principal may currently act on.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	principalID := r.URL.Query().Get("principal_id")
	if principalID == "" {
		h.writeError(w, apperrors.InvalidInput("principal_id", "principal ID is required"))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	pending, err := h.approvals.PendingFor(r.Context(), principalID, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"requests": pending})
}

// ApprovalHistory lists the actions a principal has performed.
func (h *HTTPHandler) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	principalID := r.URL.Query().Get("principal_id")
	if principalID == "" {
		h.writeError(w, apperrors.InvalidInput("principal_id", "principal ID is required"))
		return
	}

	actions, err := h.approvals.HistoryFor(r.Context(), principalID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// RequestTimeline returns the full audit trail of one request.
func (h *HTTPHandler) RequestTimeline(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		h.writeError(w, apperrors.InvalidInput("request_id", "request ID is required"))
		return
	}

	actions, err := h.approvals.TimelineFor(r.Context(), requestID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// ── Tier endpoints ────────────────────────────────────────────────────────────

// ListTiers lists tiers, optionally active-only.
func (h *HTTPHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"

	tiers, err := h.tiers.List(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

// CreateTier creates a new approval tier.
func (h *HTTPHandler) CreateTier(w http.ResponseWriter, r *http.Request) {
	var req createTierRequest
	if !h.decode(w, r, &req) {
		return
	}

	tier := &repository.Tier{
		Name:         req.Name,
		Order:        req.Order,
		MinAmount:    req.MinAmount,
		MaxAmount:    req.MaxAmount,
		RequiredRole: repository.Role(req.RequiredRole),
		Active:       true,
	}
	if err := h.tiers.Create(r.Context(), tier); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tier)
}

// UpdateTier replaces the configuration of an existing tier.
func (h *HTTPHandler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	tierID := r.URL.Query().Get("id")
	if tierID == "" {
		h.writeError(w, apperrors.InvalidInput("id", "tier ID is required"))
		return
	}

	var req createTierRequest
	if !h.decode(w, r, &req) {
		return
	}

	tier := &repository.Tier{
		ID:           tierID,
		Name:         req.Name,
		Order:        req.Order,
		MinAmount:    req.MinAmount,
		MaxAmount:    req.MaxAmount,
		RequiredRole: repository.Role(req.RequiredRole),
		Active:       true,
	}
	if err := h.tiers.Update(r.Context(), tier); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tier)
}

// DeactivateTier soft-deactivates a tier.
func (h *HTTPHandler) DeactivateTier(w http.ResponseWriter, r *http.Request) {
	tierID := r.URL.Query().Get("id")
	if tierID == "" {
		h.writeError(w, apperrors.InvalidInput("id", "tier ID is required"))
		return
	}

	if err := h.tiers.Deactivate(r.Context(), tierID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Delegation endpoints ──────────────────────────────────────────────────────

// CreateDelegation creates a time-bound delegation of approval authority.
func (h *HTTPHandler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	var req createDelegationRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("start_date", "invalid date format, expected YYYY-MM-DD"))
		return
	}
	end, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("end_date", "invalid date format, expected YYYY-MM-DD"))
		return
	}

	d, err := h.delegations.Create(r.Context(), req.FromUserID, req.ToUserID, start, end, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, d)
}

// RevokeDelegation soft-revokes a delegation.
func (h *HTTPHandler) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	var req revokeDelegationRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.delegations.Revoke(r.Context(), req.CallerID, req.DelegationID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDelegations lists a user's currently active delegations.
func (h *HTTPHandler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, apperrors.InvalidInput("user_id", "user ID is required"))
		return
	}

	delegations, err := h.delegations.ListActive(r.Context(), userID, time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"delegations": delegations})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// decode parses and validates a JSON request body, writing the error response
// itself on failure.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrCodeValidation, "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, apperrors.Wrap(err, apperrors.ErrCodeValidation, "request validation failed"))
		return false
	}
	return true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response body")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}

	h.writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": err.Error(),
		},
	})
}

// httpStatus maps the error taxonomy onto HTTP statuses. invalid_state maps
// to 422 so configuration inconsistencies stay distinguishable from the 409
// concurrency/overlap conflicts.
func httpStatus(code string) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
