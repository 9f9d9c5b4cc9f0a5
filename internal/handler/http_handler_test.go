package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAH-VenD/expense-approvals/internal/repository"
	"github.com/SAH-VenD/expense-approvals/internal/repository/memory"
	"github.com/SAH-VenD/expense-approvals/internal/service"
)

type nopSink struct{}

func (nopSink) RecordAuditEvent(context.Context, service.AuditEvent) {}

func newTestHandler(t *testing.T) (*HTTPHandler, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	for _, p := range []*repository.Principal{
		{ID: "submitter-1", Name: "Sam", Role: repository.RoleManager},
		{ID: "manager-1", Name: "Mae", Role: repository.RoleManager},
		{ID: "finance-1", Name: "Fin", Role: repository.RoleFinance},
	} {
		store.AddPrincipal(p)
	}
	require.NoError(t, store.CreateTier(context.Background(), &repository.Tier{
		Name: "Manager Review", Order: 1, MinAmount: 0, RequiredRole: repository.RoleManager, Active: true,
	}))

	log := zerolog.Nop()
	approvals := service.NewApprovalService(store, service.NewAuthorizer(store), nopSink{}, log)
	delegations := service.NewDelegationService(store, log)
	tiers := service.NewTierService(store, log)
	return NewHTTPHandler(approvals, delegations, tiers, nil, log), store
}

func postJSON(t *testing.T, fn http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func submitViaAPI(t *testing.T, h *HTTPHandler, amount int64) string {
	t.Helper()
	rec := postJSON(t, h.SubmitRequest, map[string]any{
		"submitter_id": "submitter-1",
		"amount":       amount,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct{ ID string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestSubmitAndApprove(t *testing.T) {
	h, _ := newTestHandler(t)
	id := submitViaAPI(t, h, 50_000)

	rec := postJSON(t, h.Approve, map[string]any{
		"request_id": id,
		"actor_id":   "manager-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated struct{ Status string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "approved", updated.Status)
}

func TestValidationFailuresReturn400(t *testing.T) {
	h, _ := newTestHandler(t)

	// Missing required fields.
	rec := postJSON(t, h.Approve, map[string]any{"actor_id": "manager-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	raw := httptest.NewRecorder()
	h.Approve(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	// Non-positive amount is rejected before it reaches the service.
	rec = postJSON(t, h.SubmitRequest, map[string]any{"submitter_id": "submitter-1", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorCodeMapping(t *testing.T) {
	h, _ := newTestHandler(t)

	// Unknown request: 404.
	rec := postJSON(t, h.Approve, map[string]any{"request_id": "missing", "actor_id": "manager-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)

	// Acting on a finished request: 422, a workflow violation.
	id := submitViaAPI(t, h, 50_000)
	rec = postJSON(t, h.Approve, map[string]any{"request_id": id, "actor_id": "manager-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postJSON(t, h.Approve, map[string]any{"request_id": id, "actor_id": "manager-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Resubmission by a non-owner: 403.
	id = submitViaAPI(t, h, 50_000)
	rec = postJSON(t, h.Reject, map[string]any{"request_id": id, "actor_id": "manager-1", "reason": "no"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postJSON(t, h.Resubmit, map[string]any{"request_id": id, "caller_id": "manager-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBulkApproveEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	id := submitViaAPI(t, h, 50_000)

	rec := postJSON(t, h.BulkApprove, map[string]any{
		"actor_id":    "manager-1",
		"request_ids": []string{id, "missing"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result service.BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, service.BulkSummary{Total: 2, Successful: 1, Failed: 1}, result.Summary)
	require.Len(t, result.Results, 2)
	assert.Equal(t, id, result.Results[0].RequestID)
}

func TestPendingEndpointRequiresPrincipal(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/pending", nil)
	rec := httptest.NewRecorder()
	h.PendingApprovals(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := submitViaAPI(t, h, 50_000)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/requests/pending?principal_id=manager-1", nil)
	rec = httptest.NewRecorder()
	h.PendingApprovals(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)
}

func TestDelegationEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.CreateDelegation, map[string]any{
		"from_user_id": "finance-1",
		"to_user_id":   "manager-1",
		"start_date":   "2026-03-01",
		"end_date":     "2026-03-10",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct{ ID string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Bad date format.
	rec = postJSON(t, h.CreateDelegation, map[string]any{
		"from_user_id": "finance-1",
		"to_user_id":   "manager-1",
		"start_date":   "03/01/2026",
		"end_date":     "2026-03-10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Overlap conflict.
	rec = postJSON(t, h.CreateDelegation, map[string]any{
		"from_user_id": "finance-1",
		"to_user_id":   "manager-1",
		"start_date":   "2026-03-05",
		"end_date":     "2026-03-20",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, h.RevokeDelegation, map[string]any{
		"delegation_id": created.ID,
		"caller_id":     "finance-1",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTierEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postJSON(t, h.CreateTier, map[string]any{
		"name":          "Finance Review",
		"order":         2,
		"min_amount":    100_000,
		"required_role": "finance",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct{ ID string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Unknown role fails validation in the service.
	rec = postJSON(t, h.CreateTier, map[string]any{
		"name":          "Bad",
		"order":         3,
		"required_role": "intern",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tiers?active_only=true", nil)
	list := httptest.NewRecorder()
	h.ListTiers(list, req)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), "Finance Review")

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/tiers/deactivate?id=%s", created.ID), nil)
	deact := httptest.NewRecorder()
	h.DeactivateTier(deact, req)
	assert.Equal(t, http.StatusNoContent, deact.Code)
}
