package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ─── Webhook Handler Tests ───

func TestWebhookPush_InvalidBody(t *testing.T) {
	h := NewWebhookHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/push", strings.NewReader("not json"))
	rr := httptest.NewRecorder()

	h.Push(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestWebhookPush_MissingRepoURL(t *testing.T) {
	body, _ := json.Marshal(map[string]interface{}{
		"commits": []map[string]interface{}{},
	})

	h := NewWebhookHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/push", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	h.Push(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestPushPayloadParsing(t *testing.T) {
	raw := `{
		"repository": {"html_url": "https://github.com/pact/daily"},
		"commits": [
			{
				"id": "a1b2c3d4",
				"message": "day 12",
				"timestamp": "2024-05-01T23:50:00+09:00",
				"author": {"email": "a@example.com"}
			}
		]
	}`

	var payload PushPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("failed to parse payload: %v", err)
	}

	if payload.Repository.HTMLURL != "https://github.com/pact/daily" {
		t.Errorf("repo URL = %q", payload.Repository.HTMLURL)
	}
	if len(payload.Commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(payload.Commits))
	}

	commit := payload.Commits[0]
	if commit.ID != "a1b2c3d4" || commit.Author.Email != "a@example.com" {
		t.Errorf("unexpected commit: %+v", commit)
	}
	if commit.Timestamp.UTC().Hour() != 14 { // 23:50 KST is 14:50 UTC
		t.Errorf("timestamp not parsed with offset: %v", commit.Timestamp)
	}
}

// ─── Study Handler Tests ───

func TestCreateStudy_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"empty body", map[string]interface{}{}},
		{"missing name", map[string]interface{}{
			"repo_url": "https://github.com/pact/daily", "ledger_ref": "s1",
			"start_offset_seconds": 39600, "end_offset_seconds": 90000,
		}},
		{"http repo url", map[string]interface{}{
			"name": "daily", "repo_url": "http://github.com/pact/daily", "ledger_ref": "s1",
			"start_offset_seconds": 39600, "end_offset_seconds": 90000,
		}},
		{"window 24h", map[string]interface{}{
			"name": "daily", "repo_url": "https://github.com/pact/daily", "ledger_ref": "s1",
			"start_offset_seconds": 3600, "end_offset_seconds": 90000,
		}},
		{"end before start", map[string]interface{}{
			"name": "daily", "repo_url": "https://github.com/pact/daily", "ledger_ref": "s1",
			"start_offset_seconds": 7200, "end_offset_seconds": 3600,
		}},
	}

	h := NewStudyHandler(nil, nil)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/studies", bytes.NewReader(body))
			rr := httptest.NewRecorder()

			h.Create(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestAddParticipant_InvalidEmail(t *testing.T) {
	body, _ := json.Marshal(map[string]string{
		"email":          "not-an-email",
		"wallet_address": "0xaaa",
	})

	h := NewStudyHandler(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/studies/abc/participants", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	h.AddParticipant(rr, req)

	// Bad study ID in the URL short-circuits before the email check
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

// ─── Session Handler Tests ───

func TestListSessions_InvalidFilters(t *testing.T) {
	h := NewSessionHandler(nil, nil, nil)

	tests := []struct {
		name  string
		query string
	}{
		{"bad study_id", "?study_id=not-a-uuid"},
		{"bad status", "?status=OPEN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions"+tc.query, nil)
			rr := httptest.NewRecorder()

			h.List(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestFailSession_InvalidBody(t *testing.T) {
	h := NewSessionHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/x/fail", strings.NewReader("not json"))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", uuid.New().String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	h.Fail(rr, req)

	// A malformed reason body is rejected before any status transition.
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

// ─── JSON Response Tests ───

func TestErrorRespCarriesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("X-Request-ID", "req-123")

	resp := errorResp("VALIDATION_ERROR", "bad input", req)
	if resp.Error.RequestID != "req-123" {
		t.Errorf("request_id = %q, want req-123", resp.Error.RequestID)
	}
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", resp.Error.Code)
	}
}
