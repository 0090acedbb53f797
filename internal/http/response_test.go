package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/api"
	"storefront/internal/auth"
)

func TestDecodeJSONBody_AllowsPayloadWithinLimit(t *testing.T) {
	req := jsonRequest(http.MethodPost, "/api/session", `{"token":"abc"}`)
	rec := httptest.NewRecorder()

	var dst map[string]string
	if err := decodeJSONBody(rec, req, &dst); err != nil {
		t.Fatalf("decodeJSONBody returned error: %v", err)
	}
	if dst["token"] != "abc" {
		t.Fatalf("expected key to be decoded, got %v", dst)
	}
}

func TestDecodeJSONBody_RejectsPayloadExceedingLimit(t *testing.T) {
	var b strings.Builder
	b.Grow(int(maxJSONBodyBytes) + 32)
	b.WriteString(`{"token":"`)
	for i := int64(0); i < maxJSONBodyBytes; i++ {
		b.WriteByte('a')
	}
	b.WriteString(`"}`)

	req := jsonRequest(http.MethodPost, "/api/session", b.String())
	rec := httptest.NewRecorder()

	var dst map[string]string
	err := decodeJSONBody(rec, req, &dst)
	if err == nil {
		t.Fatal("expected error for oversized payload")
	}
	if !strings.Contains(err.Error(), "payload too large") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteUpstreamErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty login", auth.ErrEmptyLogin, http.StatusBadRequest},
		{"unauthorized", &api.ResponseError{StatusCode: 401}, http.StatusUnauthorized},
		{"verification failed", fmt.Errorf("%w: nope", auth.ErrVerificationFailed), http.StatusUnauthorized},
		{"unavailable", fmt.Errorf("%w: refused", api.ErrUnavailable), http.StatusServiceUnavailable},
		{"not found", &api.ResponseError{StatusCode: 404, Message: "missing"}, http.StatusNotFound},
		{"upstream failure", &api.ResponseError{StatusCode: 500, Message: "boom"}, http.StatusBadGateway},
		{"unknown", errors.New("disk"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeUpstreamError(rec, tt.err, discardLogger())
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if wantsJSON(req) {
		t.Fatal("expected no JSON preference without Accept header")
	}
	req.Header.Set("Accept", "application/json")
	if !wantsJSON(req) {
		t.Fatal("expected JSON preference")
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9")
	if wantsJSON(req) {
		t.Fatal("browsers that accept HTML get pages")
	}
}
