package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/identity"
)

func guarded(sessions sessionState, roles ...identity.Role) http.Handler {
	return newSessionGuard(sessions, roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFromContext(r.Context()) == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestSessionGuardWaitsWhileLoading(t *testing.T) {
	next := guarded(&fakeAuthContext{loading: true})

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/status", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestSessionGuardRejectsAnonymous(t *testing.T) {
	next := guarded(&fakeAuthContext{})

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/status", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestSessionGuardChecksRole(t *testing.T) {
	vendor := &identity.User{ID: "1", Role: identity.RoleVendor}
	next := guarded(&fakeAuthContext{user: vendor}, identity.RoleAdmin, identity.RoleStaff)

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/2", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestSessionGuardInjectsUser(t *testing.T) {
	staff := &identity.User{ID: "1", Role: identity.RoleStaff}
	next := guarded(&fakeAuthContext{user: staff}, identity.RoleAdmin, identity.RoleStaff)

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	next := newSecurityHeadersMiddleware("production")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("unexpected Referrer-Policy %q", rec.Header().Get("Referrer-Policy"))
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS outside development")
	}
}

func TestOriginGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    int
	}{
		{"no origin header", []string{"http://frontend.test"}, "", http.StatusOK},
		{"listed origin", []string{"http://frontend.test/"}, "http://frontend.test", http.StatusOK},
		{"foreign origin", []string{"http://frontend.test"}, "http://evil.test", http.StatusForbidden},
		{"wildcard", []string{"*"}, "http://evil.test", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			newOriginGuard(tt.allowed)(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
