package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"storefront/internal/oauth"
)

// isValidRedirectPath validates that a path is a safe relative redirect.
// It prevents open redirect attacks by ensuring the path:
// - Starts with a single "/" (not "//")
// - Has no scheme or host component
// - Cannot be bypassed via URL encoding
func isValidRedirectPath(path string) bool {
	if path == "" {
		return false
	}

	// Decode to catch encoded bypass attempts like /%2f%2f
	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}

	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}
	return parsed.Scheme == "" && parsed.Host == ""
}

// artifactParams are the query keys that show a callback already carries something to
// reconcile; without any of them the fragment has to be relayed first.
var artifactParams = []string{
	"token", "access_token", "accessToken", "code", "error",
	"data", "payload", "auth", "user", oauth.FragmentParam,
}

type directFlow interface {
	Begin(ctx context.Context) (string, error)
}

// OAuthHandler serves the provider callback entry points and login initiation.
type OAuthHandler struct {
	apiBaseURL  string
	frontendURL string
	direct      directFlow
	logger      *slog.Logger
}

// NewOAuthHandler creates a new OAuthHandler. direct may be nil when the agent-initiated
// Google flow is not configured.
func NewOAuthHandler(apiBaseURL, frontendURL string, direct directFlow, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		apiBaseURL:  strings.TrimSuffix(apiBaseURL, "/"),
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
		direct:      direct,
		logger:      logger,
	}
}

// Callback returns the handler for one entry point.
func (h *OAuthHandler) Callback(rec *oauth.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !wantsJSON(r) && needsFragmentRelay(r.URL) {
			if err := renderPage(w, "relay.html", relayPage{Param: oauth.FragmentParam, FallbackURL: relayFallback(r.URL)}); err != nil {
				h.logger.Error("render relay page", "error", err)
			}
			return
		}

		out := rec.Reconcile(r.Context(), oauth.NewRequest(r.URL))

		if wantsJSON(r) {
			status := http.StatusOK
			if out.State == oauth.StateError {
				status = http.StatusUnauthorized
			}
			writeJSON(w, status, map[string]any{
				"state":      out.State,
				"provider":   out.Provider,
				"message":    out.Message,
				"redirectTo": h.frontendURL + out.RedirectTo,
				"delayMs":    out.DelayMillis(),
				"user":       out.User,
			})
			return
		}

		if err := renderPage(w, "callback.html", newCallbackPage(out, h.frontendURL)); err != nil {
			h.logger.Error("render callback page", "entry", rec.Name(), "error", err)
		}
	}
}

// InitiateProvider handles GET /auth/{provider}/login by sending the browser to the
// storefront API's provider start endpoint.
func (h *OAuthHandler) InitiateProvider(w http.ResponseWriter, r *http.Request) {
	provider := oauth.Provider(strings.ToLower(chi.URLParam(r, "provider")))
	if provider != oauth.Google && provider != oauth.Facebook {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	target := h.apiBaseURL + "/auth/" + string(provider)
	if redirectTo := r.URL.Query().Get("redirectTo"); redirectTo != "" && isValidRedirectPath(redirectTo) {
		target += "?redirectTo=" + url.QueryEscape(redirectTo)
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// InitiateGoogleDirect handles GET /auth/google/direct.
func (h *OAuthHandler) InitiateGoogleDirect(w http.ResponseWriter, r *http.Request) {
	if h.direct == nil {
		writeError(w, http.StatusNotFound, "direct Google sign-in is not configured")
		return
	}

	authURL, err := h.direct.Begin(r.Context())
	if err != nil {
		h.logger.Error("failed to start Google sign-in", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

func needsFragmentRelay(u *url.URL) bool {
	q := u.Query()
	for _, key := range artifactParams {
		if q.Has(key) {
			return false
		}
	}
	return true
}
