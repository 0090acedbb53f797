package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/identity"
)

// AuthContext is the auth state the HTTP surface exposes.
type AuthContext interface {
	State() auth.State
	IsLoading() bool
	User() *identity.User
	Login(ctx context.Context, token string, user *identity.User) error
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) (bool, error)
	UserStatus(ctx context.Context) (api.UserStatus, error)
	FetchUserData(ctx context.Context, id string) (identity.User, error)
}

// SessionHandler serves the auth context to storefront pages.
type SessionHandler struct {
	auth        AuthContext
	frontendURL string
	logger      *slog.Logger
}

// NewSessionHandler returns a handler backed by the auth context.
func NewSessionHandler(authCtx AuthContext, frontendURL string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		auth:        authCtx,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
		logger:      logger,
	}
}

// Status handles GET /api/session.
func (h *SessionHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.auth.State())
}

type loginRequest struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// Login handles POST /api/session. Pages that authenticate by email and password hand
// their result over here.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	var user *identity.User
	if len(payload.User) > 0 && string(payload.User) != "null" {
		decoded, err := identity.DecodeUser(payload.User)
		if err != nil {
			writeError(w, http.StatusBadRequest, "user must carry an id")
			return
		}
		user = &decoded
	}

	if err := h.auth.Login(r.Context(), strings.TrimSpace(payload.Token), user); err != nil {
		writeUpstreamError(w, err, h.logger)
		return
	}

	state := h.auth.State()
	redirect := identity.HomePath
	if state.User != nil {
		redirect = identity.RedirectPath(state.User.Role)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": state.Authenticated,
		"user":          state.User,
		"redirectTo":    redirect,
	})
}

// Logout handles DELETE /api/session and sends the browser back to the frontend root.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.logger.Error("logout failed", "error", err)
	}

	home := h.frontendURL + identity.HomePath
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]string{"redirectTo": home})
		return
	}
	http.Redirect(w, r, home, http.StatusSeeOther)
}

// Refresh handles POST /api/session/refresh.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshed, err := h.auth.Refresh(r.Context())
	if err != nil {
		writeUpstreamError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": refreshed})
}

// UserStatus handles GET /api/session/status.
func (h *SessionHandler) UserStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.auth.UserStatus(r.Context())
	if err != nil {
		writeUpstreamError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// FetchUser handles GET /api/users/{id}.
func (h *SessionHandler) FetchUser(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if requester := userFromContext(r.Context()); requester != nil {
		h.logger.Info("user record requested", "user_id", id, "requested_by", requester.ID, "role", requester.Role)
	}
	user, err := h.auth.FetchUserData(r.Context(), id)
	if err != nil {
		writeUpstreamError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
