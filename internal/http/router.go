package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"storefront/internal/config"
	"storefront/internal/identity"
	"storefront/internal/oauth"
)

// Callbacks are the OAuth entry points mounted by the router.
type Callbacks struct {
	GoogleCallback   *oauth.Reconciler
	GoogleBackend    *oauth.Reconciler
	GoogleDirect     *oauth.Reconciler
	FacebookCallback *oauth.Reconciler
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, authCtx AuthContext, oauthHandler *OAuthHandler, callbacks Callbacks, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
			"loading":     authCtx.IsLoading(),
		})
	})

	sessionHandler := NewSessionHandler(authCtx, cfg.FrontendURL, logger)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/{provider}/login", oauthHandler.InitiateProvider)
		r.Get("/google/direct", oauthHandler.InitiateGoogleDirect)
		mountCallback(r, "/google/callback", callbacks.GoogleCallback, oauthHandler)
		mountCallback(r, "/google/success", callbacks.GoogleBackend, oauthHandler)
		mountCallback(r, "/google/direct/callback", callbacks.GoogleDirect, oauthHandler)
		mountCallback(r, "/facebook/callback", callbacks.FacebookCallback, oauthHandler)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			originGuard := newOriginGuard(cfg.AllowedOrigins)
			r.Get("/", sessionHandler.Status)
			r.With(originGuard).Post("/", sessionHandler.Login)
			r.With(originGuard).Delete("/", sessionHandler.Logout)
			r.With(originGuard).Post("/refresh", sessionHandler.Refresh)
			r.With(newSessionGuard(authCtx)).Get("/status", sessionHandler.UserStatus)
		})

		r.With(newSessionGuard(authCtx, identity.RoleAdmin, identity.RoleStaff)).Get("/users/{id}", sessionHandler.FetchUser)
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}

func mountCallback(r chi.Router, pattern string, rec *oauth.Reconciler, h *OAuthHandler) {
	if rec == nil {
		return
	}
	r.Get(pattern, h.Callback(rec))
}
