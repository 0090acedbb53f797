package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storefront/internal/api"
	"storefront/internal/identity"
)

// State is the phase of a callback page.
type State string

const (
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Outcome is the terminal result of one callback.
type Outcome struct {
	State      State
	Provider   Provider
	Message    string
	RedirectTo string
	Delay      time.Duration
	User       *identity.User
	Strategy   string
}

// DelayMillis exposes Delay to pages and JSON clients.
func (o Outcome) DelayMillis() int64 {
	return o.Delay.Milliseconds()
}

// Sessions accepts the signed-in session.
type Sessions interface {
	Login(ctx context.Context, token string, user *identity.User) error
}

// Reconciler runs its strategies strictly in order; the first artifact found wins.
type Reconciler struct {
	name         string
	provider     Provider
	strategies   []Strategy
	verifier     userVerifier
	sessions     Sessions
	logger       *slog.Logger
	successDelay time.Duration
	errorDelay   time.Duration
}

// Exchanger is the part of the storefront API that redeems OAuth artifacts.
type Exchanger interface {
	callbackExchanger
	idTokenExchanger
}

// Deps are the collaborators shared by every entry point.
type Deps struct {
	API          Exchanger
	Verifier     userVerifier
	Sessions     Sessions
	Logger       *slog.Logger
	SuccessDelay time.Duration
	ErrorDelay   time.Duration
}

// NewReconciler builds an entry point from an explicit strategy list.
func NewReconciler(name string, provider Provider, deps Deps, strategies ...Strategy) *Reconciler {
	return &Reconciler{
		name:         name,
		provider:     provider,
		strategies:   strategies,
		verifier:     deps.Verifier,
		sessions:     deps.Sessions,
		logger:       deps.Logger.With("component", "oauth", "entry", name),
		successDelay: deps.SuccessDelay,
		errorDelay:   deps.ErrorDelay,
	}
}

// GoogleAuthCallback handles the provider redirect that lands on the agent directly.
func GoogleAuthCallback(deps Deps) *Reconciler {
	return NewReconciler("GoogleAuthCallback", Google, deps,
		BearerTokenInURL{},
		AuthCodeRedirect{Provider: Google, API: deps.API},
		InlineJSONPayload{},
		AmbientSession{Verifier: deps.Verifier},
	)
}

// GoogleAuthBackend handles the backend's post-login redirect.
func GoogleAuthBackend(deps Deps) *Reconciler {
	return NewReconciler("GoogleAuthBackend", Google, deps,
		BearerTokenInURL{},
		InlineJSONPayload{},
		AmbientSession{Verifier: deps.Verifier},
	)
}

// GoogleAuthDirect handles the callback of the agent-initiated PKCE flow.
func GoogleAuthDirect(deps Deps, redeemer codeRedeemer) *Reconciler {
	return NewReconciler("GoogleAuthDirect", Google, deps,
		ProviderCodeExchange{Provider: Google, Redeemer: redeemer, API: deps.API},
		BearerTokenInURL{},
		AmbientSession{Verifier: deps.Verifier},
	)
}

// FacebookAuthCallback handles the Facebook redirect.
func FacebookAuthCallback(deps Deps) *Reconciler {
	return NewReconciler("FacebookAuthCallback", Facebook, deps,
		BearerTokenInURL{},
		AuthCodeRedirect{Provider: Facebook, API: deps.API},
		InlineJSONPayload{},
		AmbientSession{Verifier: deps.Verifier},
	)
}

// Provider returns the identity provider this entry point serves.
func (r *Reconciler) Provider() Provider {
	return r.provider
}

// Name identifies the entry point in logs.
func (r *Reconciler) Name() string {
	return r.name
}

// Reconcile drives one callback to a terminal outcome. It never returns an error: every
// failure becomes a StateError outcome.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) Outcome {
	if code := req.Param("error"); code != "" {
		r.logger.Warn("provider returned an error", "code", code, "description", req.Param("error_description"))
		return r.failure(ErrorMessage(r.provider, code))
	}

	for _, strategy := range r.strategies {
		art, found, err := strategy.Extract(ctx, req)
		if err != nil {
			r.logger.Error("artifact could not be redeemed", "strategy", strategy.Name(), "error", err)
			return r.failure(r.describe(err))
		}
		if !found {
			continue
		}
		return r.complete(ctx, strategy.Name(), art)
	}

	r.logger.Warn("callback carried no authentication data")
	return r.failure(fmt.Sprintf("No authentication data was received from %s. Please try again.", r.provider.DisplayName()))
}

func (r *Reconciler) complete(ctx context.Context, strategy string, art Artifact) Outcome {
	user := art.User
	if user == nil {
		resolved, err := r.verifier.Verify(ctx, art.Token, nil)
		if err != nil {
			r.logger.Error("could not resolve user", "strategy", strategy, "error", err)
			return r.failure(r.describe(err))
		}
		user = &resolved
	}

	if err := r.sessions.Login(ctx, art.Token, user); err != nil {
		r.logger.Error("login failed", "strategy", strategy, "error", err)
		return r.failure(r.describe(err))
	}

	r.logger.Info("callback reconciled", "strategy", strategy, "user_id", user.ID, "role", user.Role)
	name := user.Username
	if name == "" {
		name = user.Email
	}
	return Outcome{
		State:      StateSuccess,
		Provider:   r.provider,
		Message:    fmt.Sprintf("Signed in as %s. Redirecting...", name),
		RedirectTo: identity.RedirectPath(user.Role),
		Delay:      r.successDelay,
		User:       user,
		Strategy:   strategy,
	}
}

func (r *Reconciler) failure(message string) Outcome {
	return Outcome{
		State:      StateError,
		Provider:   r.provider,
		Message:    message,
		RedirectTo: identity.HomePath,
		Delay:      r.errorDelay,
	}
}

func (r *Reconciler) describe(err error) string {
	var respErr *api.ResponseError
	switch {
	case api.IsUnavailable(err):
		return "The storefront is unreachable right now. Please try again shortly."
	case errors.Is(err, ErrStateMismatch):
		return "Your sign-in session expired. Please try again."
	case errors.As(err, &respErr) && respErr.Message != "":
		return fmt.Sprintf("%s sign-in failed: %s", r.provider.DisplayName(), respErr.Message)
	default:
		return fmt.Sprintf("%s sign-in failed. Please try again.", r.provider.DisplayName())
	}
}
