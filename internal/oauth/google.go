package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"storefront/internal/storage"
)

// ErrStateMismatch is returned when a callback's state was never issued or was already used.
var ErrStateMismatch = errors.New("oauth: unknown or reused state")

const (
	googleIssuer     = "https://accounts.google.com"
	stateKeyPrefix   = "oauth_state:"
	stateBytesLength = 32
)

// GoogleDirect runs the authorization code flow with PKCE against Google from the agent
// itself. Pending states and their code verifiers live in session-scoped storage.
type GoogleDirect struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	states   storage.Storage
}

// NewGoogleDirect discovers Google's OIDC configuration.
func NewGoogleDirect(ctx context.Context, clientID, clientSecret, redirectURL string, states storage.Storage) (*GoogleDirect, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	return NewGoogleDirectWith(config, provider.Verifier(&oidc.Config{ClientID: clientID}), states), nil
}

// NewGoogleDirectWith wires an already built config and verifier.
func NewGoogleDirectWith(config *oauth2.Config, verifier *oidc.IDTokenVerifier, states storage.Storage) *GoogleDirect {
	return &GoogleDirect{config: config, verifier: verifier, states: states}
}

// Begin records a fresh state and returns the consent URL to send the browser to.
func (g *GoogleDirect) Begin(ctx context.Context) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	codeVerifier := oauth2.GenerateVerifier()
	if err := g.states.Set(ctx, stateKeyPrefix+state, codeVerifier); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}

	return g.config.AuthCodeURL(
		state,
		oauth2.S256ChallengeOption(codeVerifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	), nil
}

// Complete redeems code for tokens and returns the verified raw ID token. Each state can be
// completed once.
func (g *GoogleDirect) Complete(ctx context.Context, state, code string) (string, error) {
	key := stateKeyPrefix + state
	codeVerifier, ok, err := g.states.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return "", ErrStateMismatch
	}
	if err := g.states.Remove(ctx, key); err != nil {
		return "", fmt.Errorf("consume state: %w", err)
	}

	tok, err := g.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", fmt.Errorf("no id_token in response")
	}
	if _, err := g.verifier.Verify(ctx, rawIDToken); err != nil {
		return "", fmt.Errorf("verify id_token: %w", err)
	}
	return rawIDToken, nil
}

// GenerateState returns a random URL-safe state value.
func GenerateState() (string, error) {
	b := make([]byte, stateBytesLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
