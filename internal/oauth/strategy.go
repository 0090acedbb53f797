package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/identity"
)

// Artifact is what a strategy found in the callback. User may be nil; the reconciler then
// resolves it through the verifier.
type Artifact struct {
	Token string
	User  *identity.User
}

// Strategy looks for one kind of artifact. found=false means the callback does not carry
// it, malformed input included. A non-nil error means the artifact was there but could not
// be redeemed.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, req Request) (art Artifact, found bool, err error)
}

type callbackExchanger interface {
	ExchangeCallback(ctx context.Context, provider, rawQuery string) (api.Exchange, error)
}

type idTokenExchanger interface {
	ExchangeIDToken(ctx context.Context, provider, idToken string) (api.Exchange, error)
}

type userVerifier interface {
	Verify(ctx context.Context, rawToken string, tentative *identity.User) (identity.User, error)
}

// BearerTokenInURL picks a token straight out of the callback URL.
type BearerTokenInURL struct{}

func (BearerTokenInURL) Name() string { return "bearer_token" }

func (BearerTokenInURL) Extract(_ context.Context, req Request) (Artifact, bool, error) {
	tok := req.FirstParam("token", "access_token", "accessToken")
	if tok == "" {
		return Artifact{}, false, nil
	}
	art := Artifact{Token: tok}
	if raw := req.Param("user"); raw != "" {
		if user, ok := decodeInlineUser(raw); ok {
			art.User = &user
		}
	}
	return art, true, nil
}

// AuthCodeRedirect forwards an authorization code to the storefront API's callback, which
// redeems it with the provider.
type AuthCodeRedirect struct {
	Provider Provider
	API      callbackExchanger
}

func (AuthCodeRedirect) Name() string { return "auth_code" }

func (s AuthCodeRedirect) Extract(ctx context.Context, req Request) (Artifact, bool, error) {
	if req.Param("code") == "" {
		return Artifact{}, false, nil
	}
	out, err := s.API.ExchangeCallback(ctx, string(s.Provider), req.RawQuery())
	if err != nil {
		return Artifact{}, true, fmt.Errorf("oauth: exchange authorization code: %w", err)
	}
	return Artifact{Token: out.Token, User: out.User}, true, nil
}

// InlineJSONPayload reads a session the backend embedded in the URL as JSON, either plain
// or base64url-encoded.
type InlineJSONPayload struct{}

func (InlineJSONPayload) Name() string { return "inline_json" }

func (InlineJSONPayload) Extract(_ context.Context, req Request) (Artifact, bool, error) {
	for _, key := range []string{"data", "payload", "auth", "user"} {
		raw := req.Param(key)
		if raw == "" {
			continue
		}
		if art, ok := decodeInlinePayload(raw); ok {
			return art, true, nil
		}
	}
	return Artifact{}, false, nil
}

// AmbientSession asks the API whether the cookies set during the provider round trip
// already identify a user.
type AmbientSession struct {
	Verifier userVerifier
}

func (AmbientSession) Name() string { return "ambient_session" }

func (s AmbientSession) Extract(ctx context.Context, _ Request) (Artifact, bool, error) {
	user, err := s.Verifier.Verify(ctx, "", nil)
	if err != nil {
		if errors.Is(err, auth.ErrVerificationFailed) {
			return Artifact{}, false, nil
		}
		return Artifact{}, true, fmt.Errorf("oauth: check ambient session: %w", err)
	}
	return Artifact{User: &user}, true, nil
}

// codeRedeemer completes an agent-initiated authorization code flow and returns a verified
// provider ID token.
type codeRedeemer interface {
	Complete(ctx context.Context, state, code string) (string, error)
}

// ProviderCodeExchange redeems the code with the provider itself and hands the verified ID
// token to the storefront API.
type ProviderCodeExchange struct {
	Provider Provider
	Redeemer codeRedeemer
	API      idTokenExchanger
}

func (ProviderCodeExchange) Name() string { return "provider_code_exchange" }

func (s ProviderCodeExchange) Extract(ctx context.Context, req Request) (Artifact, bool, error) {
	code := req.Param("code")
	state := req.Param("state")
	if code == "" || state == "" {
		return Artifact{}, false, nil
	}
	idToken, err := s.Redeemer.Complete(ctx, state, code)
	if err != nil {
		return Artifact{}, true, err
	}
	out, err := s.API.ExchangeIDToken(ctx, string(s.Provider), idToken)
	if err != nil {
		return Artifact{}, true, fmt.Errorf("oauth: exchange id token: %w", err)
	}
	return Artifact{Token: out.Token, User: out.User}, true, nil
}

func decodeInlinePayload(raw string) (Artifact, bool) {
	data, ok := jsonBytes(raw)
	if !ok {
		return Artifact{}, false
	}

	var envelope struct {
		Token       string          `json:"token"`
		AccessToken string          `json:"accessToken"`
		User        json.RawMessage `json:"user"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Artifact{}, false
	}

	art := Artifact{Token: envelope.Token}
	if art.Token == "" {
		art.Token = envelope.AccessToken
	}
	for _, candidate := range []json.RawMessage{envelope.User, envelope.Data, json.RawMessage(data)} {
		if len(candidate) == 0 {
			continue
		}
		if user, err := identity.DecodeUser(candidate); err == nil {
			art.User = &user
			break
		}
	}
	if art.Token == "" && art.User == nil {
		return Artifact{}, false
	}
	return art, true
}

func decodeInlineUser(raw string) (identity.User, bool) {
	data, ok := jsonBytes(raw)
	if !ok {
		return identity.User{}, false
	}
	user, err := identity.DecodeUser(data)
	if err != nil {
		return identity.User{}, false
	}
	return user, true
}

// jsonBytes accepts a JSON object as-is or base64url-encoded, padded or not.
func jsonBytes(raw string) ([]byte, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), json.Valid([]byte(raw))
	}
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding} {
		if decoded, err := enc.DecodeString(raw); err == nil && json.Valid(decoded) {
			return decoded, true
		}
	}
	return nil, false
}
