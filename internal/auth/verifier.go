package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/api"
	"storefront/internal/identity"
	"storefront/internal/token"
)

// ErrVerificationFailed means the API answered and rejected the session.
var ErrVerificationFailed = errors.New("auth: session verification failed")

type whoAmI interface {
	Me(ctx context.Context, bearer string) (identity.User, error)
}

// Verifier decides whether a stored or freshly received session is still good.
type Verifier struct {
	api whoAmI
	now func() time.Time
}

// NewVerifier returns a verifier backed by the API's who-am-I endpoint.
func NewVerifier(client whoAmI) *Verifier {
	return &Verifier{api: client, now: time.Now}
}

// Verify resolves the user for a session. A token whose expiry is still ahead is trusted
// without a network call: the tentative user wins, then the user named in the claims. Any
// other case asks the API, sending rawToken as bearer when one was given.
//
// A rejection by the API yields ErrVerificationFailed. Failing to reach the API yields an
// error matching api.ErrUnavailable; callers keep the tentative session in that case.
func (v *Verifier) Verify(ctx context.Context, rawToken string, tentative *identity.User) (identity.User, error) {
	if rawToken != "" && token.IsValid(rawToken, v.now()) {
		if tentative != nil {
			return *tentative, nil
		}
		if claims, ok := token.Decode(rawToken); ok {
			if user, ok := claims.User(); ok {
				return user, nil
			}
		}
	}
	return v.ask(ctx, rawToken)
}

func (v *Verifier) ask(ctx context.Context, bearer string) (identity.User, error) {
	user, err := v.api.Me(ctx, bearer)
	if err == nil {
		return user, nil
	}
	if api.IsUnavailable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return identity.User{}, err
	}
	return identity.User{}, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
}
