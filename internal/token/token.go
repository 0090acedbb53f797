// Package token reads bearer token claims on the client side. Signatures are not checked
// here: the storefront API is the only party that trusts a token, the agent merely needs
// to know when one expires and who it names.
package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/identity"
)

// Claims are the payload fields the storefront API puts into its access tokens.
type Claims struct {
	identity.Profile
	jwt.RegisteredClaims
}

// User returns the identity named by the token, if the token carries one.
func (c Claims) User() (identity.User, bool) {
	p := c.Profile
	if p.UserID == "" && p.ID == "" && p.MongoID == "" && c.Subject != "" {
		p.UserID = identity.ID(c.Subject)
	}
	return p.User()
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode base64-decodes the payload segment and parses it. Any failure yields ok=false.
func Decode(raw string) (Claims, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 {
		return Claims{}, false
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, false
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, false
	}
	return claims, true
}

// ExpiresAt returns the exp claim. ok is false when it cannot be determined.
func ExpiresAt(raw string) (time.Time, bool) {
	claims, ok := Decode(raw)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsValid reports whether the token has a known expiry strictly after now.
func IsValid(raw string, now time.Time) bool {
	exp, ok := ExpiresAt(raw)
	return ok && exp.After(now)
}

// TimeUntilExpiry returns exp-now, or ok=false when the expiry is unknown.
func TimeUntilExpiry(raw string, now time.Time) (time.Duration, bool) {
	exp, ok := ExpiresAt(raw)
	if !ok {
		return 0, false
	}
	return exp.Sub(now), true
}
