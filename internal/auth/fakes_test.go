package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/api"
	"storefront/internal/identity"
)

type fakeClient struct {
	mu           sync.Mutex
	meCalls      int
	meBearers    []string
	refreshCalls int
	logoutCalls  int

	me         func(bearer string) (identity.User, error)
	refresh    func(tok string) (string, error)
	logoutErr  error
	userByID   map[string]identity.User
	userStatus api.UserStatus
}

func (f *fakeClient) Me(_ context.Context, bearer string) (identity.User, error) {
	f.mu.Lock()
	f.meCalls++
	f.meBearers = append(f.meBearers, bearer)
	f.mu.Unlock()
	if f.me == nil {
		return identity.User{}, &api.ResponseError{StatusCode: 401}
	}
	return f.me(bearer)
}

func (f *fakeClient) RefreshToken(_ context.Context, tok string) (string, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refresh == nil {
		return "", fmt.Errorf("%w: no refresh configured", api.ErrUnavailable)
	}
	return f.refresh(tok)
}

func (f *fakeClient) Logout(context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeClient) User(_ context.Context, id string) (identity.User, error) {
	u, ok := f.userByID[id]
	if !ok {
		return identity.User{}, &api.ResponseError{StatusCode: 404, Message: "not found"}
	}
	return u, nil
}

func (f *fakeClient) UserStatus(context.Context) (api.UserStatus, error) {
	return f.userStatus, nil
}

func (f *fakeClient) counts() (me, refresh, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls, f.refreshCalls, f.logoutCalls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mintToken signs a token expiring after ttl; the agent never checks the signature.
func mintToken(t *testing.T, ttl time.Duration, extra jwt.MapClaims) string {
	t.Helper()
	claims := jwt.MapClaims{"exp": time.Now().Add(ttl).Unix()}
	for k, v := range extra {
		claims[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
