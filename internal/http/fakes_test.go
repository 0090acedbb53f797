package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/identity"
)

type fakeAuthContext struct {
	loading bool
	user    *identity.User

	loginErr    error
	logins      int
	lastToken   string
	lastUser    *identity.User
	logouts     int
	refreshed   bool
	refreshErr  error
	status      api.UserStatus
	statusErr   error
	users       map[string]identity.User
	fetchErr    error
	fetchedByID []string
}

func (f *fakeAuthContext) State() auth.State {
	return auth.State{Authenticated: f.user != nil, Loading: f.loading, User: f.user}
}

func (f *fakeAuthContext) IsLoading() bool { return f.loading }

func (f *fakeAuthContext) User() *identity.User { return f.user }

func (f *fakeAuthContext) Login(_ context.Context, token string, user *identity.User) error {
	f.logins++
	f.lastToken = token
	f.lastUser = user
	if f.loginErr != nil {
		return f.loginErr
	}
	if user != nil {
		f.user = user
	}
	return nil
}

func (f *fakeAuthContext) Logout(context.Context) error {
	f.logouts++
	f.user = nil
	return nil
}

func (f *fakeAuthContext) Refresh(context.Context) (bool, error) {
	return f.refreshed, f.refreshErr
}

func (f *fakeAuthContext) UserStatus(context.Context) (api.UserStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeAuthContext) FetchUserData(_ context.Context, id string) (identity.User, error) {
	f.fetchedByID = append(f.fetchedByID, id)
	if f.fetchErr != nil {
		return identity.User{}, f.fetchErr
	}
	u, ok := f.users[id]
	if !ok {
		return identity.User{}, &api.ResponseError{StatusCode: 404, Message: "user not found"}
	}
	return u, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
