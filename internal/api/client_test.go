package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/identity"
)

func newTestClient(t *testing.T, handler http.Handler, tokens TokenSource) (*Client, *httptest.Server, http.CookieJar) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client, err := NewClient(srv.URL+"/api", jar, tokens)
	require.NoError(t, err)
	return client, srv, jar
}

func writeEnvelope(w http.ResponseWriter, status int, env any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient("/api", nil, nil)
	assert.Error(t, err)
}

func TestMeSendsBearerAndCookies(t *testing.T) {
	var gotAuth, gotCookie string
	client, srv, jar := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"userId": 7, "email": "kim@example.com", "role": "admin", "isVerified": true},
		})
	}), nil)

	base, _ := url.Parse(srv.URL)
	jar.SetCookies(base, []*http.Cookie{{Name: "sid", Value: "cookie-1", Path: "/"}})

	user, err := client.Me(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "cookie-1", gotCookie)
	assert.Equal(t, identity.ID("7"), user.ID)
	assert.Equal(t, identity.RoleAdmin, user.Role)
	assert.Equal(t, "kim", user.Username)
}

func TestMeWithoutBearerOmitsHeader(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"user": map[string]any{"_id": "abc", "username": "lee", "role": "vendor"}},
		})
	}), func(context.Context) string { return "ignored" })

	user, err := client.Me(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, identity.ID("abc"), user.ID)
	assert.Equal(t, identity.RoleVendor, user.Role)
}

func TestMeUnauthorized(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "jwt expired"})
	}), nil)

	_, err := client.Me(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusUnauthorized, respErr.StatusCode)
	assert.Equal(t, "jwt expired", respErr.Message)
}

func TestSuccessFalseIsResponseError(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{"success": false, "message": "nope"})
	}), nil)

	_, err := client.Me(context.Background(), "")
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, IsUnavailable(err))
}

func TestUnreachableServerIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client, err := NewClient(addr, nil, nil)
	require.NoError(t, err)
	_, err = client.Me(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestRefreshToken(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/refresh-token", r.URL.Path)
		assert.Equal(t, "Bearer old", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"token": "new"}})
	}), nil)

	fresh, err := client.RefreshToken(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "new", fresh)
}

func TestUserAndStatusUseTokenSource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/15", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer source-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": 15, "username": "sam"}})
	})
	mux.HandleFunc("/api/auth/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer source-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"isVerified": true, "isActive": true, "role": "STAFF"}})
	})
	client, _, _ := newTestClient(t, mux, func(context.Context) string { return "source-token" })

	user, err := client.User(context.Background(), "15")
	require.NoError(t, err)
	assert.Equal(t, "sam", user.Username)
	assert.Equal(t, identity.RoleUser, user.Role)

	status, err := client.UserStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsVerified)
	assert.True(t, status.IsActive)
	assert.Equal(t, identity.RoleStaff, status.Role)
}

func TestLogoutPosts(t *testing.T) {
	called := false
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout"
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true})
	}), nil)

	require.NoError(t, client.Logout(context.Background()))
	assert.True(t, called)
}

func TestExchangeCallbackReadsRedirectToken(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/google/callback", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("code"))
		http.Redirect(w, r, "http://frontend.test/auth/google/success?token=tok-9", http.StatusFound)
	}), nil)

	out, err := client.ExchangeCallback(context.Background(), "google", "code=abc&state=s")
	require.NoError(t, err)
	assert.Equal(t, "tok-9", out.Token)
	assert.Nil(t, out.User)
}

func TestExchangeCallbackRedirectError(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://frontend.test/login?error=access_denied", http.StatusFound)
	}), nil)

	_, err := client.ExchangeCallback(context.Background(), "facebook", "code=abc")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestExchangeCallbackReadsEnvelope(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"token":   "tok-env",
			"data":    map[string]any{"user": map[string]any{"id": "u1", "role": "admin"}},
		})
	}), nil)

	out, err := client.ExchangeCallback(context.Background(), "google", "code=abc")
	require.NoError(t, err)
	assert.Equal(t, "tok-env", out.Token)
	require.NotNil(t, out.User)
	assert.Equal(t, identity.RoleAdmin, out.User.Role)
}

func TestExchangeIDToken(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/google/token", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "id-token", body["idToken"])
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"token": "tok-id"}})
	}), nil)

	out, err := client.ExchangeIDToken(context.Background(), "google", "id-token")
	require.NoError(t, err)
	assert.Equal(t, "tok-id", out.Token)
}
