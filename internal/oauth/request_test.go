package oauth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestStripsFacebookSuffix(t *testing.T) {
	u, err := url.Parse("/auth/facebook/callback?fragment=" + url.QueryEscape("#token=abc&_=_"))
	require.NoError(t, err)

	req := NewRequest(u)
	assert.Equal(t, "abc", req.Param("token"))
	assert.False(t, req.Query.Has(FragmentParam))
	assert.Empty(t, req.RawQuery())
}

func TestNewRequestBareFacebookFragment(t *testing.T) {
	u, err := url.Parse("/auth/facebook/callback?code=x#_=_")
	require.NoError(t, err)

	req := NewRequest(u)
	assert.Empty(t, req.Fragment)
	assert.Equal(t, "x", req.Param("code"))
}

func TestQueryWinsOverFragment(t *testing.T) {
	u, err := url.Parse("/cb?token=query&fragment=" + url.QueryEscape("token=frag&user=1"))
	require.NoError(t, err)

	req := NewRequest(u)
	assert.Equal(t, "query", req.Param("token"))
	assert.Equal(t, "1", req.Param("user"))
	assert.Equal(t, "query", req.FirstParam("access_token", "token"))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "You cancelled the Google sign-in process.", ErrorMessage(Google, "access_denied"))
	assert.Equal(t, "Google sign-in is temporarily unavailable. Please try again later.", ErrorMessage(Google, "temporarily_unavailable"))
	assert.Equal(t, "Facebook sign-in failed: weird_code", ErrorMessage(Facebook, "weird_code"))
	assert.Equal(t, "Github sign-in failed: x", ErrorMessage(Provider("github"), "x"))
}
