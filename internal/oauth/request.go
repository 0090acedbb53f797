// Package oauth turns an OAuth provider callback into a signed-in session. Each entry
// point is one Reconciler with its own ordered list of artifact strategies.
package oauth

import (
	"net/url"
	"strings"
)

// Provider names an identity provider as the storefront API spells it.
type Provider string

const (
	Google   Provider = "google"
	Facebook Provider = "facebook"
)

// DisplayName is the provider name shown to users.
func (p Provider) DisplayName() string {
	switch p {
	case Google:
		return "Google"
	case Facebook:
		return "Facebook"
	default:
		if p == "" {
			return "OAuth"
		}
		return strings.ToUpper(string(p[:1])) + string(p[1:])
	}
}

// FragmentParam carries the browser's location.hash, resubmitted by the relay page.
const FragmentParam = "fragment"

// facebookFragmentSuffix is appended by Facebook to every redirect.
const facebookFragmentSuffix = "_=_"

// Request is one callback hit: the query string plus whatever the URL fragment held.
type Request struct {
	Query    url.Values
	Fragment url.Values
}

// NewRequest splits a callback URL into query and relayed fragment parameters.
func NewRequest(u *url.URL) Request {
	query := u.Query()
	rawFragment := u.Fragment
	if relayed, ok := query[FragmentParam]; ok {
		if len(relayed) > 0 && rawFragment == "" {
			rawFragment = relayed[0]
		}
		query.Del(FragmentParam)
	}
	return Request{Query: query, Fragment: parseFragment(rawFragment)}
}

func parseFragment(raw string) url.Values {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	raw = strings.TrimSuffix(raw, facebookFragmentSuffix)
	raw = strings.TrimSuffix(raw, "&")
	if raw == "" {
		return url.Values{}
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return url.Values{}
	}
	return values
}

// Param returns the first non-empty value of key from the query, then the fragment.
func (r Request) Param(key string) string {
	if v := strings.TrimSpace(r.Query.Get(key)); v != "" {
		return v
	}
	return strings.TrimSpace(r.Fragment.Get(key))
}

// FirstParam returns the first non-empty value among keys.
func (r Request) FirstParam(keys ...string) string {
	for _, k := range keys {
		if v := r.Param(k); v != "" {
			return v
		}
	}
	return ""
}

// RawQuery re-encodes the provider's query parameters without the relay marker.
func (r Request) RawQuery() string {
	return r.Query.Encode()
}
