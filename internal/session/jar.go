package session

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// Jar is the agent's ambient cookie store for calls to the storefront API. Reset drops
// every cookie, which is how logout reaches cookies the agent holds.
type Jar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	j := &Jar{}
	j.jar = newCookieJar()
	return j
}

func newCookieJar() *cookiejar.Jar {
	// cookiejar.New only fails when Options.PublicSuffixList misbehaves; nil options cannot.
	jar, _ := cookiejar.New(nil)
	return jar
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// Reset discards all cookies.
func (j *Jar) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = newCookieJar()
}
