package http

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"storefront/internal/oauth"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type callbackPage struct {
	Provider     string
	State        string
	Message      string
	RedirectURL  string
	RetryURL     string
	HomeURL      string
	DelaySeconds int64
	DelayMillis  int64
}

type relayPage struct {
	Param       string
	FallbackURL string
}

func renderPage(w http.ResponseWriter, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	return pages.ExecuteTemplate(w, name, data)
}

func newCallbackPage(out oauth.Outcome, frontendURL string) callbackPage {
	return callbackPage{
		Provider:     out.Provider.DisplayName(),
		State:        string(out.State),
		Message:      out.Message,
		RedirectURL:  frontendURL + out.RedirectTo,
		RetryURL:     "/auth/" + string(out.Provider) + "/login",
		HomeURL:      frontendURL + "/",
		DelaySeconds: int64(out.Delay.Seconds()),
		DelayMillis:  out.DelayMillis(),
	}
}

// relayFallback is the callback URL with an empty fragment marker, so a browser without
// scripts still moves on to the ambient session check.
func relayFallback(u *url.URL) string {
	next := *u
	q := next.Query()
	q.Set(oauth.FragmentParam, "")
	next.RawQuery = q.Encode()
	next.Fragment = ""
	return next.RequestURI()
}
