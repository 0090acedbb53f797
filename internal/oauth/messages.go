package oauth

import "fmt"

// errorMessages maps provider error codes to user-facing text; %s is the provider name.
var errorMessages = map[string]string{
	"access_denied":             "You cancelled the %s sign-in process.",
	"invalid_request":           "The %s sign-in request was invalid. Please try again.",
	"unauthorized_client":       "This application is not authorized to use %s sign-in.",
	"unsupported_response_type": "%s returned a response this application cannot handle.",
	"invalid_scope":             "The permissions requested from %s are invalid.",
	"server_error":              "%s ran into a problem. Please try again later.",
	"temporarily_unavailable":   "%s sign-in is temporarily unavailable. Please try again later.",
	"user_denied":               "You denied the permissions requested by %s.",
}

// facebookMessages override the shared table for Facebook.
var facebookMessages = map[string]string{
	"user_cancelled_login": "You cancelled the Facebook login.",
	"access_denied":        "You cancelled the Facebook sign-in process.",
}

// ErrorMessage returns the message shown for a provider error code.
func ErrorMessage(p Provider, code string) string {
	if p == Facebook {
		if msg, ok := facebookMessages[code]; ok {
			return msg
		}
	}
	if tmpl, ok := errorMessages[code]; ok {
		return fmt.Sprintf(tmpl, p.DisplayName())
	}
	return fmt.Sprintf("%s sign-in failed: %s", p.DisplayName(), code)
}
