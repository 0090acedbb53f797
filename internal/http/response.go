package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"storefront/internal/api"
	"storefront/internal/auth"
)

const maxJSONBodyBytes int64 = 64 << 10

var (
	errPayloadTooLarge      = errors.New("payload too large")
	errUnsupportedMediaType = errors.New("content type must be application/json")
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSONBody only accepts application/json bodies. Other content types would make the
// request a CORS simple request that browsers send cross-origin without a preflight.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errUnsupportedMediaType
	}

	limited := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = limited.Close()
	}()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUnsupportedMediaType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case errors.Is(err, errPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	// Generic message; decoder errors leak field names.
	writeError(w, http.StatusBadRequest, "invalid request body")
}

// writeUpstreamError maps storefront API and auth errors onto agent responses.
func writeUpstreamError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var respErr *api.ResponseError
	switch {
	case errors.Is(err, auth.ErrEmptyLogin):
		writeError(w, http.StatusBadRequest, "token or user is required")
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, auth.ErrVerificationFailed):
		unauthorized(w)
	case api.IsUnavailable(err):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "storefront API unavailable")
	case errors.As(err, &respErr):
		status := http.StatusBadGateway
		if respErr.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, respErr.Message)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
