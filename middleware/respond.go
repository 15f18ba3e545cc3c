package middleware

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Fail writes the rejection envelope {success:false, message} merged with
// extra.
func Fail(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		body[k] = v
	}
	body["success"] = false
	body["message"] = message
	WriteJSON(w, status, body)
}

const (
	msgRateLimited       = "Too many attempts. Please try again later."
	msgCSRFMissing       = "CSRF token required"
	msgCSRFInvalid       = "Invalid CSRF token"
	msgSuspicious        = "Invalid request detected"
	msgValidationFailed  = "Validation failed"
	msgTokenRequired     = "Access token is required"
	msgTokenInvalid      = "Invalid or expired token"
	msgInvalidJSON       = "Invalid JSON body"
	msgInvalidForm       = "Invalid form body"
	msgBodyTooLarge      = "Request body too large"
	msgUnavailable       = "Service temporarily unavailable"
	msgInternal          = "Internal server error"
	codeCSRFMissing      = "MISSING_CSRF_TOKEN"
	codeCSRFInvalid      = "INVALID_CSRF_TOKEN"
	headerRequestID      = "X-Request-ID"
	headerAuthorization  = "Authorization"
	headerRetryAfter     = "Retry-After"
	headerForwardedFor   = "X-Forwarded-For"
	anonymousRateSubject = "anonymous"
)
