package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/virtualhospital/vhauth"
)

// RateLimit enforces the policy of action per (client IP, identifier). The
// identifier is the body email, else the body username, else the email
// query parameter, else "anonymous".
func RateLimit(engine *vhauth.Engine, action vhauth.RateAction) func(http.Handler) http.Handler {
	maxBytes := engine.Config().Pipeline.MaxBodyBytes
	logger := engine.Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, _, err := loadBody(r, maxBytes)
			if err != nil {
				writeBodyError(w, err)
				return
			}

			sc := securityContextOf(r)
			ip := sc.IP
			if ip == "" {
				ip = ClientIP(r, false)
			}

			subject := RateSubject{IP: ip, Identifier: RateIdentifier(r)}
			d, err := engine.CheckRate(r.Context(), action, subject.IP, subject.Identifier)
			switch {
			case err == nil:
				ctx := context.WithValue(r.Context(), rateSubjectKey{action: action}, subject)
				next.ServeHTTP(w, r.WithContext(ctx))
			case errors.Is(err, vhauth.ErrRateLimited):
				w.Header().Set(headerRetryAfter, strconv.Itoa(d.RetryAfterSeconds))
				Fail(w, http.StatusTooManyRequests, msgRateLimited, map[string]any{"retryAfter": d.RetryAfterSeconds})
			default:
				logger.Error().Err(err).Str("request_id", sc.RequestID).Str("action", string(action)).Msg("rate limit check failed")
				Fail(w, statusFor(err), messageFor(err), nil)
			}
		})
	}
}

// RateSubject is the (ip, identifier) pair a request was counted under.
type RateSubject struct {
	IP         string
	Identifier string
}

type rateSubjectKey struct {
	action vhauth.RateAction
}

// RateSubjectFrom returns the subject [RateLimit] counted the request under
// for action. Handlers resetting a window after success must use it rather
// than recomputing the identifier, since later stages may rewrite the body.
func RateSubjectFrom(ctx context.Context, action vhauth.RateAction) (RateSubject, bool) {
	s, ok := ctx.Value(rateSubjectKey{action: action}).(RateSubject)
	return s, ok
}

// RateIdentifier returns the per-user component of the rate key for r.
func RateIdentifier(r *http.Request) string {
	if body := Body(r); body != nil {
		if s, ok := body["email"].(string); ok && s != "" {
			return s
		}
		if s, ok := body["username"].(string); ok && s != "" {
			return s
		}
	}
	if s := r.URL.Query().Get("email"); s != "" {
		return s
	}
	return anonymousRateSubject
}

func statusFor(err error) int {
	if errors.Is(err, vhauth.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func messageFor(err error) string {
	if errors.Is(err, vhauth.ErrStoreUnavailable) {
		return msgUnavailable
	}
	return msgInternal
}
