package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/virtualhospital/vhauth"
)

// AuthResultFromContext returns the identity attached by [Guard].
func AuthResultFromContext(ctx context.Context) (*vhauth.AuthResult, bool) {
	res := vhauth.AuthFrom(ctx)
	return res, res != nil
}

// Guard requires a valid access token in the Authorization header and
// attaches the verified identity to the request context. Clients get a
// generic 401; the specific cause is logged by the Engine.
func Guard(engine *vhauth.Engine) func(http.Handler) http.Handler {
	logger := engine.Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				Fail(w, http.StatusUnauthorized, msgTokenInvalid, nil)
				return
			}

			token, ok := bearerToken(r.Header.Get(headerAuthorization))
			if !ok {
				Fail(w, http.StatusUnauthorized, msgTokenRequired, nil)
				return
			}

			res, err := engine.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, vhauth.ErrStoreUnavailable) {
					logger.Error().Err(err).Str("request_id", securityContextOf(r).RequestID).Msg("token verification unavailable")
					Fail(w, http.StatusServiceUnavailable, msgUnavailable, nil)
					return
				}
				Fail(w, http.StatusUnauthorized, msgTokenInvalid, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(vhauth.WithAuth(r.Context(), res)))
		})
	}
}

// bearerToken accepts "Bearer <token>" and, for older clients, a bare token.
func bearerToken(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	const bearer = "Bearer"
	if strings.EqualFold(value, bearer) {
		return "", false
	}
	if len(value) > len(bearer) && strings.EqualFold(value[:len(bearer)+1], bearer+" ") {
		value = strings.TrimSpace(value[len(bearer)+1:])
	}
	if value == "" || strings.ContainsAny(value, " \t") {
		return "", false
	}
	return value, true
}
