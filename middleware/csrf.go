package middleware

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/virtualhospital/vhauth"
)

// CSRF rejects state-changing requests that do not carry a valid CSRF token
// for the caller's CSRF session. GET, HEAD and OPTIONS pass through.
//
// The token is read from the configured header, then the configured field
// of the JSON or form body. Expired tokens are swept opportunistically. The
// session is the authenticated session when [Guard] ran first, else the CSRF
// cookie, else the CSRF session header.
func CSRF(engine *vhauth.Engine) func(http.Handler) http.Handler {
	cfg := engine.Config()
	logger := engine.Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			engine.MaybeSweepCSRF(r.Context())

			r, _, err := loadBody(r, cfg.Pipeline.MaxBodyBytes)
			if err != nil {
				writeBodyError(w, err)
				return
			}

			token := r.Header.Get(cfg.CSRF.HeaderName)
			if token == "" {
				if body := Body(r); body != nil {
					token, _ = body[cfg.CSRF.BodyField].(string)
				}
			}

			err = engine.ValidateCSRF(r.Context(), token, csrfSessionID(r, cfg.CSRF))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, vhauth.ErrCSRFMissing):
				Fail(w, http.StatusForbidden, msgCSRFMissing, map[string]any{"error": codeCSRFMissing})
			case errors.Is(err, vhauth.ErrCSRFInvalid):
				Fail(w, http.StatusForbidden, msgCSRFInvalid, map[string]any{"error": codeCSRFInvalid})
			default:
				logger.Error().Err(err).Str("request_id", securityContextOf(r).RequestID).Msg("csrf validation failed")
				Fail(w, statusFor(err), messageFor(err), nil)
			}
		})
	}
}

// CSRFTokenHandler serves GET /csrf-token. It binds the token to the
// authenticated session when a valid bearer token is presented, else to the
// CSRF cookie, minting a new CSRF session cookie when there is none.
func CSRFTokenHandler(engine *vhauth.Engine) http.Handler {
	cfg := engine.Config().CSRF
	logger := engine.Logger()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := ""
		if token, ok := bearerToken(r.Header.Get(headerAuthorization)); ok {
			if res, err := engine.Verify(r.Context(), token); err == nil {
				sessionID = res.SessionID
			}
		}
		if sessionID == "" {
			if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
				sessionID = c.Value
			}
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(cfg.TTL.Seconds()),
				HttpOnly: true,
				Secure:   cfg.CookieSecure,
				SameSite: http.SameSiteStrictMode,
			})
		}

		token, _, err := engine.IssueCSRF(r.Context(), sessionID)
		if err != nil {
			logger.Error().Err(err).Str("request_id", securityContextOf(r).RequestID).Msg("csrf token issue failed")
			Fail(w, statusFor(err), messageFor(err), nil)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"csrfToken": token,
			"sessionId": sessionID,
		})
	})
}

func csrfSessionID(r *http.Request, cfg vhauth.CSRFConfig) string {
	if auth := vhauth.AuthFrom(r.Context()); auth != nil && auth.SessionID != "" {
		return auth.SessionID
	}
	if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if cfg.SessionHeader != "" {
		return r.Header.Get(cfg.SessionHeader)
	}
	return ""
}
