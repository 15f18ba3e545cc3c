package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/virtualhospital/vhauth"
)

// SecurityContext attaches a [vhauth.SecurityContext] to every request and
// sets the hardening response headers. It should be the outermost stage.
func SecurityContext(engine *vhauth.Engine) func(http.Handler) http.Handler {
	cfg := engine.Config().Pipeline
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := vhauth.NewSecurityContext(ClientIP(r, cfg.TrustProxy), r.UserAgent(), engine.Now())

			h := w.Header()
			h.Set(headerRequestID, sc.RequestID)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r.WithContext(vhauth.WithSecurityContext(r.Context(), sc)))
		})
	}
}

// ClientIP returns the caller's IP. With trustProxy the first
// X-Forwarded-For entry wins; otherwise the connection address is used.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get(headerForwardedFor); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func securityContextOf(r *http.Request) vhauth.SecurityContext {
	sc, _ := vhauth.SecurityContextFrom(r.Context())
	return sc
}
