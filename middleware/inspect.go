package middleware

import (
	"net/http"
	"net/url"

	"github.com/virtualhospital/vhauth"
	"github.com/virtualhospital/vhauth/security"
)

// Inspect rejects requests whose body, query or URL matches an attack
// signature, then strips injection fragments from the string leaves of the
// body and query before passing the request on. JSON, urlencoded and
// multipart bodies are covered. Detection always runs on the raw input.
func Inspect(engine *vhauth.Engine) func(http.Handler) http.Handler {
	maxBytes := engine.Config().Pipeline.MaxBodyBytes
	logger := engine.Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, pb, err := loadBody(r, maxBytes)
			if err != nil {
				writeBodyError(w, err)
				return
			}

			query := r.URL.Query()
			match, found := detect(r, pb, query)
			if found {
				sc := securityContextOf(r)
				logger.Warn().
					Str("request_id", sc.RequestID).
					Str("ip", sc.IP).
					Str("user_agent", sc.UserAgent).
					Str("method", r.Method).
					Str("url", r.URL.Path).
					Str("pattern", match.Pattern).
					Str("location", match.Location).
					Msg("suspicious activity detected")
				engine.ReportSuspicious(r.Context(), match.Pattern, match.Location)
				Fail(w, http.StatusBadRequest, msgSuspicious, map[string]any{"requestId": sc.RequestID})
				return
			}

			if len(query) > 0 {
				r.URL.RawQuery = sanitizeQuery(query).Encode()
			}
			if pb.value != nil {
				storeBody(r, pb, security.SanitizeValue(pb.value))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func detect(r *http.Request, pb *parsedBody, query url.Values) (security.Match, bool) {
	if pb.value != nil {
		if m, ok := security.DetectValue("body", pb.value); ok {
			return m, true
		}
	}
	if m, ok := security.DetectValue("query", map[string][]string(query)); ok {
		return m, true
	}
	path, err := url.PathUnescape(r.URL.EscapedPath())
	if err != nil {
		path = r.URL.Path
	}
	if name, ok := security.DetectString(path); ok {
		return security.Match{Pattern: name, Location: "url"}, true
	}
	return security.Match{}, false
}

func sanitizeQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, values := range q {
		clean := make([]string, len(values))
		for i, v := range values {
			clean[i] = security.SanitizeString(v)
		}
		out[k] = clean
	}
	return out
}
