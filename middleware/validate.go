package middleware

import (
	"errors"
	"net/http"

	"github.com/virtualhospital/vhauth"
	"github.com/virtualhospital/vhauth/security"
)

// Validate checks the JSON body against rules. Failures are answered with
// 400 and one message per failing field; on success the sanitized values
// are merged into the body seen by later stages and the handler.
func Validate(engine *vhauth.Engine, rules security.Rules) func(http.Handler) http.Handler {
	maxBytes := engine.Config().Pipeline.MaxBodyBytes

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, pb, err := loadBody(r, maxBytes)
			if err != nil {
				writeBodyError(w, err)
				return
			}

			body, _ := pb.value.(map[string]any)
			if body == nil {
				body = map[string]any{}
			}

			clean, err := security.Validate(body, rules)
			if err != nil {
				var verrs security.ValidationErrors
				if !errors.As(err, &verrs) {
					verrs = security.ValidationErrors{err.Error()}
				}
				engine.ReportValidationRejected(r.Context(), r.URL.Path, len(verrs))
				Fail(w, http.StatusBadRequest, msgValidationFailed, map[string]any{"errors": []string(verrs)})
				return
			}

			storeBody(r, pb, clean)
			next.ServeHTTP(w, r)
		})
	}
}
