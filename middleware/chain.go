package middleware

import (
	"net/http"

	"github.com/virtualhospital/vhauth"
)

// Chain applies mws so that the first one is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Pipeline is the global prefix every route shares: SecurityContext then
// Inspect.
func Pipeline(engine *vhauth.Engine) func(http.Handler) http.Handler {
	sc := SecurityContext(engine)
	inspect := Inspect(engine)
	return func(next http.Handler) http.Handler {
		return sc(inspect(next))
	}
}
