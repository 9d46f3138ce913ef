package gateway

import (
	"net/http"

	"github.com/wudi/kairos/internal/middleware"
	"github.com/wudi/kairos/internal/middleware/realip"
)

// Handler wraps g with the gateway-wide middleware chain: request ID
// assignment, real-IP resolution, panic recovery, and access logging, in
// that order (outermost first). Route-specific concerns — auth, rate
// limiting, transformation — run inside g.ServeHTTP itself, since they
// depend on which route matched.
func Handler(g *Gateway, realIP *realip.CompiledRealIP) http.Handler {
	chain := middleware.NewChain(
		middleware.RequestID(),
		realIP.Middleware,
		middleware.Recovery(),
		middleware.AccessLog(),
	)
	return chain.Then(g)
}
