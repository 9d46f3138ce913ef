package middleware

import (
	"context"
	"net/http"
)

type requestIDKey struct{}
type routeIDKey struct{}
type identityKey struct{}

// Identity is the authenticated caller attached to the request context by
// an auth middleware (currently only internal/auth's JWT authenticator).
type Identity struct {
	ClientID string
	AuthType string
	Claims   map[string]interface{}
}

// WithRequestID returns a context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext extracts the request ID set by the request-ID
// middleware, or "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// GetRequestID is a convenience wrapper over RequestIDFromContext for
// handlers holding only the *http.Request.
func GetRequestID(r *http.Request) string {
	return RequestIDFromContext(r.Context())
}

// WithRouteID returns a context carrying the matched route's external path,
// set by the gateway once routing has resolved.
func WithRouteID(ctx context.Context, routeID string) context.Context {
	return context.WithValue(ctx, routeIDKey{}, routeID)
}

// RouteIDFromContext extracts the route ID, or "" if routing hasn't run yet.
func RouteIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(routeIDKey{}).(string)
	return id
}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the authenticated identity, or nil if the
// request carried no valid credentials.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
