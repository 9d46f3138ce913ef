// Package auth verifies bearer JWTs per the gateway's auth_required route
// flag. Only HS256 is supported; config carries a single shared secret.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wudi/kairos/internal/config"
	"github.com/wudi/kairos/internal/gwerrors"
	"github.com/wudi/kairos/internal/middleware"
)

// JWTAuth verifies HS256 bearer tokens against a shared secret.
type JWTAuth struct {
	secret         []byte
	issuer         string
	audience       string
	requiredClaims []string
	keyFunc        jwt.Keyfunc
}

// NewJWTAuth creates a new JWT authenticator from the gateway-wide JWT
// config block.
func NewJWTAuth(cfg config.JWTConfig) *JWTAuth {
	a := &JWTAuth{
		secret:         []byte(cfg.Secret),
		issuer:         cfg.Issuer,
		audience:       cfg.Audience,
		requiredClaims: cfg.RequiredClaims,
	}
	a.keyFunc = func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return a.secret, nil
	}
	return a
}

// IsEnabled reports whether a secret has been configured.
func (a *JWTAuth) IsEnabled() bool {
	return len(a.secret) > 0
}

// Authenticate verifies the bearer token on r and returns the resulting
// identity, or one of gwerrors' Auth* sentinels.
func (a *JWTAuth) Authenticate(r *http.Request) (*middleware.Identity, error) {
	tokenString := extractToken(r)
	if tokenString == "" {
		return nil, gwerrors.ErrAuthMissing
	}

	token, err := jwt.Parse(tokenString, a.keyFunc, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, gwerrors.ErrAuthExpired.Wrap(err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, gwerrors.ErrAuthSignatureInvalid.Wrap(err)
		default:
			return nil, gwerrors.ErrAuthMalformed.Wrap(err)
		}
	}
	if !token.Valid {
		return nil, gwerrors.ErrAuthMalformed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, gwerrors.ErrAuthMalformed
	}

	if a.issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != a.issuer {
			return nil, gwerrors.ErrAuthClaimMissing.WithMessage("token issuer does not match")
		}
	}

	if a.audience != "" {
		aud, _ := claims.GetAudience()
		if !containsString(aud, a.audience) {
			return nil, gwerrors.ErrAuthClaimMissing.WithMessage("token audience does not match")
		}
	}

	for _, claim := range a.requiredClaims {
		if _, present := claims[claim]; !present {
			return nil, gwerrors.ErrAuthClaimMissing.WithMessage("missing required claim: " + claim)
		}
	}

	clientID := ""
	if sub, _ := claims.GetSubject(); sub != "" {
		clientID = sub
	} else if cid, ok := claims["client_id"].(string); ok {
		clientID = cid
	}

	claimsMap := make(map[string]interface{}, len(claims))
	for k, v := range claims {
		claimsMap[k] = v
	}

	return &middleware.Identity{ClientID: clientID, AuthType: "jwt", Claims: claimsMap}, nil
}

func extractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return h[len("Bearer "):]
	}
	if strings.HasPrefix(h, "bearer ") {
		return h[len("bearer "):]
	}
	return ""
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Middleware returns middleware enforcing authentication when required is
// true. When required is false, requests without valid credentials still
// proceed, unauthenticated.
func (a *JWTAuth) Middleware(required bool) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r)
			if err != nil {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				gwErr, _ := gwerrors.As(err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="kairos"`)
				gwErr.WithRequestID(middleware.GetRequestID(r)).WriteJSON(w)
				return
			}

			ctx := middleware.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
