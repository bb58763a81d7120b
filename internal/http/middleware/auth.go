package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/matheuspdias/managerclin/internal/http/respond"
	"github.com/matheuspdias/managerclin/internal/tenancy"
)

type contextKey string

const (
	adminClaimsKey contextKey = "adminClaims"
	actorClaimsKey contextKey = "actorClaims"

	// ActorHeader names the acting user when bearer auth is not configured.
	ActorHeader = "X-Actor-Id"
)

var errMissingBearer = errors.New("missing authorization header")

// ActorClaims are the claims accepted on clinic staff tokens. OrgID, when
// set, pins the token to one clinic.
type ActorClaims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id,omitempty"`
}

func parseBearer(r *http.Request, secret string, claims jwt.Claims) error {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return errMissingBearer
	}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

// AdminJWT enforces an HMAC-signed JWT for admin endpoints. The subject
// becomes the acting user for audit purposes.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				respond.Error(w, http.StatusUnauthorized, "admin auth disabled")
				return
			}
			claims := jwt.RegisteredClaims{}
			if err := parseBearer(r, secret, &claims); err != nil {
				if errors.Is(err, errMissingBearer) {
					respond.Error(w, http.StatusUnauthorized, err.Error())
					return
				}
				respond.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
			if claims.Subject != "" {
				ctx = tenancy.WithActorID(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

// ActorAuth resolves the acting user. With a secret configured it requires a
// bearer token whose subject is the actor and whose org_id equals the org
// already in context. Without a secret the X-Actor-Id header is trusted as
// is, and an absent header leaves the actor unset.
func ActorAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if secret == "" {
				if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
					ctx = tenancy.WithActorID(ctx, actor)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims := ActorClaims{}
			if err := parseBearer(r, secret, &claims); err != nil {
				if errors.Is(err, errMissingBearer) {
					respond.Error(w, http.StatusUnauthorized, err.Error())
					return
				}
				respond.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if claims.Subject == "" {
				respond.Error(w, http.StatusUnauthorized, "token has no subject")
				return
			}
			if claims.OrgID == "" {
				respond.Error(w, http.StatusForbidden, "token has no clinic")
				return
			}
			if orgID, ok := tenancy.OrgIDFromContext(ctx); !ok || claims.OrgID != orgID {
				respond.Error(w, http.StatusForbidden, "token not valid for this clinic")
				return
			}
			ctx = context.WithValue(ctx, actorClaimsKey, claims)
			ctx = tenancy.WithActorID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorClaimsFromContext returns staff JWT claims if present.
func ActorClaimsFromContext(ctx context.Context) (ActorClaims, bool) {
	claims, ok := ctx.Value(actorClaimsKey).(ActorClaims)
	return claims, ok
}
