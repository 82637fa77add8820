package middleware

import (
	"context"
	"net/http"

	"github.com/civicsquare/server/internal/api/problem"
	"github.com/civicsquare/server/internal/audit"
	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/domain/users"
)

type contextKeyAuth string

const (
	currentUserKey contextKeyAuth = "currentUser"
	tokenClaimsKey contextKeyAuth = "tokenClaims"
	apiKeyNameKey  contextKeyAuth = "apiKeyName"
)

// SessionAuth resolves the session cookie to a user and stores it in the
// request context. Requests without a valid session are refused with 403,
// which is what the cookie-based surface reports for unauthenticated access.
func SessionAuth(svc *users.Service, cookieName, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Authentication required", problem.ErrForbidden, env)
				return
			}

			user, err := svc.SessionUser(r.Context(), cookie.Value)
			if err != nil {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Authentication required", problem.ErrForbidden, env)
				return
			}

			ctx := context.WithValue(r.Context(), currentUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUser returns the session user set by SessionAuth, or nil.
func CurrentUser(r *http.Request) *users.User {
	if r == nil {
		return nil
	}
	if user, ok := r.Context().Value(currentUserKey).(*users.User); ok {
		return user
	}
	return nil
}

// Authenticated admits requests on either surface: a session cookie or a
// bearer access token. Cookie takes precedence when both are present.
func Authenticated(svc *users.Service, cookieName string, manager *auth.TokenManager, env string) func(http.Handler) http.Handler {
	sessionAuth := SessionAuth(svc, cookieName, env)
	bearerAuth := BearerAuth(manager, env)
	return func(next http.Handler) http.Handler {
		session := sessionAuth(next)
		bearer := bearerAuth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
				session.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("Authorization") != "" {
				bearer.ServeHTTP(w, r)
				return
			}
			problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Authentication required", problem.ErrForbidden, env)
		})
	}
}

// RequireCapability refuses the request unless the caller's role grants the
// capability. Must run inside SessionAuth, BearerAuth, or Authenticated.
func RequireCapability(capability auth.Capability, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := callerRole(r)
			if !ok || !auth.Allows(role, capability) {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Permission denied", problem.ErrForbidden, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerRole(r *http.Request) (auth.Role, bool) {
	if user := CurrentUser(r); user != nil {
		return user.Role, true
	}
	if claims := TokenClaims(r); claims != nil {
		return auth.Role(claims.Role), true
	}
	return "", false
}

// BearerAuth validates a JWT access token from the Authorization header and
// stores its claims in the request context.
func BearerAuth(manager *auth.TokenManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Missing or malformed token", err, env)
				return
			}

			claims, err := manager.ValidateAccess(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid or expired token", err, env)
				return
			}

			ctx := context.WithValue(r.Context(), tokenClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenClaims returns the claims set by BearerAuth, or nil.
func TokenClaims(r *http.Request) *auth.Claims {
	if r == nil {
		return nil
	}
	if claims, ok := r.Context().Value(tokenClaimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// APIKeyGate admits only requests carrying a valid server-issued API key.
// It guards authority account creation; failures are audited.
func APIKeyGate(store auth.APIKeyStore, auditLog *audit.Logger, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := auth.ValidateAPIKey(r.Context(), store, r.Header.Get("Authorization"))
			if err != nil {
				auditLog.Failure(r.Context(), "apikey.rejected", clientKey(r), map[string]string{
					"path": r.URL.Path,
				})
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Permission denied", problem.ErrForbidden, env)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyNameKey, key.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyName returns the name of the API key that passed APIKeyGate.
func APIKeyName(r *http.Request) string {
	if r == nil {
		return ""
	}
	if name, ok := r.Context().Value(apiKeyNameKey).(string); ok {
		return name
	}
	return ""
}
