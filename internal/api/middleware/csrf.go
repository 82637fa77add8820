package middleware

import (
	"net/http"

	"github.com/civicsquare/server/internal/api/problem"
	"github.com/gorilla/csrf"
)

// CSRFProtection guards the cookie-authenticated surface with the
// double-submit cookie pattern. Clients read the token from the login
// response and send it back in the X-CSRF-Token header on mutations.
// The token-authenticated admin surface does not need it.
func CSRFProtection(authKey []byte, secure bool) func(http.Handler) http.Handler {
	opts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	}
	return csrf.Protect(authKey, opts...)
}

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	problem.WriteProblem(w, problem.ProblemDetails{
		Type:   problem.TypeForbidden,
		Title:  "CSRF token validation failed",
		Status: http.StatusForbidden,
	})
}

// SkipCSRF exempts a handler from CSRF checks. Used on endpoints that must
// be reachable before a token exists, such as login and registration.
func SkipCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, csrf.UnsafeSkipCheck(r))
	})
}

// SessionCSRF applies CSRF protection only when the request carries the
// session cookie. Bearer and API-key callers attach credentials explicitly,
// so there is nothing for a cross-site request to ride on.
func SessionCSRF(cookieName string, protect func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := r.Cookie(cookieName); err != nil {
				r = csrf.UnsafeSkipCheck(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// CSRFToken returns the token for the current request, handed to clients in
// the login response body.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}
