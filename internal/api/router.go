// Package api assembles the HTTP surface: route table, middleware chain,
// and the ops endpoints.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/civicsquare/server/internal/api/handlers"
	"github.com/civicsquare/server/internal/api/middleware"
	"github.com/civicsquare/server/internal/audit"
	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/config"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/registration"
	"github.com/civicsquare/server/internal/domain/users"
	"github.com/civicsquare/server/internal/metrics"
	"github.com/civicsquare/server/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps carries everything the route table needs. The serve command builds
// these once and hands them over; the router owns none of their lifecycles.
type Deps struct {
	Pool          *pgxpool.Pool
	Repo          storage.Repository
	Users         *users.Service
	Catalog       *catalog.Service
	Registrations *registration.Service
	Tokens        *auth.TokenManager
	AuditLog      *audit.Logger
	Limiter       *middleware.RateLimiter
}

func NewRouter(cfg config.Config, deps Deps, logger zerolog.Logger) http.Handler {
	env := cfg.Environment

	usersHandler := handlers.NewUsersHandler(deps.Users, cfg.Session, env)
	adminHandler := handlers.NewAdminAuthHandler(deps.Users, deps.Tokens, deps.Repo.Tokens(), env)
	categoriesHandler := handlers.NewCategoriesHandler(deps.Catalog, env)
	eventsHandler := handlers.NewEventsHandler(deps.Catalog, deps.Registrations, env)

	csrfProtect := middleware.CSRFProtection([]byte(cfg.Auth.CSRFKey), cfg.Session.Secure)
	sessionAuth := middleware.SessionAuth(deps.Users, cfg.Session.CookieName, env)
	anyAuth := middleware.Authenticated(deps.Users, cfg.Session.CookieName, deps.Tokens, env)
	manageEvents := middleware.RequireCapability(auth.CapManageEvents, env)
	manageCategories := middleware.RequireCapability(auth.CapManageCategory, env)
	apiKeyGate := middleware.APIKeyGate(deps.Repo.APIKeys(), deps.AuditLog, env)

	publicTier := deps.Limiter.Limit(middleware.TierPublic)
	authedTier := deps.Limiter.Limit(middleware.TierAuthed)
	loginTier := deps.Limiter.Limit(middleware.TierLogin)

	// The cookie surface runs inside CSRF protection; endpoints reachable
	// before a token exists skip the check but still pass through Protect so
	// the login response can mint a token. The bearer and API-key surfaces
	// carry no cookies and bypass it entirely.
	preToken := func(h http.Handler) http.Handler {
		return middleware.SkipCSRF(csrfProtect(h))
	}
	cookieMutation := func(h http.Handler) http.Handler {
		return csrfProtect(sessionAuth(h))
	}
	// Catalog mutations accept both surfaces; only the cookie branch needs
	// the CSRF check.
	sessionCSRF := middleware.SessionCSRF(cfg.Session.CookieName, csrfProtect)

	mux := http.NewServeMux()

	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(deps.Pool))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Public account endpoints.
	mux.Handle("/api/users/register/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: publicTier(preToken(http.HandlerFunc(usersHandler.Register))),
	}))
	mux.Handle("/api/users/confirm-email/{userID}/{$}", methodMux(map[string]http.Handler{
		http.MethodGet: publicTier(http.HandlerFunc(usersHandler.ConfirmEmail)),
	}))
	mux.Handle("/api/users/login/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: loginTier(preToken(http.HandlerFunc(usersHandler.Login))),
	}))
	mux.Handle("/api/users/logout/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: authedTier(cookieMutation(http.HandlerFunc(usersHandler.Logout))),
	}))
	mux.Handle("/api/users/user-profile/{$}", methodMux(map[string]http.Handler{
		http.MethodGet: authedTier(csrfProtect(sessionAuth(http.HandlerFunc(usersHandler.Profile)))),
	}))

	// Authority surface: API-key-gated issuance plus the JWT token flow.
	mux.Handle("/api/users/admin/create/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: authedTier(apiKeyGate(http.HandlerFunc(adminHandler.CreateAuthority))),
	}))
	mux.Handle("/api/users/admin/login/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: loginTier(http.HandlerFunc(adminHandler.TokenLogin)),
	}))
	mux.Handle("/api/users/admin/logout/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: authedTier(http.HandlerFunc(adminHandler.TokenLogout)),
	}))
	mux.Handle("/api/token/refresh/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: authedTier(http.HandlerFunc(adminHandler.TokenRefresh)),
	}))

	// Catalog. Event reads need any authenticated caller; the category
	// endpoint is authority-only for both reads and writes.
	mux.Handle("/api/events/category/{$}", methodMux(map[string]http.Handler{
		http.MethodGet:  authedTier(anyAuth(manageCategories(http.HandlerFunc(categoriesHandler.List)))),
		http.MethodPost: authedTier(sessionCSRF(anyAuth(manageCategories(http.HandlerFunc(categoriesHandler.Create))))),
	}))
	mux.Handle("/api/events/category/{id}/{$}", methodMux(map[string]http.Handler{
		http.MethodDelete: authedTier(sessionCSRF(anyAuth(manageCategories(http.HandlerFunc(categoriesHandler.Delete))))),
	}))
	mux.Handle("/api/events/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: authedTier(sessionCSRF(anyAuth(manageEvents(http.HandlerFunc(eventsHandler.Create))))),
	}))
	mux.Handle("/api/events/event-list/{$}", methodMux(map[string]http.Handler{
		http.MethodGet: authedTier(anyAuth(http.HandlerFunc(eventsHandler.List))),
	}))
	mux.Handle("/api/events/register-event/{eventID}/{$}", methodMux(map[string]http.Handler{
		http.MethodPost: authedTier(cookieMutation(http.HandlerFunc(eventsHandler.RegisterParticipant))),
	}))
	mux.Handle("/api/events/{id}/{$}", methodMux(map[string]http.Handler{
		http.MethodGet:    authedTier(anyAuth(http.HandlerFunc(eventsHandler.Get))),
		http.MethodDelete: authedTier(sessionCSRF(anyAuth(manageEvents(http.HandlerFunc(eventsHandler.Delete))))),
	}))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.SecurityHeaders(cfg.Session.Secure)(handler)
	handler = middleware.RequestLogging(logger)(handler)
	return handler
}

func methodMux(routes map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := routes[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(routes))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(routes map[string]http.Handler) string {
	methods := make([]string, 0, len(routes))
	for method := range routes {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
