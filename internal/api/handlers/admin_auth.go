package handlers

import (
	"errors"
	"net/http"

	"github.com/civicsquare/server/internal/api/middleware"
	"github.com/civicsquare/server/internal/api/problem"
	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/domain/users"
	"github.com/civicsquare/server/internal/metrics"
)

// AdminAuthHandler serves the authority surface: API-key-gated account
// issuance and the JWT login used by automation and back-office clients.
type AdminAuthHandler struct {
	Users  *users.Service
	Tokens *auth.TokenManager
	Store  auth.RevocationStore
	Env    string
}

func NewAdminAuthHandler(svc *users.Service, tokens *auth.TokenManager, store auth.RevocationStore, env string) *AdminAuthHandler {
	return &AdminAuthHandler{Users: svc, Tokens: tokens, Store: store, Env: env}
}

// CreateAuthority provisions an authority account. The route is gated by an
// API key, which is the only issuance path; the key's name is recorded as
// the issuing actor.
func (h *AdminAuthHandler) CreateAuthority(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req, h.Env) {
		return
	}

	issuedBy := middleware.APIKeyName(r)
	user, err := h.Users.CreateAuthority(r.Context(), users.RegisterParams{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, issuedBy)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, h.Env,
				problem.WithErrors(map[string]interface{}{"email": "A user with this email already exists."}))
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, summarize(user))
}

// TokenLogin exchanges credentials for a refresh/access pair. Failures are
// undifferentiated for the same anti-enumeration reason as the session
// login.
func (h *AdminAuthHandler) TokenLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req, h.Env) {
		return
	}

	user, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			metrics.LoginsTotal.WithLabelValues("token", "failure").Inc()
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid Credentials", err, h.Env,
				problem.WithDetail("Invalid Credentials"))
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	pair, err := h.Tokens.GeneratePair(user.ID.String(), user.Role)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	metrics.LoginsTotal.WithLabelValues("token", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{
		"refresh": pair.Refresh,
		"access":  pair.Access,
	})
}

type refreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

// TokenLogout blacklists the refresh token's jti. A malformed or already
// revoked token is a 400 so clients notice double logouts.
func (h *AdminAuthHandler) TokenLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeAndValidate(w, r, &req, h.Env) {
		return
	}

	if err := h.Tokens.RevokeRefresh(r.Context(), h.Store, req.Refresh); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeTokenError, "Token is invalid or expired", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// TokenRefresh mints a new access token from a live refresh token.
func (h *AdminAuthHandler) TokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeAndValidate(w, r, &req, h.Env) {
		return
	}

	access, _, err := h.Tokens.AccessFromRefresh(r.Context(), h.Store, req.Refresh)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeTokenError, "Token is invalid or expired", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}
