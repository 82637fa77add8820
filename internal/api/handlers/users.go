package handlers

import (
	"errors"
	"net/http"

	"github.com/civicsquare/server/internal/api/middleware"
	"github.com/civicsquare/server/internal/api/problem"
	"github.com/civicsquare/server/internal/config"
	"github.com/civicsquare/server/internal/domain/users"
	"github.com/civicsquare/server/internal/metrics"
	"github.com/google/uuid"
)

// UsersHandler serves public registration, email confirmation, and the
// cookie-session login surface.
type UsersHandler struct {
	Users   *users.Service
	Session config.SessionConfig
	Env     string
}

func NewUsersHandler(svc *users.Service, session config.SessionConfig, env string) *UsersHandler {
	return &UsersHandler{Users: svc, Session: session, Env: env}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
}

type userSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
}

func summarize(u users.User) userSummary {
	return userSummary{
		ID:        u.ID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
	}
}

func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req, h.Env) {
		return
	}

	user, err := h.Users.Register(r.Context(), users.RegisterParams{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
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

func (h *UsersHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(pathParam(r, "userID"))
	if err != nil {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "User not found", err, h.Env)
		return
	}

	if err := h.Users.ConfirmEmail(r.Context(), userID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "User not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email confirmed. You can now log in.",
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates against the session surface. Every failure mode,
// including unconfirmed accounts, gets the same undifferentiated body so
// the endpoint cannot be used to probe which emails exist.
func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req, h.Env) {
		return
	}

	user, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			metrics.LoginsTotal.WithLabelValues("session", "failure").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid Credentials"})
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	token, session, err := h.Users.CreateSession(r.Context(), user)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	metrics.LoginsTotal.WithLabelValues("session", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Login successful",
		"csrf_token": middleware.CSRFToken(r),
	})
}

// Logout deletes the server-side session row and expires the cookie. It is
// idempotent; a missing or stale cookie still gets a clean 200.
func (h *UsersHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.Session.CookieName); err == nil && cookie.Value != "" {
		if err := h.Users.Logout(r.Context(), cookie.Value); err != nil {
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

type profileResponse struct {
	userSummary
	JoinedEvents []eventResponse `json:"joined_events"`
}

func (h *UsersHandler) Profile(w http.ResponseWriter, r *http.Request) {
	current := middleware.CurrentUser(r)
	if current == nil {
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Authentication required", nil, h.Env)
		return
	}

	user, joined, err := h.Users.Profile(r.Context(), current.ID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "User not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	resp := profileResponse{
		userSummary:  summarize(*user),
		JoinedEvents: make([]eventResponse, 0, len(joined)),
	}
	for _, event := range joined {
		resp.JoinedEvents = append(resp.JoinedEvents, toEventResponse(event))
	}

	writeJSON(w, http.StatusOK, resp)
}
