package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/civicsquare/server/internal/audit"
	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrEmailTaken = errors.New("email is already registered")
	ErrNotFound   = errors.New("user not found")
	// ErrInvalidCredentials covers unknown email, wrong password, and inactive
	// accounts alike so that login failures never reveal which one applied.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)

// ConfirmationMailer delivers the account-confirmation email out of band.
type ConfirmationMailer interface {
	EnqueueConfirmation(ctx context.Context, userID uuid.UUID, email, firstName, confirmURL string) error
}

// Service handles account lifecycle: registration, confirmation, login
// sessions, and authority issuance.
type Service struct {
	repo       Repository
	sessions   SessionRepository
	mailer     ConfirmationMailer
	auditLog   *audit.Logger
	baseURL    string
	sessionTTL time.Duration
	logger     zerolog.Logger
}

func NewService(repo Repository, sessions SessionRepository, mailer ConfirmationMailer, auditLog *audit.Logger, baseURL string, sessionTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		sessions:   sessions,
		mailer:     mailer,
		auditLog:   auditLog,
		baseURL:    baseURL,
		sessionTTL: sessionTTL,
		logger:     logger.With().Str("component", "users").Logger(),
	}
}

// RegisterParams are the public-registration inputs. Password is plaintext
// here and never stored.
type RegisterParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an inactive resident account and queues the confirmation
// email. The account cannot log in until the emailed link is followed.
func (s *Service) Register(ctx context.Context, params RegisterParams) (User, error) {
	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return User{}, err
	}

	user, err := s.repo.Create(ctx, CreateParams{
		Email:        params.Email,
		PasswordHash: hash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Role:         auth.RoleResident,
		IsActive:     false,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("register user: %w", err)
	}

	confirmURL := fmt.Sprintf("%s/api/users/confirm-email/%s/", s.baseURL, user.ID)
	if s.mailer != nil {
		if err := s.mailer.EnqueueConfirmation(ctx, user.ID, user.Email, user.FirstName, confirmURL); err != nil {
			// The account exists; delivery is retried by the job queue, so a
			// failed enqueue is logged rather than failing registration.
			s.logger.Error().Err(err).Str("email", user.Email).Msg("failed to enqueue confirmation email")
		}
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("resident registered")
	return user, nil
}

// ConfirmEmail activates exactly the given account. Unknown ids report
// ErrNotFound; confirming an already-active account is a no-op.
func (s *Service) ConfirmEmail(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Activate(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("confirm email: %w", err)
	}
	s.logger.Info().Str("user_id", userID.String()).Msg("account confirmed")
	return nil
}

// Authenticate checks credentials and account state. Every failure mode maps
// to ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// CreateSession opens a server-side session and returns the plaintext cookie
// token. Only the token's hash is stored.
func (s *Service) CreateSession(ctx context.Context, user *User) (string, Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", Session{}, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now()
	session := Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashSessionToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", Session{}, fmt.Errorf("create session: %w", err)
	}
	return token, session, nil
}

// SessionUser resolves a session cookie token to its user, or
// ErrSessionNotFound for unknown/expired sessions.
func (s *Service) SessionUser(ctx context.Context, token string) (*User, error) {
	session, err := s.sessions.GetByTokenHash(ctx, hashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	user, err := s.repo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("resolve session user: %w", err)
	}
	return user, nil
}

// Logout deletes the session row server-side, invalidating the cookie
// immediately regardless of what the client keeps.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.sessions.DeleteByTokenHash(ctx, hashSessionToken(token))
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// CreateAuthority creates an active Government Authority account. Callers
// must already have passed the API-key gate; this is the only issuance path.
func (s *Service) CreateAuthority(ctx context.Context, params RegisterParams, issuedBy string) (User, error) {
	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return User{}, err
	}

	user, err := s.repo.Create(ctx, CreateParams{
		Email:        params.Email,
		PasswordHash: hash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Role:         auth.RoleAuthority,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("create authority: %w", err)
	}

	s.auditLog.Success(ctx, "user.authority_created", issuedBy, "user", user.ID.String(), map[string]string{
		"email": user.Email,
	})
	return user, nil
}

// Profile returns the user together with the events they have joined.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*User, []catalog.Event, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("profile: %w", err)
	}

	joined, err := s.repo.JoinedEvents(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("profile joined events: %w", err)
	}
	return user, joined, nil
}

func hashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
