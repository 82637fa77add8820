package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "typ" claim. A refresh token can never be used
// where an access token is expected, and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token has been revoked")
)

// Claims are the JWT claims minted by the token manager.
type Claims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is a refresh token and its derived short-lived access token.
type TokenPair struct {
	Refresh          string
	Access           string
	RefreshExpiresAt time.Time
	AccessExpiresAt  time.Time
}

// RevocationStore persists refresh-token revocations (a blacklist keyed by jti).
type RevocationStore interface {
	Revoke(ctx context.Context, jti uuid.UUID, userID uuid.UUID, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti uuid.UUID) (bool, error)
}

// TokenManager mints and validates the access/refresh token pair used by the
// authority token-login flow.
type TokenManager struct {
	secret        []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewTokenManager(secret, issuer string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:        []byte(secret),
		issuer:        issuer,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// GeneratePair mints a refresh token and a derived access token for a subject.
func (m *TokenManager) GeneratePair(subject string, role Role) (TokenPair, error) {
	if subject == "" {
		return TokenPair{}, ErrInvalidToken
	}

	now := time.Now()
	refreshExpiry := now.Add(m.refreshExpiry)
	accessExpiry := now.Add(m.accessExpiry)

	refresh, err := m.sign(subject, role, TokenTypeRefresh, now, refreshExpiry)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := m.sign(subject, role, TokenTypeAccess, now, accessExpiry)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		Refresh:          refresh,
		Access:           access,
		RefreshExpiresAt: refreshExpiry,
		AccessExpiresAt:  accessExpiry,
	}, nil
}

// AccessFromRefresh validates a refresh token against the blacklist and mints
// a fresh access token for the same subject and role.
func (m *TokenManager) AccessFromRefresh(ctx context.Context, store RevocationStore, refresh string) (string, time.Time, error) {
	claims, err := m.ValidateRefresh(ctx, store, refresh)
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now()
	expiresAt := now.Add(m.accessExpiry)
	access, err := m.sign(claims.Subject, NormalizeRole(claims.Role), TokenTypeAccess, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return access, expiresAt, nil
}

// ValidateAccess parses and verifies an access token.
func (m *TokenManager) ValidateAccess(tokenString string) (*Claims, error) {
	return m.validate(tokenString, TokenTypeAccess)
}

// ValidateRefresh parses and verifies a refresh token and checks the blacklist.
func (m *TokenManager) ValidateRefresh(ctx context.Context, store RevocationStore, tokenString string) (*Claims, error) {
	claims, err := m.validate(tokenString, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if store != nil {
		revoked, err := store.IsRevoked(ctx, jti)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}
	return claims, nil
}

// RevokeRefresh validates a refresh token and adds it to the blacklist. A
// malformed or already-revoked token is an error.
func (m *TokenManager) RevokeRefresh(ctx context.Context, store RevocationStore, tokenString string) error {
	claims, err := m.ValidateRefresh(ctx, store, tokenString)
	if err != nil {
		return err
	}

	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ErrInvalidToken
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return store.Revoke(ctx, jti, userID, expiresAt)
}

func (m *TokenManager) sign(subject string, role Role, tokenType string, now, expiresAt time.Time) (string, error) {
	claims := &Claims{
		Role:      string(role),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *TokenManager) validate(tokenString, wantType string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromHeader extracts a bearer token from an Authorization header value.
func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}
