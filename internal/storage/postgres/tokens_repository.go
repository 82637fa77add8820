package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository is the refresh-token blacklist. Rows outlive the tokens they
// revoke only until DeleteExpired sweeps them.
type TokenRepository struct {
	db queryer
}

func (r *TokenRepository) Revoke(ctx context.Context, jti uuid.UUID, userID uuid.UUID, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO revoked_tokens (jti, user_id, expires_at, revoked_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (jti) DO NOTHING`, jti, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *TokenRepository) IsRevoked(ctx context.Context, jti uuid.UUID) (bool, error) {
	var revoked bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	return tag.RowsAffected(), nil
}
