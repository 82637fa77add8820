package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type APIKeyRepository struct {
	db queryer
}

func (r *APIKeyRepository) Create(ctx context.Context, key *auth.APIKey) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO api_keys (id, prefix, key_hash, name, is_active, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())`,
		key.ID, key.Prefix, key.Hash, key.Name, key.IsActive, key.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) LookupByPrefix(ctx context.Context, prefix string) (*auth.APIKey, error) {
	row := r.db.QueryRow(ctx, `
SELECT id, prefix, key_hash, name, is_active, expires_at, last_used_at, created_at
  FROM api_keys
 WHERE prefix = $1
 LIMIT 1`, prefix)

	key, err := scanAPIKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) List(ctx context.Context) ([]auth.APIKey, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, prefix, key_hash, name, is_active, expires_at, last_used_at, created_at
  FROM api_keys
 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []auth.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("list api keys: %w", err)
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE api_keys SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*auth.APIKey, error) {
	var key auth.APIKey
	if err := row.Scan(
		&key.ID,
		&key.Prefix,
		&key.Hash,
		&key.Name,
		&key.IsActive,
		&key.ExpiresAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &key, nil
}
