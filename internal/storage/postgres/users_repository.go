package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/users"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db queryer
}

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, params users.CreateParams) (users.User, error) {
	row := r.db.QueryRow(ctx, `
INSERT INTO users (id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at)
VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, now(), now())
RETURNING `+userColumns,
		params.Email, params.PasswordHash, params.FirstName, params.LastName, string(params.Role), params.IsActive)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return users.User{}, users.ErrEmailTaken
		}
		return users.User{}, fmt.Errorf("create user: %w", err)
	}
	return *user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) Activate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_active = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) JoinedEvents(ctx context.Context, userID uuid.UUID) ([]catalog.Event, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+eventColumns+`
  FROM events e
  JOIN categories c ON c.id = e.category_id
  JOIN event_participants ep ON ep.event_id = e.id
 WHERE ep.user_id = $1
 ORDER BY e.event_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("joined events: %w", err)
	}
	defer rows.Close()

	var events []catalog.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("joined events: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func scanUser(row pgx.Row) (*users.User, error) {
	var user users.User
	var role string
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = auth.NormalizeRole(role)
	return &user, nil
}
