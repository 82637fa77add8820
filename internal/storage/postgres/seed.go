package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// rolePermissions mirrors the capability table for auditing. Authorization
// never reads these rows; they exist so operators can inspect what each role
// grants.
var rolePermissions = map[string][]string{
	"Residents": {
		"view_event", "join_event", "change_user", "delete_user",
	},
	"Government Authority": {
		"add_event", "change_event", "delete_event", "view_event", "join_event",
		"add_category", "change_category", "delete_category",
		"view_user", "add_user", "change_user", "delete_user",
	},
}

// SeedRoles writes the named role rows and their permission sets. It is
// idempotent and safe to invoke on every deployment; it replaces the old
// migration-hook side effect.
func SeedRoles(ctx context.Context, pool *pgxpool.Pool) error {
	for name, permissions := range rolePermissions {
		_, err := pool.Exec(ctx, `
INSERT INTO roles (name, permissions, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE
   SET permissions = EXCLUDED.permissions,
       updated_at  = now()`, name, permissions)
		if err != nil {
			return fmt.Errorf("seed role %q: %w", name, err)
		}
	}
	return nil
}
