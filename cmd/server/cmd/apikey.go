package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/storage/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var apiKeyExpiry time.Duration

var apiKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Manage API keys",
	Long: `Manage the API keys that gate authority account creation.

The key value is displayed once at creation and cannot be retrieved
later; only its prefix and hash are stored.

Examples:
  server api-key create city-ops
  server api-key list
  server api-key revoke <id>`,
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(func(ctx context.Context, repo *postgres.Repository) error {
			plaintext, prefix, hash, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}

			key := &auth.APIKey{
				ID:       uuid.NewString(),
				Prefix:   prefix,
				Hash:     hash,
				Name:     args[0],
				IsActive: true,
			}
			if apiKeyExpiry > 0 {
				expiresAt := time.Now().Add(apiKeyExpiry)
				key.ExpiresAt = &expiresAt
			}

			if err := repo.APIKeys().Create(ctx, key); err != nil {
				return fmt.Errorf("create api key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API key created: %s\n", key.Name)
			fmt.Fprintf(out, "ID:  %s\n", key.ID)
			fmt.Fprintf(out, "Key: %s\n", plaintext)
			fmt.Fprintln(out, "Store this key now; it will not be shown again.")
			return nil
		})
	},
}

var apiKeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(func(ctx context.Context, repo *postgres.Repository) error {
			keys, err := repo.APIKeys().List(ctx)
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPREFIX\tACTIVE\tCREATED\tLAST USED")
			for _, key := range keys {
				lastUsed := "never"
				if key.LastUsedAt != nil {
					lastUsed = key.LastUsedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
					key.ID, key.Name, key.Prefix, key.IsActive,
					key.CreatedAt.Format(time.RFC3339), lastUsed)
			}
			return w.Flush()
		})
	},
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(func(ctx context.Context, repo *postgres.Repository) error {
			if err := repo.APIKeys().Revoke(ctx, args[0]); err != nil {
				return fmt.Errorf("revoke api key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key %s revoked\n", args[0])
			return nil
		})
	},
}

func init() {
	apiKeyCmd.AddCommand(apiKeyCreateCmd)
	apiKeyCmd.AddCommand(apiKeyListCmd)
	apiKeyCmd.AddCommand(apiKeyRevokeCmd)

	apiKeyCreateCmd.Flags().DurationVar(&apiKeyExpiry, "expires-in", 0, "key lifetime (0 means no expiry)")
}

// withRepository runs fn against a short-lived database connection.
func withRepository(fn func(context.Context, *postgres.Repository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	return fn(ctx, repo)
}
