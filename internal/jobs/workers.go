package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/civicsquare/server/internal/email"
	"github.com/civicsquare/server/internal/storage"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

type ConfirmationEmailArgs struct {
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	ConfirmURL string    `json:"confirm_url"`
}

func (ConfirmationEmailArgs) Kind() string { return JobKindConfirmationEmail }

// ConfirmationEmailWorker delivers account-confirmation emails. Failures are
// retried by the queue with backoff.
type ConfirmationEmailWorker struct {
	river.WorkerDefaults[ConfirmationEmailArgs]
	Emails *email.Service
}

func (ConfirmationEmailWorker) Kind() string { return JobKindConfirmationEmail }

func (w ConfirmationEmailWorker) Work(ctx context.Context, job *river.Job[ConfirmationEmailArgs]) error {
	if w.Emails == nil {
		return fmt.Errorf("email service not configured")
	}
	args := job.Args
	if err := w.Emails.SendConfirmation(ctx, args.Email, args.FirstName, args.ConfirmURL); err != nil {
		return fmt.Errorf("send confirmation to %s: %w", args.Email, err)
	}
	return nil
}

type SessionCleanupArgs struct{}

func (SessionCleanupArgs) Kind() string { return JobKindSessionCleanup }

// SessionCleanupWorker deletes expired login sessions.
type SessionCleanupWorker struct {
	river.WorkerDefaults[SessionCleanupArgs]
	Repo   storage.Repository
	Logger zerolog.Logger
}

func (SessionCleanupWorker) Kind() string { return JobKindSessionCleanup }

func (w SessionCleanupWorker) Work(ctx context.Context, _ *river.Job[SessionCleanupArgs]) error {
	if w.Repo == nil {
		return fmt.Errorf("repository not configured")
	}
	deleted, err := w.Repo.Sessions().DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	if deleted > 0 {
		w.Logger.Info().Int64("deleted", deleted).Msg("expired sessions removed")
	}
	return nil
}

type TokenCleanupArgs struct{}

func (TokenCleanupArgs) Kind() string { return JobKindTokenCleanup }

// TokenCleanupWorker prunes blacklist entries for refresh tokens that have
// passed their own expiry and can no longer be replayed.
type TokenCleanupWorker struct {
	river.WorkerDefaults[TokenCleanupArgs]
	Repo   storage.Repository
	Logger zerolog.Logger
}

func (TokenCleanupWorker) Kind() string { return JobKindTokenCleanup }

func (w TokenCleanupWorker) Work(ctx context.Context, _ *river.Job[TokenCleanupArgs]) error {
	if w.Repo == nil {
		return fmt.Errorf("repository not configured")
	}
	deleted, err := w.Repo.Tokens().DeleteExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("delete expired token revocations: %w", err)
	}
	if deleted > 0 {
		w.Logger.Info().Int64("deleted", deleted).Msg("expired token revocations removed")
	}
	return nil
}

// NewWorkers registers every worker the server runs.
func NewWorkers(emails *email.Service, repo storage.Repository, logger zerolog.Logger) (*river.Workers, error) {
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, ConfirmationEmailWorker{Emails: emails}); err != nil {
		return nil, fmt.Errorf("register confirmation email worker: %w", err)
	}
	if err := river.AddWorkerSafely(workers, SessionCleanupWorker{Repo: repo, Logger: logger}); err != nil {
		return nil, fmt.Errorf("register session cleanup worker: %w", err)
	}
	if err := river.AddWorkerSafely(workers, TokenCleanupWorker{Repo: repo, Logger: logger}); err != nil {
		return nil, fmt.Errorf("register token cleanup worker: %w", err)
	}
	return workers, nil
}
