package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Enqueuer inserts jobs from request handlers. It satisfies the users
// service's ConfirmationMailer.
type Enqueuer struct {
	client *river.Client[pgx.Tx]
}

func NewEnqueuer(client *river.Client[pgx.Tx]) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueConfirmation(ctx context.Context, userID uuid.UUID, emailAddr, firstName, confirmURL string) error {
	opts := InsertOptsForKind(JobKindConfirmationEmail)
	_, err := e.client.Insert(ctx, ConfirmationEmailArgs{
		UserID:     userID,
		Email:      emailAddr,
		FirstName:  firstName,
		ConfirmURL: confirmURL,
	}, &opts)
	if err != nil {
		return fmt.Errorf("enqueue confirmation email: %w", err)
	}
	return nil
}
