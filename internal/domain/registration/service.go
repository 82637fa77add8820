// Package registration implements event sign-up. Each attempt runs inside a
// transaction holding a row lock on the event, so capacity can never be
// oversubscribed under concurrent requests.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/ids"
	"github.com/civicsquare/server/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrAlreadyRegistered  = errors.New("user is already registered for this event")
	ErrEventFull          = errors.New("event is at capacity")
	ErrRegistrationClosed = errors.New("registration is closed for this event")
)

type Service struct {
	repo   storage.Repository
	logger zerolog.Logger
}

func NewService(repo storage.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "registration").Logger(),
	}
}

// Register signs the user up for the event and returns the participant count
// after the sign-up. The event row is locked for the duration of the
// deadline, membership, and capacity checks plus the insert, which serializes
// competing registrations for the same event.
func (s *Service) Register(ctx context.Context, userID uuid.UUID, eventPublicID string) (int, error) {
	publicID, err := ids.NormalizeULID(eventPublicID)
	if err != nil {
		return 0, ErrEventNotFound
	}

	var total int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		event, err := tx.Events().GetForUpdate(ctx, publicID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return ErrEventNotFound
			}
			return fmt.Errorf("lock event: %w", err)
		}

		switch event.Status {
		case catalog.StatusCompleted, catalog.StatusCanceled:
			return ErrRegistrationClosed
		}
		if time.Now().After(event.RegistrationDeadline) {
			return ErrRegistrationClosed
		}

		already, err := tx.Events().IsParticipant(ctx, event.ID, userID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if already {
			return ErrAlreadyRegistered
		}

		count, err := tx.Events().CountParticipants(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if count >= event.Capacity {
			return ErrEventFull
		}

		if err := tx.Events().AddParticipant(ctx, event.ID, userID); err != nil {
			if errors.Is(err, catalog.ErrDuplicate) {
				return ErrAlreadyRegistered
			}
			return fmt.Errorf("add participant: %w", err)
		}

		total = count + 1
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("event_id", publicID).
		Str("user_id", userID.String()).
		Int("participants", total).
		Msg("registration accepted")
	return total, nil
}
