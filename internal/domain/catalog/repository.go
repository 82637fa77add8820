package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate covers uniqueness violations: a category name already in
	// use, or a participant row that already exists.
	ErrDuplicate = errors.New("duplicate")
)

type CategoryRepository interface {
	Create(ctx context.Context, name string) (Category, error)
	List(ctx context.Context) ([]Category, error)
	GetByID(ctx context.Context, id int64) (*Category, error)
	// Delete removes the category; events referencing it cascade away.
	Delete(ctx context.Context, id int64) error
}

type EventRepository interface {
	Create(ctx context.Context, params EventCreateParams) (Event, error)
	GetByPublicID(ctx context.Context, publicID string) (*Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filters Filters, limit, offset int) (ListResult, error)

	// Registration internals. GetForUpdate takes a row lock and is only
	// meaningful inside a transaction; the three membership operations must
	// run under that same lock.
	GetForUpdate(ctx context.Context, publicID string) (*Event, error)
	IsParticipant(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	CountParticipants(ctx context.Context, eventID uuid.UUID) (int, error)
	AddParticipant(ctx context.Context, eventID, userID uuid.UUID) error
}
