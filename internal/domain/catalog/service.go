package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicsquare/server/internal/audit"
	"github.com/civicsquare/server/internal/domain/ids"
	"github.com/civicsquare/server/internal/sanitize"
	"github.com/rs/zerolog"
)

var (
	ErrCategoryExists  = errors.New("category name is already in use")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidCapacity = errors.New("capacity must be greater than zero")
	ErrInvalidStatus   = errors.New("invalid event status")
	ErrEmptyName       = errors.New("name must not be empty")
)

// Service manages the event catalog: categories and the events inside them.
// Role checks happen at the API layer; everything here assumes the caller is
// allowed to act.
type Service struct {
	categories CategoryRepository
	events     EventRepository
	auditLog   *audit.Logger
	logger     zerolog.Logger
}

func NewService(categories CategoryRepository, events EventRepository, auditLog *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		categories: categories,
		events:     events,
		auditLog:   auditLog,
		logger:     logger.With().Str("component", "catalog").Logger(),
	}
}

func (s *Service) CreateCategory(ctx context.Context, name, actor string) (Category, error) {
	cleaned := sanitize.Text(name)
	if cleaned == "" {
		return Category{}, ErrEmptyName
	}

	category, err := s.categories.Create(ctx, cleaned)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Category{}, ErrCategoryExists
		}
		return Category{}, fmt.Errorf("create category: %w", err)
	}

	s.auditLog.Success(ctx, "category.created", actor, "category", fmt.Sprint(category.ID), map[string]string{
		"name": category.Name,
	})
	return category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// DeleteCategory removes the category and, via the schema's cascade, every
// event filed under it.
func (s *Service) DeleteCategory(ctx context.Context, id int64, actor string) error {
	if err := s.categories.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete category: %w", err)
	}

	s.auditLog.Success(ctx, "category.deleted", actor, "category", fmt.Sprint(id), nil)
	return nil
}

// CreateEventParams are the API-facing inputs; the service mints the public
// ULID and sanitizes the text fields.
type CreateEventParams struct {
	Name                 string
	Host                 string
	Description          string
	ImageURL             string
	EventDate            time.Time
	RegistrationDeadline time.Time
	Location             string
	Capacity             int
	Status               Status
	CategoryID           int64
}

func (s *Service) CreateEvent(ctx context.Context, params CreateEventParams, actor string) (Event, error) {
	if params.Capacity <= 0 {
		return Event{}, ErrInvalidCapacity
	}
	if params.Status == "" {
		params.Status = StatusUpcoming
	}
	if !params.Status.Valid() {
		return Event{}, ErrInvalidStatus
	}

	name := sanitize.Text(params.Name)
	if name == "" {
		return Event{}, ErrEmptyName
	}

	publicID, err := ids.NewULID()
	if err != nil {
		return Event{}, fmt.Errorf("mint event id: %w", err)
	}

	event, err := s.events.Create(ctx, EventCreateParams{
		PublicID:             publicID,
		Name:                 name,
		Host:                 sanitize.Text(params.Host),
		Description:          sanitize.HTML(params.Description),
		ImageURL:             sanitize.Text(params.ImageURL),
		EventDate:            params.EventDate,
		RegistrationDeadline: params.RegistrationDeadline,
		Location:             sanitize.Text(params.Location),
		Capacity:             params.Capacity,
		Status:               params.Status,
		CategoryID:           params.CategoryID,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Event{}, ErrUnknownCategory
		}
		return Event{}, fmt.Errorf("create event: %w", err)
	}

	s.auditLog.Success(ctx, "event.created", actor, "event", event.PublicID, map[string]string{
		"name": event.Name,
	})
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, publicID string) (*Event, error) {
	normalized, err := ids.NormalizeULID(publicID)
	if err != nil {
		return nil, ErrNotFound
	}

	event, err := s.events.GetByPublicID(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (s *Service) DeleteEvent(ctx context.Context, publicID, actor string) error {
	event, err := s.GetEvent(ctx, publicID)
	if err != nil {
		return err
	}

	if err := s.events.Delete(ctx, event.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}

	s.auditLog.Success(ctx, "event.deleted", actor, "event", event.PublicID, nil)
	return nil
}

// ListEvents returns one page of events matching the filters plus the
// unpaginated total.
func (s *Service) ListEvents(ctx context.Context, filters Filters, limit, offset int) (ListResult, error) {
	result, err := s.events.List(ctx, filters, limit, offset)
	if err != nil {
		return ListResult{}, fmt.Errorf("list events: %w", err)
	}
	return result, nil
}
