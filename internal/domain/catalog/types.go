package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Status is the event lifecycle state.
type Status string

const (
	StatusUpcoming  Status = "UPCOMING"
	StatusOngoing   Status = "ONGOING"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Category is a flat event bucket. Deleting a category cascades to its events.
type Category struct {
	ID   int64
	Name string
}

// Event is a published community event. PublicID is the ULID exposed in URLs;
// ID is the internal key. ParticipantCount is filled on reads that join the
// registration relation.
type Event struct {
	ID                   uuid.UUID
	PublicID             string
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
	CategoryName         string
	ParticipantCount     int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// EventCreateParams are the inputs for persisting a new event.
type EventCreateParams struct {
	PublicID             string
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

// OrderField is a whitelisted ordering column for the event listing.
type OrderField string

const (
	OrderByName     OrderField = "name"
	OrderByDate     OrderField = "date"
	OrderByLocation OrderField = "location"
	OrderByCategory OrderField = "category"
)

// Ordering pairs a whitelisted field with a direction.
type Ordering struct {
	Field      OrderField
	Descending bool
}

// Filters narrow the event listing. String matches are case-insensitive
// substring matches; Date is an exact calendar-day match; Search applies the
// free-text term across name, location, date, and category name.
type Filters struct {
	Name     string
	Location string
	Date     *time.Time
	Category string
	Search   string
	Ordering *Ordering
}

// ListResult is one page of events plus the unpaginated total.
type ListResult struct {
	Events []Event
	Total  int
}
