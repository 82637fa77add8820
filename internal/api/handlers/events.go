package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/civicsquare/server/internal/api/middleware"
	"github.com/civicsquare/server/internal/api/pagination"
	"github.com/civicsquare/server/internal/api/problem"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/registration"
	"github.com/civicsquare/server/internal/metrics"
)

// EventsHandler serves the event catalog plus the participant registration
// endpoint.
type EventsHandler struct {
	Catalog       *catalog.Service
	Registrations *registration.Service
	Env           string
}

func NewEventsHandler(catalogSvc *catalog.Service, registrations *registration.Service, env string) *EventsHandler {
	return &EventsHandler{Catalog: catalogSvc, Registrations: registrations, Env: env}
}

type eventResponse struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Host                 string `json:"host"`
	Description          string `json:"description"`
	ImageURL             string `json:"image_url,omitempty"`
	EventDate            string `json:"event_date"`
	RegistrationDeadline string `json:"registration_deadline"`
	Location             string `json:"location"`
	Capacity             int    `json:"capacity"`
	Status               string `json:"status"`
	Category             string `json:"category"`
	TotalParticipants    int    `json:"total_participants"`
}

func toEventResponse(e catalog.Event) eventResponse {
	return eventResponse{
		ID:                   e.PublicID,
		Name:                 e.Name,
		Host:                 e.Host,
		Description:          e.Description,
		ImageURL:             e.ImageURL,
		EventDate:            e.EventDate.UTC().Format(time.RFC3339),
		RegistrationDeadline: e.RegistrationDeadline.UTC().Format(time.RFC3339),
		Location:             e.Location,
		Capacity:             e.Capacity,
		Status:               string(e.Status),
		Category:             e.CategoryName,
		TotalParticipants:    e.ParticipantCount,
	}
}

type createEventRequest struct {
	Name                 string    `json:"name" validate:"required,max=255"`
	Host                 string    `json:"host" validate:"required,max=255"`
	Description          string    `json:"description" validate:"required"`
	ImageURL             string    `json:"image_url" validate:"omitempty,url"`
	EventDate            time.Time `json:"event_date" validate:"required"`
	RegistrationDeadline time.Time `json:"registration_deadline" validate:"required"`
	Location             string    `json:"location" validate:"required,max=255"`
	Capacity             int       `json:"capacity" validate:"required,gt=0"`
	Status               string    `json:"status" validate:"omitempty,oneof=UPCOMING ONGOING COMPLETED CANCELED"`
	CategoryID           int64     `json:"category_id" validate:"required"`
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !decodeAndValidate(w, r, &req, h.Env) {
		return
	}

	event, err := h.Catalog.CreateEvent(r.Context(), catalog.CreateEventParams{
		Name:                 req.Name,
		Host:                 req.Host,
		Description:          req.Description,
		ImageURL:             req.ImageURL,
		EventDate:            req.EventDate,
		RegistrationDeadline: req.RegistrationDeadline,
		Location:             req.Location,
		Capacity:             req.Capacity,
		Status:               catalog.Status(req.Status),
		CategoryID:           req.CategoryID,
	}, actorEmail(r))
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrInvalidCapacity):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, h.Env,
				problem.WithErrors(map[string]interface{}{"capacity": "Capacity must be greater than zero."}))
		case errors.Is(err, catalog.ErrInvalidStatus):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, h.Env,
				problem.WithErrors(map[string]interface{}{"status": "Invalid value."}))
		case errors.Is(err, catalog.ErrUnknownCategory):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, h.Env,
				problem.WithErrors(map[string]interface{}{"category_id": "Unknown category."}))
		case errors.Is(err, catalog.ErrEmptyName):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, h.Env,
				problem.WithErrors(map[string]interface{}{"name": "This field is required."}))
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toEventResponse(event))
}

type eventListResponse struct {
	Count    int             `json:"count"`
	Next     string          `json:"next,omitempty"`
	Previous string          `json:"previous,omitempty"`
	Results  []eventResponse `json:"results"`
}

// List serves the filtered, ordered, paginated event listing. An empty
// result set is a 404 rather than an empty page.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, err := catalog.ParseFilters(r.URL.Query())
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid filters", err, h.Env)
		return
	}

	page, err := pagination.Parse(r.URL.Query())
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid pagination", err, h.Env)
		return
	}

	result, err := h.Catalog.ListEvents(r.Context(), filters, page.Size, page.Offset())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	if result.Total == 0 {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "No events found", nil, h.Env,
			problem.WithDetail("No events match the given criteria."))
		return
	}

	next, previous := pagination.Links(r.URL, page, result.Total)
	resp := eventListResponse{
		Count:    result.Total,
		Next:     next,
		Previous: previous,
		Results:  make([]eventResponse, 0, len(result.Events)),
	}
	for _, event := range result.Events {
		resp.Results = append(resp.Results, toEventResponse(event))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.Catalog.GetEvent(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, toEventResponse(*event))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteEvent(r.Context(), pathParam(r, "id"), actorEmail(r)); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RegisterParticipant joins the caller to an event. Capacity is enforced
// under a row lock, so a full event answers 405 even under concurrent
// sign-ups.
func (h *EventsHandler) RegisterParticipant(w http.ResponseWriter, r *http.Request) {
	current := middleware.CurrentUser(r)
	if current == nil {
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Authentication required", nil, h.Env)
		return
	}

	total, err := h.Registrations.Register(r.Context(), current.ID, pathParam(r, "eventID"))
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrEventNotFound):
			metrics.RegistrationsTotal.WithLabelValues("not_found").Inc()
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Event not found", err, h.Env)
		case errors.Is(err, registration.ErrRegistrationClosed):
			metrics.RegistrationsTotal.WithLabelValues("closed").Inc()
			problem.Write(w, r, http.StatusBadRequest, problem.TypeConflict, "Registration closed", err, h.Env,
				problem.WithDetail("Registration is closed for this event."))
		case errors.Is(err, registration.ErrAlreadyRegistered):
			metrics.RegistrationsTotal.WithLabelValues("already_registered").Inc()
			problem.Write(w, r, http.StatusBadRequest, problem.TypeConflict, "Already registered", err, h.Env,
				problem.WithDetail("You have already registered for this event."))
		case errors.Is(err, registration.ErrEventFull):
			metrics.RegistrationsTotal.WithLabelValues("event_full").Inc()
			problem.Write(w, r, http.StatusMethodNotAllowed, problem.TypeEventFull, "Event full", err, h.Env,
				problem.WithDetail("This event has reached its capacity."))
		default:
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		}
		return
	}

	metrics.RegistrationsTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":            "Registration successful",
		"total_participants": total,
	})
}
