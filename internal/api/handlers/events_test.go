package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/civicsquare/server/internal/api/middleware"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/stretchr/testify/require"
)

func seedEvent(t *testing.T, f *fixture, name string, capacity int) catalog.Event {
	t.Helper()
	return seedEventWith(t, f, name, capacity, time.Now().Add(48*time.Hour), catalog.StatusUpcoming)
}

func seedEventWith(t *testing.T, f *fixture, name string, capacity int, deadline time.Time, status catalog.Status) catalog.Event {
	t.Helper()
	category, err := f.store.categories.Create(context.Background(), "Community")
	if errors.Is(err, catalog.ErrDuplicate) {
		existing, getErr := f.store.categories.GetByID(context.Background(), 1)
		require.NoError(t, getErr)
		category = *existing
	} else {
		require.NoError(t, err)
	}

	event, err := f.catalog.CreateEvent(context.Background(), catalog.CreateEventParams{
		Name:                 name,
		Host:                 "City Parks",
		Description:          "A community gathering.",
		EventDate:            time.Now().Add(72 * time.Hour),
		RegistrationDeadline: deadline,
		Location:             "Riverside Park",
		Capacity:             capacity,
		Status:               status,
		CategoryID:           category.ID,
	}, "test")
	require.NoError(t, err)
	return event
}

func TestCreateEvent(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	_, err := f.catalog.CreateCategory(context.Background(), "Community", "test")
	require.NoError(t, err)

	body := `{
		"name": "Park Cleanup",
		"host": "City Parks",
		"description": "Bring gloves.",
		"event_date": "2026-09-12T10:00:00Z",
		"registration_deadline": "2026-09-10T23:59:59Z",
		"location": "Riverside Park",
		"capacity": 25,
		"category_id": 1
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/events/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Park Cleanup", resp.Name)
	require.Equal(t, "UPCOMING", resp.Status)
	require.Equal(t, "Community", resp.Category)
	require.Len(t, resp.ID, 26)
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	_, err := f.catalog.CreateCategory(context.Background(), "Community", "test")
	require.NoError(t, err)

	base := map[string]any{
		"name":                  "Park Cleanup",
		"host":                  "City Parks",
		"description":           "Bring gloves.",
		"event_date":            "2026-09-12T10:00:00Z",
		"registration_deadline": "2026-09-10T23:59:59Z",
		"location":              "Riverside Park",
		"capacity":              25,
		"category_id":           1,
	}

	cases := []struct {
		name     string
		mutate   func(m map[string]any)
		wantWord string
	}{
		{"zero capacity", func(m map[string]any) { m["capacity"] = 0 }, "capacity"},
		{"negative capacity", func(m map[string]any) { m["capacity"] = -5 }, "capacity"},
		{"bad status", func(m map[string]any) { m["status"] = "POSTPONED" }, "status"},
		{"unknown category", func(m map[string]any) { m["category_id"] = 99 }, "category"},
		{"missing name", func(m map[string]any) { delete(m, "name") }, "name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := make(map[string]any, len(base))
			for k, v := range base {
				payload[k] = v
			}
			tc.mutate(payload)
			body, err := json.Marshal(payload)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/api/events/", strings.NewReader(string(body)))
			rec := httptest.NewRecorder()
			h.Create(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tc.wantWord)
		})
	}
}

func TestEventListEmptyIsNotFound(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	req := httptest.NewRequest(http.MethodGet, "/api/events/event-list/", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestEventListFiltersAndPaginates(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	seedEvent(t, f, "Park Cleanup", 10)
	seedEvent(t, f, "Book Fair", 10)
	seedEvent(t, f, "Park Concert", 10)

	req := httptest.NewRequest(http.MethodGet, "/api/events/event-list/?name=park&page_size=1", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Results, 1)
	require.Contains(t, resp.Next, "page=2")
	require.Empty(t, resp.Previous)
}

func TestEventListNoMatchIsNotFound(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	seedEvent(t, f, "Park Cleanup", 10)

	req := httptest.NewRequest(http.MethodGet, "/api/events/event-list/?name=opera", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventListBadFilters(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	for _, query := range []string{"?date=12-09-2026", "?ordering=capacity", "?page=0"} {
		req := httptest.NewRequest(http.MethodGet, "/api/events/event-list/"+query, nil)
		rec := httptest.NewRecorder()
		h.List(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "query=%s", query)
	}
}

func TestGetAndDeleteEvent(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	event := seedEvent(t, f, "Park Cleanup", 10)

	req := httptest.NewRequest(http.MethodGet, "/api/events/"+event.PublicID+"/", nil)
	req.SetPathValue("id", event.PublicID)
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	del := httptest.NewRequest(http.MethodDelete, "/api/events/"+event.PublicID+"/", nil)
	del.SetPathValue("id", event.PublicID)
	delRec := httptest.NewRecorder()
	h.Delete(delRec, del)
	require.Equal(t, http.StatusNoContent, delRec.Code)

	gone := httptest.NewRequest(http.MethodGet, "/api/events/"+event.PublicID+"/", nil)
	gone.SetPathValue("id", event.PublicID)
	goneRec := httptest.NewRecorder()
	h.Get(goneRec, gone)
	require.Equal(t, http.StatusNotFound, goneRec.Code)
}

func registerAs(t *testing.T, f *fixture, h *EventsHandler, email, eventID string) *httptest.ResponseRecorder {
	t.Helper()
	user, _ := f.activeUser(t, email)
	token, _, err := f.users.CreateSession(context.Background(), &user)
	require.NoError(t, err)

	authed := middleware.SessionAuth(f.users, f.session.CookieName, "test")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.SetPathValue("eventID", eventID)
			h.RegisterParticipant(w, r)
		}))

	req := httptest.NewRequest(http.MethodPost, "/api/events/register-event/"+eventID+"/", nil)
	req.AddCookie(&http.Cookie{Name: "cs_session", Value: token})
	rec := httptest.NewRecorder()
	authed.ServeHTTP(rec, req)
	return rec
}

func TestRegisterParticipant(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")
	event := seedEvent(t, f, "Park Cleanup", 2)

	rec := registerAs(t, f, h, "one@example.org", event.PublicID)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Registration successful", resp["message"])
	require.EqualValues(t, 1, resp["total_participants"])
}

func TestRegisterParticipantTwiceIsBadRequest(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")
	event := seedEvent(t, f, "Park Cleanup", 5)

	user, _ := f.activeUser(t, "one@example.org")
	token, _, err := f.users.CreateSession(context.Background(), &user)
	require.NoError(t, err)

	authed := middleware.SessionAuth(f.users, f.session.CookieName, "test")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.SetPathValue("eventID", event.PublicID)
			h.RegisterParticipant(w, r)
		}))

	for i, want := range []int{http.StatusOK, http.StatusBadRequest} {
		req := httptest.NewRequest(http.MethodPost, "/api/events/register-event/"+event.PublicID+"/", nil)
		req.AddCookie(&http.Cookie{Name: "cs_session", Value: token})
		rec := httptest.NewRecorder()
		authed.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "attempt %d", i+1)
	}
}

func TestRegisterParticipantEventFullIs405(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")
	event := seedEvent(t, f, "Park Cleanup", 1)

	require.Equal(t, http.StatusOK, registerAs(t, f, h, "one@example.org", event.PublicID).Code)

	rec := registerAs(t, f, h, "two@example.org", event.PublicID)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Contains(t, rec.Body.String(), "event-full")
}

func TestRegisterParticipantAfterDeadlineIsClosed(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")
	event := seedEventWith(t, f, "Park Cleanup", 10, time.Now().Add(-time.Hour), catalog.StatusUpcoming)

	rec := registerAs(t, f, h, "one@example.org", event.PublicID)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Registration is closed")

	stored, err := f.store.events.GetByPublicID(context.Background(), event.PublicID)
	require.NoError(t, err)
	require.Zero(t, stored.ParticipantCount)
}

func TestRegisterParticipantCanceledEventIsClosed(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	for _, status := range []catalog.Status{catalog.StatusCanceled, catalog.StatusCompleted} {
		event := seedEventWith(t, f, "Cleanup "+string(status), 10, time.Now().Add(48*time.Hour), status)

		rec := registerAs(t, f, h, strings.ToLower(string(status))+"@example.org", event.PublicID)
		require.Equal(t, http.StatusBadRequest, rec.Code, "status=%s", status)
		require.Contains(t, rec.Body.String(), "Registration is closed")
	}
}

func TestRegisterParticipantUnknownEventIs404(t *testing.T) {
	f := newFixture()
	h := NewEventsHandler(f.catalog, f.registry, "test")

	for _, id := range []string{"01ARZ3NDEKTSV4RRFFQ69G5FAV", "definitely-not-a-ulid"} {
		rec := registerAs(t, f, h, "user-"+id[:5]+"@example.org", id)
		require.Equal(t, http.StatusNotFound, rec.Code, "id=%s", id)
	}
}
