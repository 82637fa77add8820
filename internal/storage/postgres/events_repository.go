package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type EventRepository struct {
	db queryer
}

// eventColumns requires the query to alias events as e and categories as c.
const eventColumns = `e.id, e.public_id, e.name, e.host, e.description, e.image_url,
       e.event_date, e.registration_deadline, e.location, e.capacity, e.status,
       e.category_id, c.name,
       (SELECT count(*) FROM event_participants ep WHERE ep.event_id = e.id),
       e.created_at, e.updated_at`

func (r *EventRepository) Create(ctx context.Context, params catalog.EventCreateParams) (catalog.Event, error) {
	row := r.db.QueryRow(ctx, `
WITH inserted AS (
    INSERT INTO events (id, public_id, name, host, description, image_url,
                        event_date, registration_deadline, location, capacity,
                        status, category_id, created_at, updated_at)
    VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
    RETURNING *
)
SELECT i.id, i.public_id, i.name, i.host, i.description, i.image_url,
       i.event_date, i.registration_deadline, i.location, i.capacity, i.status,
       i.category_id, c.name, 0, i.created_at, i.updated_at
  FROM inserted i
  JOIN categories c ON c.id = i.category_id`,
		params.PublicID, params.Name, params.Host, params.Description, params.ImageURL,
		params.EventDate, params.RegistrationDeadline, params.Location, params.Capacity,
		string(params.Status), params.CategoryID)

	event, err := scanEvent(row)
	if err != nil {
		if isForeignKeyViolation(err) || errors.Is(err, pgx.ErrNoRows) {
			// Unknown category; the join on the CTE also yields no row then.
			return catalog.Event{}, catalog.ErrNotFound
		}
		return catalog.Event{}, fmt.Errorf("create event: %w", err)
	}
	return *event, nil
}

func (r *EventRepository) GetByPublicID(ctx context.Context, publicID string) (*catalog.Event, error) {
	row := r.db.QueryRow(ctx, `
SELECT `+eventColumns+`
  FROM events e
  JOIN categories c ON c.id = e.category_id
 WHERE e.public_id = $1`, strings.ToUpper(strings.TrimSpace(publicID)))

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *EventRepository) List(ctx context.Context, filters catalog.Filters, limit, offset int) (catalog.ListResult, error) {
	where, args := buildEventFilters(filters)

	countQuery := `SELECT count(*) FROM events e JOIN categories c ON c.id = e.category_id` + where
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return catalog.ListResult{}, fmt.Errorf("count events: %w", err)
	}

	query := `SELECT ` + eventColumns + `
  FROM events e
  JOIN categories c ON c.id = e.category_id` + where + orderClause(filters.Ordering) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return catalog.ListResult{}, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []catalog.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return catalog.ListResult{}, fmt.Errorf("list events: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return catalog.ListResult{}, fmt.Errorf("list events: %w", err)
	}
	return catalog.ListResult{Events: events, Total: total}, nil
}

// GetForUpdate locks the event row for the duration of the surrounding
// transaction. Category name and participant count are not loaded here; the
// caller reads the count under the same lock.
func (r *EventRepository) GetForUpdate(ctx context.Context, publicID string) (*catalog.Event, error) {
	row := r.db.QueryRow(ctx, `
SELECT id, public_id, name, capacity, status, registration_deadline
  FROM events
 WHERE public_id = $1
   FOR UPDATE`, strings.ToUpper(strings.TrimSpace(publicID)))

	var event catalog.Event
	var status string
	if err := row.Scan(&event.ID, &event.PublicID, &event.Name, &event.Capacity, &status, &event.RegistrationDeadline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	event.Status = catalog.Status(status)
	return &event, nil
}

func (r *EventRepository) IsParticipant(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM event_participants WHERE event_id = $1 AND user_id = $2)`,
		eventID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

func (r *EventRepository) CountParticipants(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM event_participants WHERE event_id = $1`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

func (r *EventRepository) AddParticipant(ctx context.Context, eventID, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO event_participants (event_id, user_id, registered_at)
VALUES ($1, $2, now())`, eventID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrDuplicate
		}
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func buildEventFilters(filters catalog.Filters) (string, []any) {
	var clauses []string
	var args []any

	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Name != "" {
		clauses = append(clauses, `e.name ILIKE '%' || `+arg(filters.Name)+` || '%'`)
	}
	if filters.Location != "" {
		clauses = append(clauses, `e.location ILIKE '%' || `+arg(filters.Location)+` || '%'`)
	}
	if filters.Date != nil {
		clauses = append(clauses, `e.event_date::date = `+arg(*filters.Date)+`::date`)
	}
	if filters.Category != "" {
		clauses = append(clauses, `c.name ILIKE '%' || `+arg(filters.Category)+` || '%'`)
	}
	if filters.Search != "" {
		placeholder := arg(filters.Search)
		clauses = append(clauses, `(e.name ILIKE '%' || `+placeholder+` || '%'
   OR e.location ILIKE '%' || `+placeholder+` || '%'
   OR c.name ILIKE '%' || `+placeholder+` || '%'
   OR to_char(e.event_date, 'YYYY-MM-DD') LIKE '%' || `+placeholder+` || '%')`)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "\n WHERE " + strings.Join(clauses, "\n   AND "), args
}

func orderClause(ordering *catalog.Ordering) string {
	column := "e.event_date"
	direction := "ASC"
	if ordering != nil {
		switch ordering.Field {
		case catalog.OrderByName:
			column = "e.name"
		case catalog.OrderByDate:
			column = "e.event_date"
		case catalog.OrderByLocation:
			column = "e.location"
		case catalog.OrderByCategory:
			column = "c.name"
		}
		if ordering.Descending {
			direction = "DESC"
		}
	}
	// public_id tie-break keeps pages stable.
	return fmt.Sprintf("\n ORDER BY %s %s, e.public_id", column, direction)
}

func scanEvent(row pgx.Row) (*catalog.Event, error) {
	var event catalog.Event
	var status string
	if err := row.Scan(
		&event.ID,
		&event.PublicID,
		&event.Name,
		&event.Host,
		&event.Description,
		&event.ImageURL,
		&event.EventDate,
		&event.RegistrationDeadline,
		&event.Location,
		&event.Capacity,
		&status,
		&event.CategoryID,
		&event.CategoryName,
		&event.ParticipantCount,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		return nil, err
	}
	event.Status = catalog.Status(status)
	return &event, nil
}
