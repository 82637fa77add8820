package catalog

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// dateLayout is the only accepted format for the date filter.
const dateLayout = "2006-01-02"

// ParseFilters reads event listing filters from query parameters. Unknown
// parameters are ignored; a malformed date or a non-whitelisted ordering
// field is an error.
func ParseFilters(query url.Values) (Filters, error) {
	filters := Filters{
		Name:     strings.TrimSpace(query.Get("name")),
		Location: strings.TrimSpace(query.Get("location")),
		Category: strings.TrimSpace(query.Get("category")),
		Search:   strings.TrimSpace(query.Get("search")),
	}

	if raw := strings.TrimSpace(query.Get("date")); raw != "" {
		date, err := time.Parse(dateLayout, raw)
		if err != nil {
			return Filters{}, fmt.Errorf("date must be formatted as %s", dateLayout)
		}
		filters.Date = &date
	}

	if raw := strings.TrimSpace(query.Get("ordering")); raw != "" {
		ordering, err := parseOrdering(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.Ordering = ordering
	}

	return filters, nil
}

// parseOrdering accepts a whitelisted field name with an optional leading "-"
// for descending order, e.g. "name" or "-date".
func parseOrdering(raw string) (*Ordering, error) {
	descending := strings.HasPrefix(raw, "-")
	field := strings.TrimPrefix(raw, "-")

	switch OrderField(field) {
	case OrderByName, OrderByDate, OrderByLocation, OrderByCategory:
		return &Ordering{Field: OrderField(field), Descending: descending}, nil
	}
	return nil, fmt.Errorf("ordering must be one of name, date, location, category")
}
