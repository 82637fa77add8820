package pagination

import (
	"errors"
	"net/url"
	"strconv"
)

var ErrInvalidPage = errors.New("invalid page parameter")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a number/size pair for offset pagination of the event listing.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Parse reads page and page_size query parameters. Page numbers are 1-based;
// out-of-range sizes clamp to MaxPageSize.
func Parse(values url.Values) (Page, error) {
	page := Page{Number: 1, Size: DefaultPageSize}

	if raw := values.Get("page"); raw != "" {
		number, err := strconv.Atoi(raw)
		if err != nil || number < 1 {
			return Page{}, ErrInvalidPage
		}
		page.Number = number
	}

	if raw := values.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return Page{}, ErrInvalidPage
		}
		if size > MaxPageSize {
			size = MaxPageSize
		}
		page.Size = size
	}

	return page, nil
}

// Links computes next/previous page URLs for a total result count. Empty
// strings mean no such page.
func Links(base *url.URL, page Page, total int) (next, previous string) {
	if base == nil {
		return "", ""
	}
	if page.Offset()+page.Size < total {
		next = withPage(base, page.Number+1)
	}
	if page.Number > 1 {
		previous = withPage(base, page.Number-1)
	}
	return next, previous
}

func withPage(base *url.URL, number int) string {
	u := *base
	q := u.Query()
	q.Set("page", strconv.Itoa(number))
	u.RawQuery = q.Encode()
	return u.String()
}
