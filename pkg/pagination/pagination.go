package pagination

import (
	"fmt"
	"strconv"
)

// Params represents pagination query parameters.
// A conversation page is selected either by keyset cursor or by page number.
type Params struct {
	Cursor    int64
	HasCursor bool
	Page      int
	PerPage   int
	Offset    int
}

// Constants
const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Parse parses cursor, page and per_page from a query string.
// An explicit per_page=0 is kept so callers can return an empty page.
func Parse(cursorStr, pageStr, perPageStr string) (*Params, error) {
	p := &Params{Page: DefaultPage, PerPage: DefaultPerPage}

	if cursorStr != "" {
		c, err := strconv.ParseInt(cursorStr, 10, 64)
		if err != nil || c < 0 {
			return nil, fmt.Errorf("invalid cursor parameter: %q", cursorStr)
		}
		p.Cursor = c
		p.HasCursor = true
	}

	if pageStr != "" {
		pg, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		if pg >= 1 {
			p.Page = pg
		}
	}

	if perPageStr != "" {
		l, err := strconv.Atoi(perPageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid per_page parameter: %w", err)
		}
		switch {
		case l < 0:
			return nil, fmt.Errorf("invalid per_page parameter: %d", l)
		case l > MaxPerPage:
			p.PerPage = MaxPerPage
		default:
			p.PerPage = l
		}
	}

	p.Offset = (p.Page - 1) * p.PerPage
	return p, nil
}
