package jobsearch

import (
	"fmt"
	"net/url"
	"strconv"
)

// Cursor is the opaque continuation token for the listings endpoint. The API
// returns a `next` URL whose query carries the page number plus ignore
// parameters that must be echoed back verbatim on the following request.
// The zero value requests the first page.
type Cursor struct {
	Page       int
	Ignore     string
	IgnoreHash string
}

// IsZero reports whether the cursor still points at the first page.
func (c Cursor) IsZero() bool {
	return c.Page == 0 && c.Ignore == "" && c.IgnoreHash == ""
}

func (c Cursor) String() string {
	page := c.Page
	if page == 0 {
		page = 1
	}
	return fmt.Sprintf("page=%d", page)
}

// ParseNextCursor extracts the continuation cursor from the `next` URL of a
// listings page. An empty next URL means the sequence is exhausted and
// returns ok=false.
func ParseNextCursor(next string) (Cursor, bool, error) {
	if next == "" {
		return Cursor{}, false, nil
	}
	u, err := url.Parse(next)
	if err != nil {
		return Cursor{}, false, fmt.Errorf("parse next url %q: %w", next, err)
	}
	q := u.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page <= 0 {
		return Cursor{}, false, fmt.Errorf("next url %q has no usable page parameter", next)
	}
	return Cursor{
		Page:       page,
		Ignore:     q.Get("ignore"),
		IgnoreHash: q.Get("ignore_hash"),
	}, true, nil
}
