package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns the first page at the default size.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: DefaultPerPage}
}

// FromRequest reads page and per_page from the query string. Missing or
// non-positive values fall back to the defaults; per_page above MaxPerPage is
// clamped.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	return New(atoi(q.Get("page")), atoi(q.Get("per_page")))
}

// New normalises page and perPage and computes the offset.
func New(page, perPage int) Params {
	p := DefaultParams()
	if page > 0 {
		p.Page = page
	}
	if perPage > 0 {
		p.PerPage = min(perPage, MaxPerPage)
	}
	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// Window returns the [start, end) bounds of this page within n items.
func (p Params) Window(n int) (start, end int) {
	start = min(p.Offset, n)
	end = min(start+p.PerPage, n)
	return start, end
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
