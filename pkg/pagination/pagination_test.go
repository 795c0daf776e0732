package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Params
	}{
		{"defaults", "", Params{Page: 1, PerPage: 20, Offset: 0}},
		{"explicit", "?page=3&per_page=10", Params{Page: 3, PerPage: 10, Offset: 20}},
		{"clamped per_page", "?per_page=500", Params{Page: 1, PerPage: 100, Offset: 0}},
		{"negative page", "?page=-2", Params{Page: 1, PerPage: 20, Offset: 0}},
		{"zero per_page", "?per_page=0", Params{Page: 1, PerPage: 20, Offset: 0}},
		{"garbage", "?page=abc&per_page=x", Params{Page: 1, PerPage: 20, Offset: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/items/app-1/reviews/feed"+tt.query, nil)
			assert.Equal(t, tt.want, FromRequest(r))
		})
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name       string
		params     Params
		n          int
		start, end int
	}{
		{"first page", New(1, 2), 5, 0, 2},
		{"last partial page", New(3, 2), 5, 4, 5},
		{"past the end", New(9, 2), 5, 5, 5},
		{"empty", New(1, 20), 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := tt.params.Window(tt.n)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}
