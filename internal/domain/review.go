package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Rating bounds, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// DefaultMinTextLength is the shortest review text accepted on submit.
const DefaultMinTextLength = 10

// ReviewableItem is anything that can receive reviews, e.g. an app listing.
// Items are owned by the content management flow; only the ID is used here.
type ReviewableItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Review is one user's evaluation of one item.
type Review struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	AuthorID  string    `json:"author_id"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewPatch lists the fields an update may change. Nil fields are kept.
type ReviewPatch struct {
	Rating *int
	Text   *string
}

// Apply merges p into r. It does not touch UpdatedAt.
func (p ReviewPatch) Apply(r *Review) {
	if p.Rating != nil {
		r.Rating = *p.Rating
	}
	if p.Text != nil {
		r.Text = *p.Text
	}
}

// ValidRating reports whether rating lies within [MinRating, MaxRating].
func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

// TextLength counts the characters of text, ignoring surrounding whitespace.
func TextLength(text string) int {
	return utf8.RuneCountInString(strings.TrimSpace(text))
}

// RatingStats is the aggregate derived from an item's reviews. It is never
// the source of truth.
type RatingStats struct {
	ItemID        string      `json:"item_id"`
	TotalReviews  int         `json:"total_reviews"`
	AverageRating float64     `json:"average_rating"`
	Distribution  map[int]int `json:"distribution"`
}

// SubmitResult is the outcome of a submit: the stored review and whether it
// was newly created (as opposed to replacing the author's earlier review).
type SubmitResult struct {
	Review  *Review `json:"review"`
	Created bool    `json:"created"`
}

// AuthorProfile is the public display profile of a review author.
type AuthorProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// AnonymousProfile is shown when an author's profile cannot be resolved.
func AnonymousProfile(id string) AuthorProfile {
	return AuthorProfile{ID: id, DisplayName: "Anonymous"}
}

// FeedEntry is a review joined with its author's profile.
type FeedEntry struct {
	Review
	Author AuthorProfile `json:"author"`
}
