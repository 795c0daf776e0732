// Package moderation holds the single rule deciding who may change a review.
package moderation

import "github.com/KingHarry001/portfolio/internal/domain"

// CanModify reports whether the caller may edit or delete review: admins may
// modify any review, everyone else only their own. An empty caller ID never
// matches an author.
func CanModify(review domain.Review, callerID string, callerIsAdmin bool) bool {
	if callerIsAdmin {
		return true
	}
	return callerID != "" && review.AuthorID == callerID
}
