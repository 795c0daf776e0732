package repository

import (
	"context"

	"github.com/KingHarry001/portfolio/internal/domain"
)

// ReviewFilter narrows an admin listing. An empty ItemID lists every item.
type ReviewFilter struct {
	ItemID string
	Limit  int
	Offset int
}

// ReviewRepository is the review store. Every mutation is atomic for
// readers; concurrent writers resolve last-write-wins. Lookups of absent
// reviews fail with an error matching apperrors.ErrNotFound.
type ReviewRepository interface {
	// Insert stores a new review, assigning ID, CreatedAt and UpdatedAt when
	// they are zero. A duplicate ID fails with apperrors.ErrConflict.
	Insert(ctx context.Context, review *domain.Review) (*domain.Review, error)

	// FindByID retrieves a review by its identifier.
	FindByID(ctx context.Context, id string) (*domain.Review, error)

	// FindByItem returns a fresh snapshot of an item's reviews, newest first.
	FindByItem(ctx context.Context, itemID string) ([]domain.Review, error)

	// FindByItemAndAuthor retrieves an author's review of an item.
	FindByItemAndAuthor(ctx context.Context, itemID, authorID string) (*domain.Review, error)

	// Update merges patch into the review and refreshes UpdatedAt.
	Update(ctx context.Context, id string, patch domain.ReviewPatch) (*domain.Review, error)

	// Delete removes a review. Deleting an absent review is NotFound.
	Delete(ctx context.Context, id string) error

	// DeleteByItem removes every review of an item and returns how many
	// were removed.
	DeleteByItem(ctx context.Context, itemID string) (int, error)

	// List returns one page of reviews, newest first, with the total count.
	List(ctx context.Context, filter ReviewFilter) ([]domain.Review, int, error)
}
