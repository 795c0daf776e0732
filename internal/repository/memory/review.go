// Package memory is an in-process review store for tests and local runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KingHarry001/portfolio/internal/domain"
	"github.com/KingHarry001/portfolio/internal/repository"
	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
)

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

// ReviewRepository keeps reviews in a mutex-guarded map. Every read returns
// copies, so callers never observe later writes through a returned value.
type ReviewRepository struct {
	mu      sync.RWMutex
	reviews map[string]domain.Review
	now     func() time.Time
}

// NewReviewRepository creates an empty store.
func NewReviewRepository() *ReviewRepository {
	return NewReviewRepositoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewReviewRepositoryWithClock creates an empty store that stamps reviews
// with now.
func NewReviewRepositoryWithClock(now func() time.Time) *ReviewRepository {
	return &ReviewRepository{
		reviews: make(map[string]domain.Review),
		now:     now,
	}
}

// Insert implements repository.ReviewRepository.
func (r *ReviewRepository) Insert(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored := *review
	now := r.now()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reviews[stored.ID]; exists {
		return nil, apperrors.Conflict("review " + stored.ID + " already exists")
	}
	r.reviews[stored.ID] = stored
	return &stored, nil
}

// FindByID implements repository.ReviewRepository.
func (r *ReviewRepository) FindByID(ctx context.Context, id string) (*domain.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	review, ok := r.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	return &review, nil
}

// FindByItem implements repository.ReviewRepository.
func (r *ReviewRepository) FindByItem(ctx context.Context, itemID string) ([]domain.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]domain.Review, 0)
	for _, review := range r.reviews {
		if review.ItemID == itemID {
			out = append(out, review)
		}
	}
	r.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// FindByItemAndAuthor implements repository.ReviewRepository.
func (r *ReviewRepository) FindByItemAndAuthor(ctx context.Context, itemID, authorID string) (*domain.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Legacy data may hold more than one row per pair; the newest wins, as
	// it does in the Postgres store.
	var found *domain.Review
	for _, review := range r.reviews {
		if review.ItemID != itemID || review.AuthorID != authorID {
			continue
		}
		if found == nil || newer(review, *found) {
			cp := review
			found = &cp
		}
	}
	if found == nil {
		return nil, apperrors.NotFound("review", itemID+"/"+authorID)
	}
	return found, nil
}

// Update implements repository.ReviewRepository.
func (r *ReviewRepository) Update(ctx context.Context, id string, patch domain.ReviewPatch) (*domain.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	review, ok := r.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	patch.Apply(&review)
	review.UpdatedAt = r.now()
	r.reviews[id] = review
	return &review, nil
}

// Delete implements repository.ReviewRepository.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reviews[id]; !ok {
		return apperrors.NotFound("review", id)
	}
	delete(r.reviews, id)
	return nil
}

// DeleteByItem implements repository.ReviewRepository.
func (r *ReviewRepository) DeleteByItem(ctx context.Context, itemID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, review := range r.reviews {
		if review.ItemID == itemID {
			delete(r.reviews, id)
			removed++
		}
	}
	return removed, nil
}

// List implements repository.ReviewRepository.
func (r *ReviewRepository) List(ctx context.Context, filter repository.ReviewFilter) ([]domain.Review, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	all := make([]domain.Review, 0, len(r.reviews))
	for _, review := range r.reviews {
		if filter.ItemID == "" || review.ItemID == filter.ItemID {
			all = append(all, review)
		}
	}
	r.mu.RUnlock()

	sortNewestFirst(all)

	total := len(all)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return all[start:end], total, nil
}

// Len returns the number of stored reviews.
func (r *ReviewRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reviews)
}

func newer(a, b domain.Review) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func sortNewestFirst(reviews []domain.Review) {
	slices.SortFunc(reviews, func(a, b domain.Review) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}
