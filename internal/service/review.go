package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/KingHarry001/portfolio/internal/domain"
	"github.com/KingHarry001/portfolio/internal/moderation"
	"github.com/KingHarry001/portfolio/internal/rating"
	"github.com/KingHarry001/portfolio/internal/repository"
	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
	"github.com/KingHarry001/portfolio/pkg/pagination"
)

// EventPublisher announces review mutations to other services.
type EventPublisher interface {
	PublishReviewSubmitted(ctx context.Context, review *domain.Review, created bool) error
	PublishReviewDeleted(ctx context.Context, review *domain.Review, actorID string, byAdmin bool) error
}

// StatsCache memoizes per-item rating stats. Get also returns the item's
// generation; Set must be given the generation read before the aggregate was
// computed and skips the write if the item was invalidated since.
type StatsCache interface {
	Get(ctx context.Context, itemID string) (stats domain.RatingStats, generation int64, ok bool, err error)
	Set(ctx context.Context, stats domain.RatingStats, generation int64) (bool, error)
	Invalidate(ctx context.Context, itemID string) error
}

// ProfileResolver looks up author display profiles. It never fails: unknown
// authors resolve to an anonymous profile.
type ProfileResolver interface {
	Profiles(ctx context.Context, ids []string) map[string]domain.AuthorProfile
}

// Option configures optional collaborators of the ReviewService.
type Option func(*ReviewService)

// WithStatsCache enables stats memoization.
func WithStatsCache(cache StatsCache) Option {
	return func(s *ReviewService) { s.cache = cache }
}

// WithProfileResolver sets the author profile source used by the feed.
func WithProfileResolver(profiles ProfileResolver) Option {
	return func(s *ReviewService) { s.profiles = profiles }
}

// WithMinTextLength overrides the minimum review text length. Values below 1
// keep the default; config rejects them before they get here.
func WithMinTextLength(n int) Option {
	return func(s *ReviewService) {
		if n > 0 {
			s.minTextLength = n
		}
	}
}

// SubmitInput carries the fields of a review submission.
type SubmitInput struct {
	ItemID   string
	AuthorID string
	Rating   int
	Text     string
}

// Feed is one page of an item's reviews with author profiles and the
// item's overall stats.
type Feed struct {
	Entries []domain.FeedEntry
	Stats   domain.RatingStats
	Total   int
	Page    pagination.Params
}

// ReviewService implements the business logic for reviews and ratings.
type ReviewService struct {
	repo          repository.ReviewRepository
	publisher     EventPublisher
	cache         StatsCache
	profiles      ProfileResolver
	logger        *slog.Logger
	minTextLength int

	// Items whose cache invalidation failed, keyed to the failed attempt.
	// The cache is bypassed for them until a later attempt succeeds.
	staleMu       sync.Mutex
	stale         map[string]uint64
	invalidations uint64
}

// NewReviewService creates a new review service.
func NewReviewService(repo repository.ReviewRepository, publisher EventPublisher, logger *slog.Logger, opts ...Option) *ReviewService {
	s := &ReviewService{
		repo:          repo,
		publisher:     publisher,
		logger:        logger,
		minTextLength: domain.DefaultMinTextLength,
		stale:         make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitReview creates the author's review of an item, or replaces it when
// one already exists.
func (s *ReviewService) SubmitReview(ctx context.Context, input SubmitInput) (*domain.SubmitResult, error) {
	if strings.TrimSpace(input.ItemID) == "" {
		return nil, apperrors.InvalidInput("item_id is required")
	}
	if strings.TrimSpace(input.AuthorID) == "" {
		return nil, apperrors.InvalidInput("author_id is required")
	}
	if !domain.ValidRating(input.Rating) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	}
	if domain.TextLength(input.Text) < s.minTextLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("text must be at least %d characters", s.minTextLength))
	}

	existing, err := s.repo.FindByItemAndAuthor(ctx, input.ItemID, input.AuthorID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("find existing review: %w", err)
	}

	var result domain.SubmitResult
	if existing != nil {
		updated, err := s.repo.Update(ctx, existing.ID, domain.ReviewPatch{
			Rating: &input.Rating,
			Text:   &input.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("update review: %w", err)
		}
		result = domain.SubmitResult{Review: updated}
	} else {
		created, err := s.repo.Insert(ctx, &domain.Review{
			ItemID:   input.ItemID,
			AuthorID: input.AuthorID,
			Rating:   input.Rating,
			Text:     input.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("insert review: %w", err)
		}
		result = domain.SubmitResult{Review: created, Created: true}
	}

	s.invalidateStats(ctx, input.ItemID)

	if err := s.publisher.PublishReviewSubmitted(ctx, result.Review, result.Created); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review submitted event",
			slog.String("review_id", result.Review.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", result.Review.ID),
		slog.String("item_id", result.Review.ItemID),
		slog.String("author_id", result.Review.AuthorID),
		slog.Int("rating", result.Review.Rating),
		slog.Bool("created", result.Created),
	)

	return &result, nil
}

// DeleteReview removes a review when the caller is its author or an admin.
// A missing review is reported before any authorization decision.
func (s *ReviewService) DeleteReview(ctx context.Context, reviewID, callerID string, callerIsAdmin bool) error {
	review, err := s.repo.FindByID(ctx, reviewID)
	if err != nil {
		return err
	}

	if !moderation.CanModify(*review, callerID, callerIsAdmin) {
		s.logger.WarnContext(ctx, "review deletion refused",
			slog.String("review_id", reviewID),
			slog.String("caller_id", callerID),
		)
		return apperrors.Forbidden("only the author or an admin may delete this review")
	}

	if err := s.repo.Delete(ctx, reviewID); err != nil {
		return err
	}

	s.invalidateStats(ctx, review.ItemID)

	if err := s.publisher.PublishReviewDeleted(ctx, review, callerID, callerIsAdmin); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review deleted event",
			slog.String("review_id", reviewID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", reviewID),
		slog.String("item_id", review.ItemID),
		slog.String("actor_id", callerID),
		slog.Bool("by_admin", callerIsAdmin),
	)

	return nil
}

// GetReviewsForItem returns an item's reviews, newest first.
func (s *ReviewService) GetReviewsForItem(ctx context.Context, itemID string) ([]domain.Review, error) {
	reviews, err := s.repo.FindByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get reviews for item: %w", err)
	}
	return reviews, nil
}

// GetStatsForItem aggregates an item's reviews, reading through the stats
// cache when one is configured.
func (s *ReviewService) GetStatsForItem(ctx context.Context, itemID string) (domain.RatingStats, error) {
	if s.cache == nil || !s.cacheUsable(ctx, itemID) {
		return s.computeStats(ctx, itemID)
	}

	cached, gen, ok, err := s.cache.Get(ctx, itemID)
	if err != nil {
		s.logger.WarnContext(ctx, "stats cache read failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		return s.computeStats(ctx, itemID)
	}
	if ok {
		return cached, nil
	}

	stats, err := s.computeStats(ctx, itemID)
	if err != nil {
		return domain.RatingStats{}, err
	}

	stored, err := s.cache.Set(ctx, stats, gen)
	if err != nil {
		s.logger.WarnContext(ctx, "stats cache write failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	} else if !stored {
		s.logger.DebugContext(ctx, "stats cache write skipped, item changed while aggregating",
			slog.String("item_id", itemID),
		)
	}

	return stats, nil
}

func (s *ReviewService) computeStats(ctx context.Context, itemID string) (domain.RatingStats, error) {
	reviews, err := s.repo.FindByItem(ctx, itemID)
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("get stats for item: %w", err)
	}
	return rating.Aggregate(itemID, reviews), nil
}

// cacheUsable reports whether the cache may be consulted for an item. An item
// whose last invalidation failed stays off the cache until a retried
// invalidation succeeds.
func (s *ReviewService) cacheUsable(ctx context.Context, itemID string) bool {
	s.staleMu.Lock()
	_, stale := s.stale[itemID]
	s.staleMu.Unlock()
	if !stale {
		return true
	}
	return s.invalidateStats(ctx, itemID)
}

// GetCallerReview returns the caller's own review of an item, or nil when
// they have not reviewed it.
func (s *ReviewService) GetCallerReview(ctx context.Context, itemID, callerID string) (*domain.Review, error) {
	review, err := s.repo.FindByItemAndAuthor(ctx, itemID, callerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get caller review: %w", err)
	}
	return review, nil
}

// GetFeed returns one page of an item's reviews joined with author profiles.
// Stats and the page come from the same snapshot, so they always agree.
func (s *ReviewService) GetFeed(ctx context.Context, itemID string, page pagination.Params) (*Feed, error) {
	reviews, err := s.repo.FindByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}

	start, end := page.Window(len(reviews))
	window := reviews[start:end]

	ids := make([]string, 0, len(window))
	for _, rv := range window {
		ids = append(ids, rv.AuthorID)
	}

	var profiles map[string]domain.AuthorProfile
	if s.profiles != nil && len(ids) > 0 {
		profiles = s.profiles.Profiles(ctx, ids)
	}

	entries := make([]domain.FeedEntry, 0, len(window))
	for _, rv := range window {
		author, ok := profiles[rv.AuthorID]
		if !ok {
			author = domain.AnonymousProfile(rv.AuthorID)
		}
		entries = append(entries, domain.FeedEntry{Review: rv, Author: author})
	}

	return &Feed{
		Entries: entries,
		Stats:   rating.Aggregate(itemID, reviews),
		Total:   len(reviews),
		Page:    page,
	}, nil
}

// ListAll returns a page of reviews across items for moderation.
func (s *ReviewService) ListAll(ctx context.Context, filter repository.ReviewFilter) ([]domain.Review, int, error) {
	reviews, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, total, nil
}

// PurgeItem removes every review of an item and returns how many went.
func (s *ReviewService) PurgeItem(ctx context.Context, itemID string) (int, error) {
	if strings.TrimSpace(itemID) == "" {
		return 0, apperrors.InvalidInput("item_id is required")
	}

	removed, err := s.repo.DeleteByItem(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("purge item reviews: %w", err)
	}

	s.invalidateStats(ctx, itemID)

	s.logger.InfoContext(ctx, "item reviews purged",
		slog.String("item_id", itemID),
		slog.Int("removed", removed),
	)

	return removed, nil
}

// invalidateStats drops the item's cached stats and reports whether the item
// is clean afterwards. On failure the item is marked stale so reads bypass
// the cache; only an attempt started after the failure clears the mark.
func (s *ReviewService) invalidateStats(ctx context.Context, itemID string) bool {
	if s.cache == nil {
		return true
	}

	s.staleMu.Lock()
	s.invalidations++
	attempt := s.invalidations
	s.staleMu.Unlock()

	err := s.cache.Invalidate(ctx, itemID)

	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	if err != nil {
		if attempt > s.stale[itemID] {
			s.stale[itemID] = attempt
		}
		s.logger.ErrorContext(ctx, "stats cache invalidation failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if failed, ok := s.stale[itemID]; ok && failed < attempt {
		delete(s.stale, itemID)
	}
	_, stale := s.stale[itemID]
	return !stale
}
