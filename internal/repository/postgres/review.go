package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/KingHarry001/portfolio/internal/domain"
	"github.com/KingHarry001/portfolio/internal/repository"
	"github.com/KingHarry001/portfolio/pkg/database"
	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
)

var _ repository.ReviewRepository = (*ReviewRepository)(nil)

const reviewColumns = `id, item_id, author_id, rating, text, created_at, updated_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
	now  func() time.Time
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{
		pool: pool,
		// timestamptz keeps microseconds; truncating keeps returned values
		// equal to what a later read sees.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Insert stores a new review.
func (r *ReviewRepository) Insert(ctx context.Context, review *domain.Review) (_ *domain.Review, err error) {
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

	query := `
		INSERT INTO reviews (id, item_id, author_id, rating, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "InsertReview", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		stored.ID,
		stored.ItemID,
		stored.AuthorID,
		stored.Rating,
		stored.Text,
		stored.CreatedAt,
		stored.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict(fmt.Sprintf("review %s already exists", stored.ID))
		}
		return nil, fmt.Errorf("insert review: %w", err)
	}

	return &stored, nil
}

// FindByID retrieves a review by its ID.
func (r *ReviewRepository) FindByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "FindReviewByID", query)
	defer func() { end(err) }()

	review, err := scanReview(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("find review %s: %w", id, err)
	}
	return review, nil
}

// FindByItem returns an item's reviews, newest first.
func (r *ReviewRepository) FindByItem(ctx context.Context, itemID string) (_ []domain.Review, err error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE item_id = $1
		ORDER BY created_at DESC, id DESC`

	ctx, end := database.TraceQuery(ctx, "FindReviewsByItem", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("list reviews for item %s: %w", itemID, err)
	}
	reviews, err := collectReviews(rows)
	if err != nil {
		return nil, fmt.Errorf("list reviews for item %s: %w", itemID, err)
	}
	return reviews, nil
}

// FindByItemAndAuthor retrieves an author's review of an item. Should legacy
// data hold several, the newest is returned.
func (r *ReviewRepository) FindByItemAndAuthor(ctx context.Context, itemID, authorID string) (_ *domain.Review, err error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE item_id = $1 AND author_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "FindReviewByItemAndAuthor", query)
	defer func() { end(err) }()

	review, err := scanReview(r.pool.QueryRow(ctx, query, itemID, authorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", itemID+"/"+authorID)
		}
		return nil, fmt.Errorf("find review by item and author: %w", err)
	}
	return review, nil
}

// Update merges patch into the stored review in a single statement.
func (r *ReviewRepository) Update(ctx context.Context, id string, patch domain.ReviewPatch) (_ *domain.Review, err error) {
	query := `
		UPDATE reviews
		SET rating = COALESCE($2, rating),
		    text = COALESCE($3, text),
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + reviewColumns

	ctx, end := database.TraceQuery(ctx, "UpdateReview", query)
	defer func() { end(err) }()

	review, err := scanReview(r.pool.QueryRow(ctx, query, id, patch.Rating, patch.Text, r.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("update review %s: %w", id, err)
	}
	return review, nil
}

// Delete removes a review by its ID.
func (r *ReviewRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteReview", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete review %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// DeleteByItem removes every review of an item.
func (r *ReviewRepository) DeleteByItem(ctx context.Context, itemID string) (_ int, err error) {
	query := `DELETE FROM reviews WHERE item_id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteReviewsByItem", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, itemID)
	if err != nil {
		return 0, fmt.Errorf("delete reviews for item %s: %w", itemID, err)
	}
	return int(ct.RowsAffected()), nil
}

// List returns one page of reviews with the total count of matching rows.
func (r *ReviewRepository) List(ctx context.Context, filter repository.ReviewFilter) (_ []domain.Review, _ int, err error) {
	var (
		where string
		args  []any
	)
	if filter.ItemID != "" {
		where = "WHERE item_id = $1"
		args = append(args, filter.ItemID)
	}

	countQuery := `SELECT COUNT(*) FROM reviews ` + where

	ctx, end := database.TraceQuery(ctx, "ListReviews", countQuery)
	defer func() { end(err) }()

	var total int
	if err = r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(filter.Offset, 0)

	query := fmt.Sprintf(`
		SELECT %s
		FROM reviews
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, reviewColumns, where, len(args)+1, len(args)+2)

	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	reviews, err := collectReviews(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, total, nil
}

func scanReview(row pgx.Row) (*domain.Review, error) {
	var rv domain.Review
	if err := row.Scan(
		&rv.ID,
		&rv.ItemID,
		&rv.AuthorID,
		&rv.Rating,
		&rv.Text,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rv, nil
}

func collectReviews(rows pgx.Rows) ([]domain.Review, error) {
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

// isUniqueViolation reports a PostgreSQL unique constraint violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}
