package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KingHarry001/portfolio/internal/domain"
	"github.com/KingHarry001/portfolio/internal/repository"
	"github.com/KingHarry001/portfolio/pkg/database"
	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
)

var fixedNow = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func setupRepo(t *testing.T) (*ReviewRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewReviewRepository(mock)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func sampleReview() *domain.Review {
	created := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Review{
		ID:        "3f2c1a58-8d0e-4b8e-9a8e-1b7d2c3e4f50",
		ItemID:    "app-1",
		AuthorID:  "user-A",
		Rating:    5,
		Text:      "Absolutely love this app, great UX!",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func reviewColumnNames() []string {
	return []string{"id", "item_id", "author_id", "rating", "text", "created_at", "updated_at"}
}

func reviewRows(reviews ...*domain.Review) *pgxmock.Rows {
	rows := pgxmock.NewRows(reviewColumnNames())
	for _, rv := range reviews {
		rows.AddRow(rv.ID, rv.ItemID, rv.AuthorID, rv.Rating, rv.Text, rv.CreatedAt, rv.UpdatedAt)
	}
	return rows
}

// ---------------------------------------------------------------------------
// Insert
// ---------------------------------------------------------------------------

func TestReviewRepository_Insert_Success(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rv := sampleReview()
	mock.ExpectExec("INSERT INTO reviews").
		WithArgs(rv.ID, rv.ItemID, rv.AuthorID, rv.Rating, rv.Text, rv.CreatedAt, rv.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := repo.Insert(context.Background(), rv)
	require.NoError(t, err)
	assert.Equal(t, rv, stored)
	assert.NotSame(t, rv, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Insert_AssignsDefaults(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rv := &domain.Review{ItemID: "app-1", AuthorID: "user-A", Rating: 4, Text: "Solid and reliable"}
	mock.ExpectExec("INSERT INTO reviews").
		WithArgs(pgxmock.AnyArg(), "app-1", "user-A", 4, "Solid and reliable", fixedNow, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := repo.Insert(context.Background(), rv)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Empty(t, rv.ID, "input must not be mutated")
	assert.Equal(t, fixedNow, stored.CreatedAt)
	assert.Equal(t, fixedNow, stored.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Insert_DuplicateID(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"pg error", &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"reviews_pkey\""}},
		{"wrapped text", errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupRepo(t)
			defer mock.Close()

			rv := sampleReview()
			mock.ExpectExec("INSERT INTO reviews").
				WithArgs(rv.ID, rv.ItemID, rv.AuthorID, rv.Rating, rv.Text, rv.CreatedAt, rv.UpdatedAt).
				WillReturnError(tt.err)

			_, err := repo.Insert(context.Background(), rv)
			assert.ErrorIs(t, err, apperrors.ErrConflict)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReviewRepository_Insert_ExecError(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rv := sampleReview()
	mock.ExpectExec("INSERT INTO reviews").
		WithArgs(rv.ID, rv.ItemID, rv.AuthorID, rv.Rating, rv.Text, rv.CreatedAt, rv.UpdatedAt).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.Insert(context.Background(), rv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert review")
	assert.NotErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestReviewRepository_FindByID(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rv := sampleReview()
	mock.ExpectQuery("SELECT .+ FROM reviews WHERE id").
		WithArgs(rv.ID).
		WillReturnRows(reviewRows(rv))

	got, err := repo.FindByID(context.Background(), rv.ID)
	require.NoError(t, err)
	assert.Equal(t, rv, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_FindByID_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM reviews WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.FindByID(context.Background(), "missing")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_FindByID_QueryError(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM reviews WHERE id").
		WithArgs("rev-err").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.FindByID(context.Background(), "rev-err")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "find review rev-err")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_FindByItem(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	older := sampleReview()
	newer := sampleReview()
	newer.ID = "9a1d7c2e-0000-4000-8000-000000000002"
	newer.AuthorID = "user-B"
	newer.Rating = 3
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)

	mock.ExpectQuery("SELECT .+ FROM reviews\\s+WHERE item_id = \\$1\\s+ORDER BY created_at DESC, id DESC").
		WithArgs("app-1").
		WillReturnRows(reviewRows(newer, older))

	got, err := repo.FindByItem(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "user-B", got[0].AuthorID)
	assert.Equal(t, "user-A", got[1].AuthorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_FindByItem_Empty(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM reviews").
		WithArgs("app-9").
		WillReturnRows(reviewRows())

	got, err := repo.FindByItem(context.Background(), "app-9")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_FindByItem_RowError(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rows := reviewRows(sampleReview()).RowError(0, errors.New("network hiccup"))
	mock.ExpectQuery("SELECT .+ FROM reviews").
		WithArgs("app-1").
		WillReturnRows(rows)

	_, err := repo.FindByItem(context.Background(), "app-1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_FindByItemAndAuthor(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rv := sampleReview()
	mock.ExpectQuery("WHERE item_id = \\$1 AND author_id = \\$2").
		WithArgs("app-1", "user-A").
		WillReturnRows(reviewRows(rv))
	mock.ExpectQuery("WHERE item_id = \\$1 AND author_id = \\$2").
		WithArgs("app-1", "user-B").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.FindByItemAndAuthor(context.Background(), "app-1", "user-A")
	require.NoError(t, err)
	assert.Equal(t, rv.ID, got.ID)

	_, err = repo.FindByItemAndAuthor(context.Background(), "app-1", "user-B")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestReviewRepository_Update(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rating := 2
	text := "Changed my mind, too many bugs."
	patch := domain.ReviewPatch{Rating: &rating, Text: &text}

	updated := sampleReview()
	updated.Rating = rating
	updated.Text = text
	updated.UpdatedAt = fixedNow

	mock.ExpectQuery("UPDATE reviews").
		WithArgs(updated.ID, &rating, &text, fixedNow).
		WillReturnRows(reviewRows(updated))

	got, err := repo.Update(context.Background(), updated.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Rating)
	assert.Equal(t, text, got.Text)
	assert.Equal(t, fixedNow, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Update_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rating := 2
	mock.ExpectQuery("UPDATE reviews").
		WithArgs("missing", &rating, (*string)(nil), fixedNow).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Update(context.Background(), "missing", domain.ReviewPatch{Rating: &rating})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestReviewRepository_Delete(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM reviews WHERE id").
		WithArgs("rev-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM reviews WHERE id").
		WithArgs("rev-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "rev-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "rev-1"), apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Delete_ExecError(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM reviews WHERE id").
		WithArgs("rev-1").
		WillReturnError(errors.New("connection refused"))

	err := repo.Delete(context.Background(), "rev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete review rev-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_DeleteByItem(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM reviews WHERE item_id").
		WithArgs("app-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := repo.DeleteByItem(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestReviewRepository_List_AllItems(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	rv := sampleReview()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM reviews").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(41))
	mock.ExpectQuery("ORDER BY created_at DESC, id DESC\\s+LIMIT \\$1 OFFSET \\$2").
		WithArgs(20, 40).
		WillReturnRows(reviewRows(rv))

	got, total, err := repo.List(context.Background(), repository.ReviewFilter{Limit: 20, Offset: 40})
	require.NoError(t, err)
	assert.Equal(t, 41, total)
	require.Len(t, got, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_List_ByItem(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM reviews WHERE item_id = \\$1").
		WithArgs("app-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("WHERE item_id = \\$1\\s+ORDER BY created_at DESC, id DESC\\s+LIMIT \\$2 OFFSET \\$3").
		WithArgs("app-1", 20, 0).
		WillReturnRows(reviewRows())

	got, total, err := repo.List(context.Background(), repository.ReviewFilter{ItemID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_List_CountError(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnError(errors.New("timeout"))

	_, _, err := repo.List(context.Background(), repository.ReviewFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count reviews")
	assert.NoError(t, mock.ExpectationsWereMet())
}
