package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KingHarry001/portfolio/internal/domain"
	"github.com/KingHarry001/portfolio/internal/identity"
	"github.com/KingHarry001/portfolio/internal/repository"
	"github.com/KingHarry001/portfolio/internal/service"
	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
	"github.com/KingHarry001/portfolio/pkg/httputil"
	"github.com/KingHarry001/portfolio/pkg/pagination"
	"github.com/KingHarry001/portfolio/pkg/validator"
)

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// SubmitReviewRequest is the JSON request body for submitting a review.
type SubmitReviewRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Text   string `json:"text" validate:"required"`
}

// --- Response DTOs ---

// FeedResponse is a page of the review feed plus the item's stats.
type FeedResponse struct {
	httputil.PaginatedResponse[domain.FeedEntry]
	Stats domain.RatingStats `json:"stats"`
}

// --- Handlers ---

// SubmitReview handles POST /api/v1/items/{itemId}/reviews
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req SubmitReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.SubmitReview(r.Context(), service.SubmitInput{
		ItemID:   chi.URLParam(r, "itemId"),
		AuthorID: caller.ID,
		Rating:   req.Rating,
		Text:     req.Text,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: res.Review})
}

// DeleteReview handles DELETE /api/v1/reviews/{reviewId}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "reviewId"))
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), id.String(), caller.ID, caller.IsAdmin()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListReviews handles GET /api/v1/items/{itemId}/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.GetReviewsForItem(r.Context(), chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if reviews == nil {
		reviews = []domain.Review{}
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reviews})
}

// GetStats handles GET /api/v1/items/{itemId}/reviews/stats
// Responses carry an ETag; a matching If-None-Match yields 304.
func (h *ReviewHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStatsForItem(r.Context(), chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSONWithETag(w, r, httputil.Response{Data: stats}, h.logger)
}

// GetMine handles GET /api/v1/items/{itemId}/reviews/mine
func (h *ReviewHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	review, err := h.service.GetCallerReview(r.Context(), chi.URLParam(r, "itemId"), caller.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// A typed nil survives omitempty and renders as "data": null.
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// GetFeed handles GET /api/v1/items/{itemId}/reviews/feed
func (h *ReviewHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)

	feed, err := h.service.GetFeed(r.Context(), chi.URLParam(r, "itemId"), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FeedResponse{
		PaginatedResponse: httputil.NewPaginatedResponse(feed.Entries, feed.Total, page.Page, page.PerPage),
		Stats:             feed.Stats,
	})
}

// AdminListReviews handles GET /api/v1/admin/reviews
func (h *ReviewHandler) AdminListReviews(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)

	reviews, total, err := h.service.ListAll(r.Context(), repository.ReviewFilter{
		ItemID: r.URL.Query().Get("item_id"),
		Limit:  page.PerPage,
		Offset: page.Offset,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(reviews, total, page.Page, page.PerPage))
}
