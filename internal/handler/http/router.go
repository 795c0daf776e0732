package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KingHarry001/portfolio/internal/identity"
	"github.com/KingHarry001/portfolio/internal/service"
	"github.com/KingHarry001/portfolio/pkg/health"
	"github.com/KingHarry001/portfolio/pkg/middleware"
)

const serviceName = "review-service"

// RouterConfig carries the cross-cutting pieces the router mounts.
type RouterConfig struct {
	Validator     middleware.TokenValidator
	SubmitLimiter *middleware.RateLimiter // nil disables submit rate limiting
	CORS          middleware.CORSConfig
	PprofCIDRs    []string
}

// NewRouter creates a chi router with all review service routes registered.
func NewRouter(
	reviewService *service.ReviewService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("review"))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	reviewHandler := NewReviewHandler(reviewService, logger)
	requireAuth := middleware.Auth(cfg.Validator)
	optionalAuth := middleware.OptionalAuth(cfg.Validator)

	submit := []func(http.Handler) http.Handler{requireAuth}
	if cfg.SubmitLimiter != nil {
		submit = append(submit, cfg.SubmitLimiter.Handler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/items/{itemId}/reviews", func(r chi.Router) {
			r.With(optionalAuth).Get("/", reviewHandler.ListReviews)
			r.With(submit...).Post("/", reviewHandler.SubmitReview)
			r.With(middleware.Revalidate).Get("/stats", reviewHandler.GetStats)
			r.With(optionalAuth).Get("/feed", reviewHandler.GetFeed)
			r.With(requireAuth, middleware.NoStore).Get("/mine", reviewHandler.GetMine)
		})

		r.With(requireAuth).Delete("/reviews/{reviewId}", reviewHandler.DeleteReview)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireRole(identity.RoleAdmin))
			r.Use(middleware.NoStore)

			r.Get("/reviews", reviewHandler.AdminListReviews)
		})
	})

	return r
}
