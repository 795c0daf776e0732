package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KingHarry001/portfolio/internal/domain"
	pkgkafka "github.com/KingHarry001/portfolio/pkg/kafka"
)

// Kafka topic constants for review domain events.
const (
	TopicReviewSubmitted = pkgkafka.TopicPrefix + ".review.submitted"
	TopicReviewDeleted   = pkgkafka.TopicPrefix + ".review.deleted"
)

// Aggregate type constant.
const AggregateTypeReview = "review"

// Source identifier for events originating from the review service.
const SourceReviewService = "review-service"

// ReviewSubmittedData is the payload for a review.submitted event.
type ReviewSubmittedData struct {
	ReviewID string `json:"review_id"`
	ItemID   string `json:"item_id"`
	AuthorID string `json:"author_id"`
	Rating   int    `json:"rating"`
	Text     string `json:"text"`
	Created  bool   `json:"created"`
}

// ReviewDeletedData is the payload for a review.deleted event.
type ReviewDeletedData struct {
	ReviewID string `json:"review_id"`
	ItemID   string `json:"item_id"`
	AuthorID string `json:"author_id"`
	ActorID  string `json:"actor_id"`
	ByAdmin  bool   `json:"by_admin"`
}

// Bus is the part of *pkgkafka.Producer the event producer needs.
type Bus interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes review domain events to Kafka.
type Producer struct {
	kafka  Bus
	logger *slog.Logger
}

// NewProducer creates a new event producer for the review service.
func NewProducer(kafka Bus, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishReviewSubmitted publishes a review.submitted event.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, review *domain.Review, created bool) error {
	data := ReviewSubmittedData{
		ReviewID: review.ID,
		ItemID:   review.ItemID,
		AuthorID: review.AuthorID,
		Rating:   review.Rating,
		Text:     review.Text,
		Created:  created,
	}

	event, err := pkgkafka.NewEvent(TopicReviewSubmitted, review.ID, AggregateTypeReview, SourceReviewService, data)
	if err != nil {
		return fmt.Errorf("create review.submitted event: %w", err)
	}
	event.WithRequestContext(ctx).WithMetadata("item_id", review.ItemID)

	if err := p.kafka.Publish(ctx, TopicReviewSubmitted, event); err != nil {
		return fmt.Errorf("publish review.submitted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published review.submitted event",
		slog.String("review_id", review.ID),
		slog.String("item_id", review.ItemID),
		slog.Bool("created", created),
	)

	return nil
}

// PublishReviewDeleted publishes a review.deleted event.
func (p *Producer) PublishReviewDeleted(ctx context.Context, review *domain.Review, actorID string, byAdmin bool) error {
	data := ReviewDeletedData{
		ReviewID: review.ID,
		ItemID:   review.ItemID,
		AuthorID: review.AuthorID,
		ActorID:  actorID,
		ByAdmin:  byAdmin,
	}

	event, err := pkgkafka.NewEvent(TopicReviewDeleted, review.ID, AggregateTypeReview, SourceReviewService, data)
	if err != nil {
		return fmt.Errorf("create review.deleted event: %w", err)
	}
	event.WithRequestContext(ctx).WithMetadata("item_id", review.ItemID)

	if err := p.kafka.Publish(ctx, TopicReviewDeleted, event); err != nil {
		return fmt.Errorf("publish review.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published review.deleted event",
		slog.String("review_id", review.ID),
		slog.String("actor_id", actorID),
		slog.Bool("by_admin", byAdmin),
	)

	return nil
}

// NoopPublisher drops every event. It stands in for the producer when Kafka
// is disabled.
type NoopPublisher struct{}

// PublishReviewSubmitted implements the service's publisher contract.
func (NoopPublisher) PublishReviewSubmitted(context.Context, *domain.Review, bool) error {
	return nil
}

// PublishReviewDeleted implements the service's publisher contract.
func (NoopPublisher) PublishReviewDeleted(context.Context, *domain.Review, string, bool) error {
	return nil
}
