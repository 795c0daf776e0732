package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/KingHarry001/portfolio/pkg/kafka"
)

// Kafka topics consumed by the review service.
const (
	TopicAppDeleted = pkgkafka.TopicPrefix + ".app.deleted"
)

// ReviewService defines the interface required by the event consumer.
type ReviewService interface {
	PurgeItem(ctx context.Context, itemID string) (int, error)
}

// AppDeletedData is the expected payload of an app.deleted event. Older
// producers send item_id instead of app_id.
type AppDeletedData struct {
	AppID  string `json:"app_id"`
	ItemID string `json:"item_id"`
}

// Consumer processes incoming Kafka events for the review service.
type Consumer struct {
	logger  *slog.Logger
	service ReviewService
}

// NewConsumer creates a new event consumer for the review service.
func NewConsumer(service ReviewService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleAppDeleted removes every review of a deleted app listing.
func (c *Consumer) HandleAppDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data AppDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal app.deleted data: %w", err)
	}

	itemID := data.AppID
	if itemID == "" {
		itemID = data.ItemID
	}
	if itemID == "" {
		itemID = event.AggregateID
	}
	if itemID == "" {
		return fmt.Errorf("app.deleted event %s carries no app id", event.EventID)
	}

	c.logger.InfoContext(ctx, "processing app.deleted event",
		slog.String("event_id", event.EventID),
		slog.String("item_id", itemID),
	)

	removed, err := c.service.PurgeItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("purge reviews for item %s: %w", itemID, err)
	}

	c.logger.InfoContext(ctx, "reviews purged for deleted app",
		slog.String("item_id", itemID),
		slog.Int("removed", removed),
	)

	return nil
}
