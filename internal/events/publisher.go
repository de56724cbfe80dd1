package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-trend-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeSnapshotCompleted is published after a scrape session is persisted
	EventTypeSnapshotCompleted EventType = "SNAPSHOT_COMPLETED"
)

// SnapshotCompletedPayload represents the payload for SNAPSHOT_COMPLETED event
type SnapshotCompletedPayload struct {
	EventID      string        `json:"event_id"`
	EventType    string        `json:"event_type"`
	Timestamp    time.Time     `json:"timestamp"`
	SessionID    string        `json:"session_id"`
	Source       string        `json:"source"`
	ProductCount int           `json:"product_count"`
	SnapshotPath string        `json:"snapshot_path,omitempty"`
	Report       models.Report `json:"report"`
}

// Publisher pushes session events onto a redis stream. Downstream consumers
// (alerting, dashboards) read from the stream independently.
type Publisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewPublisher(client *redis.Client, stream string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

func newSnapshotCompletedPayload(col *models.Collection, snapshotPath string) *SnapshotCompletedPayload {
	return &SnapshotCompletedPayload{
		EventID:      uuid.New().String(),
		EventType:    string(EventTypeSnapshotCompleted),
		Timestamp:    time.Now().UTC(),
		SessionID:    col.SessionID.String(),
		Source:       col.Source,
		ProductCount: len(col.Products),
		SnapshotPath: snapshotPath,
		Report:       col.Report,
	}
}

// PublishSnapshotCompleted publishes a SNAPSHOT_COMPLETED event for a
// persisted collection.
func (p *Publisher) PublishSnapshotCompleted(ctx context.Context, col *models.Collection, snapshotPath string) error {
	payload := newSnapshotCompletedPayload(col, snapshotPath)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_type": payload.EventType,
			"event_id":   payload.EventID,
			"payload":    string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"session_id", payload.SessionID,
		"products", payload.ProductCount,
	)

	return nil
}
