package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HeartbeatEvent is the progress signal emitted after a successful receipt
// save, consumed by the monitoring queue.
type HeartbeatEvent struct {
	EventID   string `json:"eventId"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

// Heartbeat publishes heartbeat events to a dedicated queue.
type Heartbeat struct {
	Pub      *Publisher
	QueueURL string
}

// Publish sends one heartbeat for the user. Callers treat failures as
// non-fatal.
func (h *Heartbeat) Publish(ctx context.Context, waID string) error {
	return h.Pub.SendJSON(ctx, h.QueueURL, HeartbeatEvent{
		EventID:   uuid.NewString(),
		UserID:    waID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
