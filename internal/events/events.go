// Package events publishes reservation lifecycle notifications after the
// booking document has been committed.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Type names a reservation lifecycle transition.
type Type string

const (
	TypeBooked    Type = "reservation.booked"
	TypeMoved     Type = "reservation.moved"
	TypeCancelled Type = "reservation.cancelled"
)

// ReservationEvent is the JSON payload published for each committed change.
type ReservationEvent struct {
	ID             string    `json:"id,omitempty"`
	Type           Type      `json:"type"`
	ReservationID  string    `json:"reservation_id"`
	SlotID         string    `json:"slot_id"`
	PreviousSlotID string    `json:"previous_slot_id,omitempty"`
	UserID         string    `json:"user_id"`
	ActorUserID    string    `json:"actor_user_id"`
	Company        string    `json:"company"`
	Date           string    `json:"date"`
	StartTime      string    `json:"start_time"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements the publisher contract.
func (NopPublisher) Publish(context.Context, ReservationEvent) error { return nil }

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a LogPublisher, falling back to slog.Default.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event at info level.
func (p *LogPublisher) Publish(ctx context.Context, event ReservationEvent) error {
	p.logger.InfoContext(ctx, "reservation event",
		"event_type", string(event.Type),
		"reservation_id", event.ReservationID,
		"slot_id", event.SlotID,
		"previous_slot_id", event.PreviousSlotID,
		"company", event.Company,
		"date", event.Date,
		"start_time", event.StartTime,
		"actor_user_id", event.ActorUserID,
	)
	return nil
}
