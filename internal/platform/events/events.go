// Package events publishes appointment lifecycle events to a message broker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is the broker payload for one appointment change.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ActorRole     string    `json:"actor_role"`
	ActorID       uuid.UUID `json:"actor_id"`
	FromStatus    string    `json:"from_status,omitempty"`
	ToStatus      string    `json:"to_status"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RoutingKey is "appointment.<type>".
func (e Event) RoutingKey() string {
	return "appointment." + e.Type
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops events. It is used when no broker is configured.
type NopPublisher struct {
	Logger zerolog.Logger
}

func (p NopPublisher) Publish(_ context.Context, e Event) error {
	p.Logger.Debug().Str("routing_key", e.RoutingKey()).Str("appointment_id", e.AppointmentID.String()).
		Msg("event not published, broker disabled")
	return nil
}

func (NopPublisher) Close() error { return nil }
