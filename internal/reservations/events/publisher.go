// Package events publishes reservation lifecycle events to Kafka. Publishing
// is best effort and happens after the transaction commits: a failed publish
// is logged and never fails the request.
package events

import (
	"context"

	"deskly/pkg/kafka"
	"deskly/pkg/logger"
	"deskly/pkg/model"
)

const Topic = "reservation-events"

type reservationPayload struct {
	ReservationID string         `json:"reservation_id"`
	OwnerID       string         `json:"owner_id"`
	WorkspaceID   string         `json:"workspace_id"`
	Interval      model.Interval `json:"interval"`
	Status        string         `json:"status"`
}

// Publisher emits lifecycle events keyed by workspace ID so all events for
// one workspace stay ordered on a single partition. A nil producer disables
// publishing, which keeps local setups runnable without a broker.
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewPublisher(producer *kafka.Producer, log *logger.Logger) *Publisher {
	return &Publisher{producer: producer, log: log}
}

func (p *Publisher) ReservationCreated(ctx context.Context, r *model.Reservation) {
	p.publish(ctx, kafka.EventReservationCreated, r)
}

func (p *Publisher) ReservationCancelled(ctx context.Context, r *model.Reservation) {
	p.publish(ctx, kafka.EventReservationCancelled, r)
}

func (p *Publisher) ReservationRescheduled(ctx context.Context, r *model.Reservation) {
	p.publish(ctx, kafka.EventReservationRescheduled, r)
}

func (p *Publisher) publish(ctx context.Context, eventType string, r *model.Reservation) {
	if p.producer == nil {
		return
	}

	msg, err := kafka.NewMessage(Topic).
		WithKey(r.WorkspaceID).
		WithEventType(eventType).
		WithPayload(reservationPayload{
			ReservationID: r.ID,
			OwnerID:       r.OwnerID,
			WorkspaceID:   r.WorkspaceID,
			Interval:      r.Interval,
			Status:        r.Status,
		}).
		Build()
	if err != nil {
		p.log.Error("Failed to build reservation event", "event_type", eventType, "reservation_id", r.ID, "error", err)
		return
	}

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Warn("Failed to publish reservation event", "event_type", eventType, "reservation_id", r.ID, "error", err)
	}
}
