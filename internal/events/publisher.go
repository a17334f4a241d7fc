// README: Dispatch lifecycle events published to the AMQP topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"relay/internal/modules/assignment"
	"relay/internal/types"
)

// Publisher emits dispatch outcomes for the order/ride state owners.
// Routing keys end with the request id so owners can bind per request.
// Publishing is fire-and-forget: a broker hiccup is logged, never
// propagated into the dispatch state machine.
type Publisher struct {
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func NewPublisher(ch *amqp.Channel, exchange string, logger *slog.Logger) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, logger: logger}
}

type acceptedEvent struct {
	RequestID    types.ID  `json:"request_id"`
	AssignmentID types.ID  `json:"assignment_id"`
	DriverID     types.ID  `json:"driver_id"`
	EtaMinutes   int       `json:"eta_minutes"`
	AcceptedAt   time.Time `json:"accepted_at"`
}

func (p *Publisher) AssignmentAccepted(ctx context.Context, a *assignment.Assignment) {
	at := time.Now().UTC()
	if a.RespondedAt != nil {
		at = *a.RespondedAt
	}
	key := fmt.Sprintf("assignment.accepted.%s", a.RequestID)
	p.publish(ctx, key, acceptedEvent{
		RequestID:    a.RequestID,
		AssignmentID: a.ID,
		DriverID:     a.DriverID,
		EtaMinutes:   a.EtaMinutes,
		AcceptedAt:   at,
	})
}

type exhaustedEvent struct {
	RequestID   types.ID  `json:"request_id"`
	Reason      string    `json:"reason"`
	ExhaustedAt time.Time `json:"exhausted_at"`
}

func (p *Publisher) RequestExhausted(ctx context.Context, requestID types.ID, reason string) {
	key := fmt.Sprintf("request.exhausted.%s", requestID)
	p.publish(ctx, key, exhaustedEvent{
		RequestID:   requestID,
		Reason:      reason,
		ExhaustedAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, key string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("event marshal failed", "routing_key", key, "err", err)
		return
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
	if err != nil {
		p.logger.Error("event publish failed", "routing_key", key, "err", err)
		return
	}
	p.logger.Debug("event published", "routing_key", key)
}

// Noop stands in when the broker is not configured.
type Noop struct{}

func (Noop) AssignmentAccepted(context.Context, *assignment.Assignment) {}
func (Noop) RequestExhausted(context.Context, types.ID, string)         {}
