// README: Driver push notifications over Firebase Cloud Messaging.
package notify

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"firebase.google.com/go/v4/messaging"

	"relay/internal/modules/assignment"
	"relay/internal/modules/driver"
	"relay/internal/types"
)

// TokenSource resolves a driver's registered device token.
type TokenSource interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

// FCM pushes offer countdowns to driver devices. Delivery is best-effort:
// a failed push is logged and dropped, the offer TTL still applies.
type FCM struct {
	client *messaging.Client
	tokens TokenSource
	logger *slog.Logger
}

func NewFCM(client *messaging.Client, tokens TokenSource, logger *slog.Logger) *FCM {
	return &FCM{client: client, tokens: tokens, logger: logger}
}

func (n *FCM) OfferIssued(ctx context.Context, a *assignment.Assignment) {
	rec, err := n.tokens.Get(ctx, a.DriverID)
	if err != nil {
		n.logger.Warn("offer push skipped, driver lookup failed",
			"driver_id", a.DriverID, "err", err)
		return
	}
	if rec.DeviceToken == "" {
		return
	}

	msg := &messaging.Message{
		Token: rec.DeviceToken,
		Data: map[string]string{
			"type":          "assignment_offer",
			"assignment_id": string(a.ID),
			"request_id":    string(a.RequestID),
			"distance_km":   strconv.FormatFloat(a.DistanceKm, 'f', 2, 64),
			"eta_minutes":   strconv.Itoa(a.EtaMinutes),
			"expires_at":    a.ExpiresAt.Format(time.RFC3339),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
	if _, err := n.client.Send(ctx, msg); err != nil {
		n.logger.Warn("offer push failed",
			"driver_id", a.DriverID, "assignment_id", a.ID, "err", err)
	}
}

// Noop stands in when FCM is not configured.
type Noop struct{}

func (Noop) OfferIssued(context.Context, *assignment.Assignment) {}
