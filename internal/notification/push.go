package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
)

// ErrSubscriptionGone is returned when the push service reports the endpoint
// no longer exists (404/410). Callers currently treat it like any other
// failure; pruning dead subscriptions is left to a later cleanup pass.
var ErrSubscriptionGone = errors.New("push subscription is gone")

// PushSender delivers one web push message to an opaque subscription
// descriptor (endpoint + keys, as serialised by the browser).
type PushSender interface {
	Send(ctx context.Context, subscription json.RawMessage, payload []byte) error
}

// WebPushSender signs and encrypts messages with a VAPID identity.
type WebPushSender struct {
	options *webpush.Options
}

// NewWebPushSender creates a sender bound to one VAPID identity.
func NewWebPushSender(options *webpush.Options) *WebPushSender {
	return &WebPushSender{options: options}
}

// Send decodes the descriptor, posts the encrypted payload and maps the push
// service's status code to an error.
func (s *WebPushSender) Send(ctx context.Context, subscription json.RawMessage, payload []byte) error {
	var sub webpush.Subscription
	if err := json.Unmarshal(subscription, &sub); err != nil {
		return fmt.Errorf("failed to decode push subscription: %w", err)
	}
	if sub.Endpoint == "" {
		return errors.New("push subscription has no endpoint")
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, s.options)
	if err != nil {
		return fmt.Errorf("failed to send push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s responded %d", ErrSubscriptionGone, sub.Endpoint, resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push service %s responded %d: %s", sub.Endpoint, resp.StatusCode, body)
	}
	return nil
}
