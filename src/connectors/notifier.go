package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalrunner/src/model"
	"signalrunner/src/retry"
)

// Alert origin tags.
const (
	OriginLive = "live"
	OriginTest = "test"
)

// Alert is the structured payload for one signal notification. Formatting
// and transport beyond this JSON shape belong to the receiving channel.
type Alert struct {
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	ProfileKey string          `json:"profile_key"`
	Strength   int             `json:"strength"`
	Origin     string          `json:"origin"`
	SentAt     time.Time       `json:"sent_at"`
}

// Notifier is the notification channel boundary. The runner decides whether
// and what to send; the channel owns formatting and delivery.
type Notifier interface {
	SendAlert(ctx context.Context, alert Alert) error
	SendLifecycle(ctx context.Context, event *model.LifecycleEvent) error
}

// WebhookNotifier posts payloads to a webhook endpoint.
type WebhookNotifier struct {
	http *resty.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(webhookURL, authToken string) *WebhookNotifier {
	httpClient := resty.New().
		SetBaseURL(webhookURL).
		SetTimeout(10 * time.Second)
	if authToken != "" {
		httpClient.SetHeader("Authorization", "Bearer "+authToken)
	}
	return &WebhookNotifier{http: httpClient}
}

// SendAlert delivers one structured signal alert.
func (n *WebhookNotifier) SendAlert(ctx context.Context, alert Alert) error {
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(alert).
		Post("/alerts")
	if err != nil {
		return &TransportError{Err: err}
	}
	if resp.IsError() {
		return &APIError{HTTPStatus: resp.StatusCode(), Msg: fmt.Sprintf("notifier rejected alert: %s", resp.Body())}
	}

	logger.WithFields(map[string]interface{}{
		"symbol": alert.Symbol,
		"side":   alert.Side,
		"origin": alert.Origin,
	}).Info("alert delivered")
	return nil
}

// ResilientNotifier routes every delivery through the bounded retry wrapper
// and the notification channel's own circuit breaker, the same protection
// exchange calls get. A transient webhook blip is retried instead of
// surfacing to the caller; a persistently failing channel trips its breaker
// without touching the exchange breaker.
type ResilientNotifier struct {
	inner   Notifier
	breaker *retry.Breaker
	policy  retry.Policy
}

var _ Notifier = (*ResilientNotifier)(nil)

func NewResilientNotifier(inner Notifier, breaker *retry.Breaker, policy retry.Policy) *ResilientNotifier {
	return &ResilientNotifier{inner: inner, breaker: breaker, policy: policy}
}

func (n *ResilientNotifier) SendAlert(ctx context.Context, alert Alert) error {
	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, n.policy, "notifier.SendAlert", func(ctx context.Context) error {
			return n.inner.SendAlert(ctx, alert)
		})
	})
}

func (n *ResilientNotifier) SendLifecycle(ctx context.Context, event *model.LifecycleEvent) error {
	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, n.policy, "notifier.SendLifecycle", func(ctx context.Context) error {
			return n.inner.SendLifecycle(ctx, event)
		})
	})
}

// SendLifecycle delivers one lifecycle notification. Critical events
// (unprotected open positions) go through the same path but are never
// swallowed: failures bubble up to the caller.
func (n *WebhookNotifier) SendLifecycle(ctx context.Context, event *model.LifecycleEvent) error {
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(event).
		Post("/lifecycle")
	if err != nil {
		return &TransportError{Err: err}
	}
	if resp.IsError() {
		return &APIError{HTTPStatus: resp.StatusCode(), Msg: fmt.Sprintf("notifier rejected event: %s", resp.Body())}
	}
	return nil
}
