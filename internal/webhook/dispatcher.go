// Package webhook delivers signed tenant event notifications to the
// HTTP destinations configured per tenant.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/metrics"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// Event names emitted by the tenant sessions
const (
	EventMessageReceived = "message.received"
	EventConnection      = "connection"
	EventError           = "error"
)

const (
	userAgent      = "Baileys-API-Webhook"
	requestTimeout = 10 * time.Second
)

// TenantConfigSource is the slice of the store the dispatcher reads
type TenantConfigSource interface {
	ActiveWebhooks(ctx context.Context, username string) ([]model.Webhook, error)
	ExcludedNumbers(ctx context.Context, username string) (map[string]struct{}, error)
}

// payload is the wire body POSTed to each destination. The signature is
// computed over these exact serialized bytes.
type payload struct {
	Event     string      `json:"event"`
	Username  string      `json:"username"`
	Timestamp string      `json:"timestamp"`
	Data      any         `json:"data"`
	Webhook   payloadHook `json:"webhook"`
}

type payloadHook struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Dispatcher fans an event out to every active destination of a tenant.
// Delivery is best-effort and unretried: the durable log is the source
// of truth, webhook consumers that need redelivery resync over REST.
type Dispatcher struct {
	source  TenantConfigSource
	client  *http.Client
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// NewDispatcher wires a dispatcher over the tenant config source
func NewDispatcher(source TenantConfigSource, m *metrics.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		source:  source,
		client:  &http.Client{Timeout: requestTimeout},
		metrics: m,
		logger:  logger,
	}
}

// Notify delivers an event to all of the tenant's active webhooks.
// message.received events from excluded senders are dropped before any
// delivery. Per-destination failures are logged and counted but never
// fail the call or cancel peer deliveries.
func (d *Dispatcher) Notify(ctx context.Context, username, event string, data any) {
	hooks, err := d.source.ActiveWebhooks(ctx, username)
	if err != nil {
		d.logger.Error().Err(err).Str("username", username).Msg("webhook lookup failed")
		return
	}
	if len(hooks) == 0 {
		return
	}

	if event == EventMessageReceived {
		if sender := senderNumber(data); sender != "" {
			excluded, err := d.source.ExcludedNumbers(ctx, username)
			if err != nil {
				d.logger.Error().Err(err).Str("username", username).Msg("exclusion lookup failed")
			} else if _, skip := excluded[sender]; skip {
				d.logger.Debug().Str("username", username).Str("sender", sender).Msg("sender excluded, skipping webhooks")
				return
			}
		}
	}

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook model.Webhook) {
			defer wg.Done()
			if err := d.deliver(ctx, username, event, data, hook); err != nil {
				d.metrics.RecordError(metrics.ErrWebhookDelivery)
				d.logger.Error().
					Err(err).
					Str("username", username).
					Str("event", event).
					Str("webhook_id", hook.ID).
					Msg("webhook delivery failed")
				return
			}
			d.logger.Info().
				Str("username", username).
				Str("event", event).
				Str("webhook_id", hook.ID).
				Str("webhook_name", hook.Name).
				Msg("webhook delivered")
		}(hook)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, username, event string, data any, hook model.Webhook) error {
	body, err := json.Marshal(payload{
		Event:     event,
		Username:  username,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		Webhook:   payloadHook{ID: hook.ID, Name: hook.Name, URL: hook.URL},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Event-Type", event)
	req.Header.Set("X-Username", username)
	req.Header.Set("X-Webhook-Id", hook.ID)
	req.Header.Set("X-Webhook-Name", hook.Name)
	req.Header.Set("X-Signature", SignatureHeader(body, hook.Secret))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// senderNumber derives the E.164 exclusion key from a message.received
// payload. Non-message payloads yield "".
func senderNumber(data any) string {
	type messageCarrier struct {
		Message *model.MessageInfo `json:"message"`
	}
	switch v := data.(type) {
	case map[string]any:
		// re-marshal to pull the message out of loosely typed payloads
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		var carrier messageCarrier
		if json.Unmarshal(raw, &carrier) != nil || carrier.Message == nil {
			return ""
		}
		return model.E164FromJID(carrier.Message.From)
	case MessageEvent:
		return model.E164FromJID(v.Message.From)
	case *MessageEvent:
		return model.E164FromJID(v.Message.From)
	default:
		return ""
	}
}

// MessageEvent is the data payload of message.received notifications
type MessageEvent struct {
	Message  model.MessageInfo   `json:"message"`
	Business *model.BusinessInfo `json:"business,omitempty"`
}

// ConnectionEvent is the data payload of connection notifications
type ConnectionEvent struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ErrorEvent is the data payload of error notifications
type ErrorEvent struct {
	Scope   string `json:"scope"`
	Message string `json:"message"`
}
