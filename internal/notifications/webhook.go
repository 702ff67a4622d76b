package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Retries int
}

// WebhookDispatcher posts events as JSON to the notification service, which
// owns recipient resolution and message content.
type WebhookDispatcher struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewWebhookDispatcher(cfg WebhookConfig, logger *zap.Logger) *WebhookDispatcher {
	client := resty.New()
	client.
		SetBaseURL(cfg.URL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond)

	return &WebhookDispatcher{
		httpClient: client,
		logger:     logger.Named("notifications"),
	}
}

func (d *WebhookDispatcher) Notify(ctx context.Context, event Event) error {
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Event-ID", event.ID).
		SetBody(event).
		Post("")
	if err != nil {
		return fmt.Errorf("send %s notification: %w", event.Type, err)
	}

	if resp.IsError() {
		return fmt.Errorf("notification service returned %d for %s", resp.StatusCode(), event.Type)
	}

	d.logger.Debug("Notification delivered", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
	return nil
}
