package audit

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookEmitter 推送到外部审计协作方的 HTTP 接口
type WebhookEmitter struct {
	client *resty.Client
	logger *zap.Logger
}

func NewWebhookEmitter(baseURL string, logger *zap.Logger) *WebhookEmitter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookEmitter{client: client, logger: logger}
}

func (e *WebhookEmitter) Emit(ctx context.Context, event Event) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(event).
		Post("/events")
	if err != nil {
		e.logger.Warn("failed to deliver audit event to webhook",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return
	}
	if resp.IsError() {
		e.logger.Warn("audit webhook returned error status",
			zap.String("event_id", event.ID),
			zap.Int("status", resp.StatusCode()))
	}
}
