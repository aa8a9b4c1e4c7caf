package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"plutus/internal/automation"
	"plutus/internal/config"
	"plutus/internal/constants"
	"plutus/internal/logger"
	"plutus/pkg/circuitbreaker"
	"plutus/pkg/metrics"
	"plutus/pkg/retry"
)

// WebhookSender delivers notifications produced by sendNotification actions to
// a configured webhook endpoint. A missing webhook URL turns delivery into a
// logged no-op so rules with notification actions still succeed in
// environments without an endpoint.
type WebhookSender struct {
	client *http.Client
	url    string
	cb     *circuitbreaker.Wrapper
	policy retry.Policy
	logger logger.Logger
}

type webhookPayload struct {
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title,omitempty"`
	Message     string    `json:"message"`
	EntityType  string    `json:"entity_type,omitempty"`
	EntityID    string    `json:"entity_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewWebhookSender(cfg config.NotifyConfig, log logger.Logger) *WebhookSender {
	timeout := cfg.TimeoutSeconds * time.Second
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}

	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		url:    cfg.WebhookURL,
		cb:     circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig("notify-webhook")),
		policy: policy,
		logger: log,
	}
}

var _ automation.NotificationService = (*WebhookSender)(nil)

func (s *WebhookSender) Send(ctx context.Context, notification automation.Notification) error {
	if s.url == "" {
		metrics.NotificationsSentTotal.WithLabelValues("skipped").Inc()
		s.logger.DebugwCtx(ctx, "No webhook URL configured, dropping notification",
			"workspace_id", notification.WorkspaceID,
			"title", notification.Title,
		)
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		WorkspaceID: notification.WorkspaceID,
		Title:       notification.Title,
		Message:     notification.Message,
		EntityType:  notification.EntityType,
		EntityID:    notification.EntityID,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		metrics.NotificationsSentTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	err = retry.RetryWithCallback(ctx, s.policy, func() error {
		return s.post(ctx, body)
	}, func(attempt int, err error, nextDelay time.Duration) {
		s.logger.WarnwCtx(ctx, "Webhook delivery failed, retrying",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		metrics.NotificationsSentTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("webhook delivery failed: %w", err)
	}

	metrics.NotificationsSentTotal.WithLabelValues("sent").Inc()
	return nil
}

func (s *WebhookSender) post(ctx context.Context, body []byte) error {
	_, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("webhook request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
			return nil, fmt.Errorf("webhook returned status: %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
