package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	outboxdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/outbox"
)

// WebhookPublisher delivers outbox events to a downstream HTTP sink. With no
// sink configured it logs the event and reports success, which keeps local
// development free of external dependencies.
type WebhookPublisher struct {
	sinkURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewWebhookPublisher(sinkURL string, timeout time.Duration, logger *slog.Logger) *WebhookPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPublisher{
		sinkURL:    sinkURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Publish satisfies Handler. The event id travels in a header so the sink can
// dedupe at-least-once deliveries.
func (p *WebhookPublisher) Publish(ctx context.Context, event *outboxdm.OutboxEvent) error {
	if p.sinkURL == "" {
		p.logger.Info("event published to log sink",
			"event_id", event.EventID,
			"event_type", event.EventType)
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"payload":    event.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sinkURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", event.EventID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return internal.NewExternalError("event delivery to sink failed", internal.ErrCodeGatewayError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return internal.NewExternalError(
			fmt.Sprintf("event sink returned status %d", resp.StatusCode),
			internal.ErrCodeGatewayError, nil)
	}

	return nil
}
