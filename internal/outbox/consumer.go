package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	outboxdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/outbox"
)

// Handler processes one outbox event. Delivery is at-least-once, so handlers
// must be idempotent; the dedupe keys baked into payloads are there for that.
type Handler func(ctx context.Context, event *outboxdm.OutboxEvent) error

type ConsumerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	// ClaimLease is how long a claimed event stays invisible to other
	// consumer instances. Must exceed the slowest handler.
	ClaimLease time.Duration
}

type Consumer struct {
	repo     RepositoryAPI
	cfg      ConsumerConfig
	logger   *slog.Logger
	handlers map[string]Handler
	mu       sync.RWMutex
}

func NewConsumer(repo RepositoryAPI, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Minute
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = time.Minute
	}
	return &Consumer{
		repo:     repo,
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to an event type.
func (c *Consumer) Register(eventType string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[eventType] = handler
	c.logger.Info("outbox handler registered", "event_type", eventType)
}

func (c *Consumer) handlerFor(eventType string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[eventType]
	return h, ok
}

// Start polls until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("outbox consumer started",
		"poll_interval", c.cfg.PollInterval,
		"batch_size", c.cfg.BatchSize,
		"max_attempts", c.cfg.MaxAttempts)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("outbox consumer stopped")
			return
		case <-ticker.C:
			c.Poll(ctx)
		}
	}
}

// Poll claims one batch of due events and dispatches them. The claim is a
// conditional bump of next_attempt_at, so two instances polling the same
// table each dispatch a disjoint set of events.
func (c *Consumer) Poll(ctx context.Context) {
	now := time.Now().UTC()
	events, err := c.repo.GetDue(now, c.cfg.BatchSize)
	if err != nil {
		c.logger.Error("failed to fetch due outbox events", "error", err)
		return
	}

	for _, event := range events {
		claimed, err := c.repo.Claim(event.ID, now, now.Add(c.cfg.ClaimLease))
		if err != nil {
			c.logger.Error("failed to claim outbox event",
				"event_id", event.EventID,
				"error", err)
			continue
		}
		if !claimed {
			// Another instance got there first.
			continue
		}
		if err := c.Dispatch(ctx, event); err != nil {
			c.logger.Error("failed to dispatch outbox event",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err)
		}
	}
}

// Dispatch delivers one event to its handler and records the outcome.
func (c *Consumer) Dispatch(ctx context.Context, event *outboxdm.OutboxEvent) error {
	handler, ok := c.handlerFor(event.EventType)
	if !ok {
		// No handler can ever succeed for this type; retrying would spin.
		c.logger.Error("no handler for outbox event type, dead-lettering",
			"event_id", event.EventID,
			"event_type", event.EventType)
		eventsDeadLettered.WithLabelValues(event.EventType).Inc()
		return c.repo.MarkDeadLettered(event.ID, time.Now().UTC(),
			string(internal.ErrCodeUnknownEventType), "no handler registered for event type")
	}

	err := handler(ctx, event)
	now := time.Now().UTC()

	if err == nil {
		eventsPublished.WithLabelValues(event.EventType).Inc()
		c.logger.Info("outbox event published",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"attempts", event.Attempts)
		return c.repo.MarkPublished(event.ID, now)
	}

	attempts := event.Attempts + 1
	reasonCode := reasonCodeFor(err)

	if attempts >= c.cfg.MaxAttempts {
		eventsDeadLettered.WithLabelValues(event.EventType).Inc()
		c.logger.Error("outbox event exhausted retries, dead-lettering",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"attempts", attempts,
			"error", err)
		return c.repo.MarkDeadLettered(event.ID, now, reasonCode, err.Error())
	}

	next := now.Add(c.backoffFor(attempts))
	eventsRetried.WithLabelValues(event.EventType).Inc()
	c.logger.Warn("outbox event dispatch failed, scheduling retry",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"attempts", attempts,
		"next_attempt_at", next,
		"error", err)
	return c.repo.MarkFailed(event.ID, attempts, next, reasonCode, err.Error())
}

// backoffFor doubles per attempt from the base, capped at MaxBackoff.
func (c *Consumer) backoffFor(attempts int) time.Duration {
	backoff := c.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	if backoff > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return backoff
}

func reasonCodeFor(err error) string {
	if appErr, ok := internal.IsAppError(err); ok {
		return string(appErr.Code)
	}
	return "HANDLER_ERROR"
}
