package outbox_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/gorm"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	outboxdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/outbox"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	outboxpg "github.com/frahmantamala/marketplace-settlement/internal/outbox/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/testsupport"
)

func TestOutbox(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Outbox Suite")
}

var lg = slog.New(slog.NewTextHandler(io.Discard, nil))

var _ = ginkgo.Describe("Producer", func() {
	var (
		db       *gorm.DB
		repo     outbox.RepositoryAPI
		producer *outbox.Producer
	)

	ginkgo.BeforeEach(func() {
		var err error
		db, err = testsupport.OpenDB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = outboxpg.NewOutboxRepository(db)
		producer = outbox.NewProducer(repo, lg)
	})

	ginkgo.It("should record one event and return its id", func() {
		eventID, err := producer.Record(db, "payment.recorded", "payment:order:ord-1", map[string]int64{"payment_id": 1})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(eventID).ToNot(gomega.BeEmpty())

		stored, err := repo.GetByEventID(eventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.EventType).To(gomega.Equal("payment.recorded"))
		gomega.Expect(stored.Pending()).To(gomega.BeTrue())
	})

	ginkgo.It("should return the canonical event id on a dedupe collision", func() {
		first, err := producer.Record(db, "payment.recorded", "payment:order:ord-1", map[string]int64{"payment_id": 1})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		second, err := producer.Record(db, "payment.recorded", "payment:order:ord-1", map[string]int64{"payment_id": 1})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(second).To(gomega.Equal(first))

		var count int64
		gomega.Expect(db.Model(&outboxdm.OutboxEvent{}).Count(&count).Error).ToNot(gomega.HaveOccurred())
		gomega.Expect(count).To(gomega.Equal(int64(1)))
	})

	ginkgo.It("should reject an empty event type or dedupe key", func() {
		_, err := producer.Record(db, "", "key", nil)
		gomega.Expect(err).To(gomega.HaveOccurred())

		_, err = producer.Record(db, "payment.recorded", "", nil)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})

var _ = ginkgo.Describe("Consumer", func() {
	var (
		db       *gorm.DB
		repo     outbox.RepositoryAPI
		producer *outbox.Producer
		consumer *outbox.Consumer
		ctx      context.Context
	)

	ginkgo.BeforeEach(func() {
		var err error
		db, err = testsupport.OpenDB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = outboxpg.NewOutboxRepository(db)
		producer = outbox.NewProducer(repo, lg)
		consumer = outbox.NewConsumer(repo, outbox.ConsumerConfig{
			BatchSize:   10,
			MaxAttempts: 2,
			BaseBackoff: time.Second,
			MaxBackoff:  time.Minute,
		}, lg)
		ctx = context.Background()
	})

	record := func(eventType string) *outboxdm.OutboxEvent {
		eventID, err := producer.Record(db, eventType, "key:"+eventType, nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		event, err := repo.GetByEventID(eventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return event
	}

	ginkgo.It("should mark a delivered event published", func() {
		delivered := 0
		consumer.Register("payment.recorded", func(ctx context.Context, e *outboxdm.OutboxEvent) error {
			delivered++
			return nil
		})

		event := record("payment.recorded")
		gomega.Expect(consumer.Dispatch(ctx, event)).ToNot(gomega.HaveOccurred())
		gomega.Expect(delivered).To(gomega.Equal(1))

		stored, err := repo.GetByEventID(event.EventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.PublishedAt).ToNot(gomega.BeNil())
	})

	ginkgo.It("should schedule a retry with backoff after a handler failure", func() {
		consumer.Register("payment.recorded", func(ctx context.Context, e *outboxdm.OutboxEvent) error {
			return fmt.Errorf("sink unavailable")
		})

		event := record("payment.recorded")
		before := time.Now().UTC()
		gomega.Expect(consumer.Dispatch(ctx, event)).ToNot(gomega.HaveOccurred())

		stored, err := repo.GetByEventID(event.EventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.Attempts).To(gomega.Equal(1))
		gomega.Expect(stored.PublishedAt).To(gomega.BeNil())
		gomega.Expect(stored.DeadLetteredAt).To(gomega.BeNil())
		gomega.Expect(stored.NextAttemptAt).To(gomega.BeTemporally(">", before))
		gomega.Expect(stored.LastError).ToNot(gomega.BeNil())
	})

	ginkgo.It("should dead-letter an event after exhausting its attempts", func() {
		consumer.Register("payment.recorded", func(ctx context.Context, e *outboxdm.OutboxEvent) error {
			return fmt.Errorf("sink unavailable")
		})

		event := record("payment.recorded")
		gomega.Expect(consumer.Dispatch(ctx, event)).ToNot(gomega.HaveOccurred())

		stored, err := repo.GetByEventID(event.EventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(consumer.Dispatch(ctx, stored)).ToNot(gomega.HaveOccurred())

		stored, err = repo.GetByEventID(event.EventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.DeadLetteredAt).ToNot(gomega.BeNil())
	})

	ginkgo.It("should claim an event at most once per due window", func() {
		event := record("payment.recorded")
		now := time.Now().UTC()

		claimed, err := repo.Claim(event.ID, now, now.Add(time.Minute))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(claimed).To(gomega.BeTrue())

		claimed, err = repo.Claim(event.ID, now, now.Add(time.Minute))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(claimed).To(gomega.BeFalse())
	})

	ginkgo.It("should not dispatch an event another instance holds the lease on", func() {
		delivered := 0
		consumer.Register("payment.recorded", func(ctx context.Context, e *outboxdm.OutboxEvent) error {
			delivered++
			return nil
		})

		event := record("payment.recorded")
		now := time.Now().UTC()
		claimed, err := repo.Claim(event.ID, now, now.Add(time.Minute))
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(claimed).To(gomega.BeTrue())

		consumer.Poll(ctx)
		gomega.Expect(delivered).To(gomega.Equal(0))

		stored, err := repo.GetByEventID(event.EventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.PublishedAt).To(gomega.BeNil())
	})

	ginkgo.It("should dispatch a due event through a poll", func() {
		delivered := 0
		consumer.Register("payment.recorded", func(ctx context.Context, e *outboxdm.OutboxEvent) error {
			delivered++
			return nil
		})

		event := record("payment.recorded")
		consumer.Poll(ctx)
		gomega.Expect(delivered).To(gomega.Equal(1))

		stored, err := repo.GetByEventID(event.EventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.PublishedAt).ToNot(gomega.BeNil())
	})

	ginkgo.It("should dead-letter an event type nothing is registered for", func() {
		event := record("payment.unknown")
		gomega.Expect(consumer.Dispatch(ctx, event)).ToNot(gomega.HaveOccurred())

		stored, err := repo.GetByEventID(event.EventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.DeadLetteredAt).ToNot(gomega.BeNil())
		gomega.Expect(stored.ReasonCode).ToNot(gomega.BeNil())
		gomega.Expect(*stored.ReasonCode).To(gomega.Equal(string(internal.ErrCodeUnknownEventType)))
	})
})

var _ = ginkgo.Describe("ReplayService", func() {
	var (
		db       *gorm.DB
		repo     outbox.RepositoryAPI
		producer *outbox.Producer
		svc      *outbox.ReplayService
	)

	ginkgo.BeforeEach(func() {
		var err error
		db, err = testsupport.OpenDB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = outboxpg.NewOutboxRepository(db)
		producer = outbox.NewProducer(repo, lg)
		svc = outbox.NewReplayService(db, repo, outbox.ReplayConfig{
			MaxBatch: 2,
			Cooldown: time.Hour,
		}, lg)
	})

	deadLettered := func(dedupeKey string) *outboxdm.OutboxEvent {
		eventID, err := producer.Record(db, "payment.recorded", dedupeKey, nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		event, err := repo.GetByEventID(eventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(repo.MarkDeadLettered(event.ID, time.Now().UTC(), "HANDLER_ERROR", "sink unavailable")).ToNot(gomega.HaveOccurred())
		return event
	}

	ginkgo.It("should rearm a dead-lettered event", func() {
		event := deadLettered("key-1")

		result, err := svc.ReplayEvents("req-1", "ops@example.com", []string{event.EventID})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(result.Rearmed).To(gomega.ConsistOf(event.EventID))

		stored, err := repo.GetByEventID(event.EventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.DeadLetteredAt).To(gomega.BeNil())
		gomega.Expect(stored.Attempts).To(gomega.Equal(0))
	})

	ginkgo.It("should skip an event that was already published", func() {
		eventID, err := producer.Record(db, "payment.recorded", "key-1", nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		event, err := repo.GetByEventID(eventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(repo.MarkPublished(event.ID, time.Now().UTC())).ToNot(gomega.HaveOccurred())

		result, err := svc.ReplayEvents("req-1", "ops@example.com", []string{eventID})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(result.Skipped).To(gomega.ConsistOf(eventID))
	})

	ginkgo.It("should report unknown event ids", func() {
		result, err := svc.ReplayEvents("req-1", "ops@example.com", []string{"no-such-event"})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(result.NotFound).To(gomega.ConsistOf("no-such-event"))
	})

	ginkgo.It("should return the recorded result on a repeated request id", func() {
		event := deadLettered("key-1")

		first, err := svc.ReplayEvents("req-1", "ops@example.com", []string{event.EventID})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		second, err := svc.ReplayEvents("req-1", "ops@example.com", []string{event.EventID})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(second).To(gomega.Equal(first))

		var count int64
		gomega.Expect(db.Model(&outboxdm.ReplayRequest{}).Count(&count).Error).ToNot(gomega.HaveOccurred())
		gomega.Expect(count).To(gomega.Equal(int64(1)))
	})

	ginkgo.It("should enforce the cooldown between distinct batches", func() {
		a := deadLettered("key-1")
		b := deadLettered("key-2")

		_, err := svc.ReplayEvents("req-1", "ops@example.com", []string{a.EventID})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = svc.ReplayEvents("req-2", "ops@example.com", []string{b.EventID})
		gomega.Expect(err).To(gomega.Equal(internal.ErrReplayCooldownActive))
	})

	ginkgo.It("should cap the batch size", func() {
		_, err := svc.ReplayEvents("req-1", "ops@example.com", []string{"a", "b", "c"})
		gomega.Expect(err).To(gomega.Equal(internal.ErrReplayBatchTooLarge))
	})

	ginkgo.It("should require a request id and a non-empty batch", func() {
		_, err := svc.ReplayEvents("", "ops@example.com", []string{"a"})
		gomega.Expect(err).To(gomega.HaveOccurred())

		_, err = svc.ReplayEvents("req-1", "ops@example.com", nil)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})

var _ = ginkgo.Describe("ReplayHandler", func() {
	var (
		db       *gorm.DB
		repo     outbox.RepositoryAPI
		producer *outbox.Producer
		handler  *outbox.ReplayHandler
	)

	ginkgo.BeforeEach(func() {
		var err error
		db, err = testsupport.OpenDB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = outboxpg.NewOutboxRepository(db)
		producer = outbox.NewProducer(repo, lg)
		svc := outbox.NewReplayService(db, repo, outbox.ReplayConfig{MaxBatch: 10, Cooldown: time.Hour}, lg)
		handler = outbox.NewReplayHandler(svc, lg)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/outbox/replay", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ReplayEvents(rec, req)
		return rec
	}

	ginkgo.It("should rearm dead-lettered events over the admin endpoint", func() {
		eventID, err := producer.Record(db, "payment.recorded", "key-1", nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		event, err := repo.GetByEventID(eventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(repo.MarkDeadLettered(event.ID, time.Now().UTC(), "HANDLER_ERROR", "sink unavailable")).ToNot(gomega.HaveOccurred())

		rec := post(fmt.Sprintf(`{"request_id":"req-1","event_ids":[%q]}`, eventID))
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(eventID))

		stored, err := repo.GetByEventID(eventID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(stored.DeadLetteredAt).To(gomega.BeNil())
	})

	ginkgo.It("should reject a malformed body", func() {
		rec := post(`{`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
	})
})
