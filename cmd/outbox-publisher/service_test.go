package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const workflowTopic = "ml-workflow-events"

func TestProcessBatchRetriesFailureAndPublishesTheRest(t *testing.T) {
	first := changeRequestEvent(t, enums.EventChangeRequestCreated, 0)
	second := changeRequestEvent(t, enums.EventChangeRequestApproved, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	reg := prometheus.NewRegistry()
	service := newTestService(t, testDeps{
		repo:     repo,
		pub:      pub,
		registry: &fakeRegistry{topic: workflowTopic},
		metrics:  metrics.NewOutboxMetrics(reg),
	})

	claimed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if claimed != 2 {
		t.Fatalf("expected 2 claimed rows, got %d", claimed)
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second row marked published, got %v", repo.published)
	}
	if len(repo.terminal) != 0 {
		t.Fatalf("transient failure must not be terminal")
	}

	if got := deliveryCount(t, reg, string(enums.EventChangeRequestApproved), metrics.OutboxOutcomePublished); got != 1 {
		t.Fatalf("expected one published delivery, got %f", got)
	}
	if got := deliveryCount(t, reg, string(enums.EventChangeRequestCreated), metrics.OutboxOutcomeRetry); got != 1 {
		t.Fatalf("expected one retried delivery, got %f", got)
	}
}

func TestProcessBatchSetsMessageAttributes(t *testing.T) {
	event := changeRequestEvent(t, enums.EventChangeRequestRejected, 0)
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, testDeps{
		repo:     &fakeRepo{events: []models.OutboxEvent{event}},
		pub:      pub,
		registry: &fakeRegistry{topic: workflowTopic},
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatalf("message data must be the stored envelope")
	}
	want := map[string]string{
		"event_id":       event.ID.String(),
		"event_type":     string(enums.EventChangeRequestRejected),
		"aggregate_type": string(enums.AggregateChangeRequest),
		"aggregate_id":   event.AggregateID.String(),
	}
	for k, v := range want {
		if msg.Attributes[k] != v {
			t.Fatalf("attribute %s: want %q got %q", k, v, msg.Attributes[k])
		}
	}
	if msg.Attributes["occurred_at"] == "" {
		t.Fatalf("expected occurred_at attribute")
	}
}

func TestProcessBatchDeadLettersUnresolvableEvent(t *testing.T) {
	event := changeRequestEvent(t, enums.EventChangeRequestCreated, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, testDeps{
		repo:     repo,
		pub:      &fakePublisher{},
		registry: &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))},
		dlq:      dlq,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if entry.ErrorMessage == nil || *entry.ErrorMessage != "invalid payload" {
		t.Fatalf("unexpected error message: %v", entry.ErrorMessage)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected row marked terminal")
	}
}

func TestProcessBatchMarksUnknownEventTypesUnroutable(t *testing.T) {
	event := changeRequestEvent(t, enums.EventChangeRequestCreated, 0)
	dlq := &fakeDLQRepo{}
	service := newTestService(t, testDeps{
		repo:     &fakeRepo{events: []models.OutboxEvent{event}},
		pub:      &fakePublisher{},
		registry: &fakeRegistry{err: registry.NewNonRetryableError(fmt.Errorf("%w entry_archived", registry.ErrUnsupportedEventType))},
		dlq:      dlq,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonUnroutable {
		t.Fatalf("expected unroutable dlq entry, got %+v", dlq.entries)
	}
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	event := changeRequestEvent(t, enums.EventPaymentConfirmationApproved, 1)
	event.AggregateType = enums.AggregatePaymentConfirmation
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, testDeps{
		repo:     repo,
		pub:      &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("unavailable")}}},
		registry: &fakeRegistry{topic: workflowTopic},
		dlq:      dlq,
		outbox:   &config.OutboxConfig{BatchSize: 1, PollIntervalMS: 100, MaxAttempts: 2},
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	if dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlq.entries[0].ErrorReason)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal row must not also be marked failed")
	}
}

func TestProcessBatchDeadLettersWhenTopicHasNoPublisher(t *testing.T) {
	event := changeRequestEvent(t, enums.EventChangeRequestCreated, 0)
	dlq := &fakeDLQRepo{}
	service := newTestService(t, testDeps{
		repo:     &fakeRepo{events: []models.OutboxEvent{event}},
		registry: &fakeRegistry{topic: workflowTopic},
		dlq:      dlq,
	})
	service.newPublisher = func(string) publisher { return nil }

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonUnroutable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
}

func TestPublisherIsCachedPerTopicAndStopped(t *testing.T) {
	events := []models.OutboxEvent{
		changeRequestEvent(t, enums.EventChangeRequestCreated, 0),
		changeRequestEvent(t, enums.EventChangeRequestApproved, 0),
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	service := newTestService(t, testDeps{
		repo:     &fakeRepo{events: events},
		pub:      pub,
		registry: &fakeRegistry{topic: workflowTopic},
	})
	created := 0
	service.newPublisher = func(topic string) publisher {
		if topic != workflowTopic {
			t.Fatalf("unexpected topic %q", topic)
		}
		created++
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected one publisher for the topic, got %d", created)
	}

	service.stopPublishers()
	if !pub.stopped {
		t.Fatalf("expected publisher to be stopped")
	}
	if len(service.publishers) != 0 {
		t.Fatalf("expected publisher cache cleared")
	}
}

func TestProcessBatchPropagatesMarkFailure(t *testing.T) {
	event := changeRequestEvent(t, enums.EventChangeRequestCreated, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}, markErr: errors.New("db down")}
	service := newTestService(t, testDeps{
		repo:     repo,
		pub:      &fakePublisher{results: []publishResult{fakePublishResult{}}},
		registry: &fakeRegistry{topic: workflowTopic},
	})

	if _, err := service.processBatch(context.Background()); err == nil {
		t.Fatalf("expected mark failure to abort the batch")
	}
}

func TestNewServiceRequiresDLQRepository(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: &fakeRepo{},
		Registry:   &fakeRegistry{},
	})
	if err == nil {
		t.Fatalf("expected error without dlq repository")
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	service := newTestService(t, testDeps{outbox: &config.OutboxConfig{}})
	if service.batchSize != defaultBatchSize {
		t.Fatalf("expected default batch size, got %d", service.batchSize)
	}
	if service.maxAttempts != defaultMaxAttempts {
		t.Fatalf("expected default max attempts, got %d", service.maxAttempts)
	}
	if service.pollInterval != defaultPollMs*time.Millisecond {
		t.Fatalf("expected default poll interval, got %s", service.pollInterval)
	}
}

type testDeps struct {
	repo     *fakeRepo
	pub      *fakePublisher
	registry *fakeRegistry
	dlq      *fakeDLQRepo
	outbox   *config.OutboxConfig
	metrics  *metrics.OutboxMetrics
}

func newTestService(t *testing.T, deps testDeps) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if deps.outbox != nil {
		outboxCfg = *deps.outbox
	}
	if deps.repo == nil {
		deps.repo = &fakeRepo{}
	}
	if deps.registry == nil {
		deps.registry = &fakeRegistry{topic: workflowTopic}
	}
	if deps.dlq == nil {
		deps.dlq = &fakeDLQRepo{}
	}
	pub := deps.pub
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       deps.repo,
		Registry:         deps.registry,
		DLQRepository:    deps.dlq,
		Metrics:          deps.metrics,
		PublisherFactory: func(string) publisher {
			if pub == nil {
				return nil
			}
			return pub
		},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func changeRequestEvent(tb testing.TB, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	tb.Helper()
	id := uuid.New()
	data, err := json.Marshal(payloads.ChangeRequestEvent{
		RequestID: id,
		Kind:      enums.ChangeRequestKindDelete,
		Status:    enums.RequestStatusPending,
	})
	if err != nil {
		tb.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateChangeRequest,
		AggregateID:   id,
		Payload:       env,
		AttemptCount:  attempts,
	}
}

func deliveryCount(t *testing.T, reg *prometheus.Registry, eventType, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "marketledger_outbox_deliveries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["event_type"] == eventType && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("no delivery counter for %s/%s", eventType, outcome)
	return 0
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeRepo) FetchUnpublishedForPublish(_ *gorm.DB, _, _ int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
	stopped bool
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func (f *fakePublisher) Stop() { f.stopped = true }

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	topic string
	err   error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         f.topic,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    event.ID.String(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.ChangeRequestEvent{},
	}, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
