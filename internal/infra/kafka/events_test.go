package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer()

	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg:      config.KafkaSettings{},
		errChan:  make(chan error, 1),
		done:     make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "provider-verification",
		Env:  "test",
	}, zaptest.NewLogger(t))

	return publisher, asyncProducer
}

func TestPublishStepCompleted(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	completedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := domain.StepCompletedEvent{
		EventID:         "event-123",
		ProviderID:      "provider-1",
		SessionID:       "sess-1",
		StepNumber:      domain.StepSelfie,
		StepName:        "selfie",
		CompletedAt:     completedAt,
		ViaSubmission:   false,
		ProgressPercent: 25,
	}

	if err := publisher.PublishStepCompleted(context.Background(), event); err != nil {
		t.Fatalf("PublishStepCompleted returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "onboarding.step.completed" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil {
			t.Fatalf("Key.Encode returned error: %v", err)
		}
		if string(key) != event.ProviderID {
			t.Fatalf("message key = %q, want provider id", key)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "onboarding.step.completed" {
			t.Fatalf("unexpected event_type: %v", got)
		}
		if got := envelope["event_id"]; got != event.EventID {
			t.Fatalf("unexpected event_id: %v", got)
		}
		if got := envelope["provider_id"]; got != event.ProviderID {
			t.Fatalf("unexpected provider_id: %v", got)
		}
		if got := envelope["version"]; got != schemaVersion {
			t.Fatalf("unexpected schema version: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
		}
		if timestamp != completedAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %s", timestamp)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}
		if got := payload["step_name"]; got != "selfie" {
			t.Fatalf("unexpected step_name: %v", got)
		}
		stepNumber, ok := payload["step_number"].(float64)
		if !ok || int(stepNumber) != int(domain.StepSelfie) {
			t.Fatalf("unexpected step_number: %v", payload["step_number"])
		}
		percent, ok := payload["progress_percent"].(float64)
		if !ok || percent != 25 {
			t.Fatalf("unexpected progress_percent: %v", payload["progress_percent"])
		}
		if via, _ := payload["via_submission"].(bool); via {
			t.Fatal("via_submission should be false")
		}

		metadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
		}
		if metadata["service"] != "provider-verification" {
			t.Fatalf("unexpected metadata service: %v", metadata["service"])
		}
		if metadata["environment"] != "test" {
			t.Fatalf("unexpected metadata environment: %v", metadata["environment"])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishOnboardingSubmittedUsesTopicPrefix(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)
	publisher.producer.cfg.TopicPrefix = "marketplace"

	submittedAt := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	event := domain.OnboardingSubmittedEvent{
		EventID:            "event-456",
		ProviderID:         "provider-1",
		SessionID:          "sess-1",
		SubmittedAt:        submittedAt,
		StepsCompletedLate: []domain.StepNumber{domain.StepBusinessInfo, domain.StepPortfolio},
		VerificationStatus: domain.VerificationSubmitted,
	}

	if err := publisher.PublishOnboardingSubmitted(context.Background(), event); err != nil {
		t.Fatalf("PublishOnboardingSubmitted returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "marketplace.onboarding.submitted" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}
		if got := payload["verification_status"]; got != string(domain.VerificationSubmitted) {
			t.Fatalf("unexpected verification_status: %v", got)
		}

		late, ok := payload["steps_completed_late"].([]any)
		if !ok || len(late) != 2 {
			t.Fatalf("unexpected steps_completed_late: %v", payload["steps_completed_late"])
		}
		if int(late[0].(float64)) != int(domain.StepBusinessInfo) || int(late[1].(float64)) != int(domain.StepPortfolio) {
			t.Fatalf("steps_completed_late out of order: %v", late)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestProducerConfigHonorsAsyncFlag(t *testing.T) {
	batched := producerConfig(config.KafkaSettings{Async: true})
	if batched.Producer.RequiredAcks != sarama.WaitForLocal {
		t.Fatalf("async acks = %v, want WaitForLocal", batched.Producer.RequiredAcks)
	}
	if batched.Producer.Flush.Messages != 100 || batched.Producer.Flush.Frequency == 0 {
		t.Fatalf("async flush = (%d msgs, %v), want batched", batched.Producer.Flush.Messages, batched.Producer.Flush.Frequency)
	}

	perMessage := producerConfig(config.KafkaSettings{Async: false})
	if perMessage.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("sync acks = %v, want WaitForAll", perMessage.Producer.RequiredAcks)
	}
	if perMessage.Producer.Flush.Messages != 1 {
		t.Fatalf("sync flush = %d msgs, want per-message", perMessage.Producer.Flush.Messages)
	}
}
