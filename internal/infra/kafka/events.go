package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	ProviderID string           `json:"provider_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Version    string           `json:"version"`
	Payload    any              `json:"payload"`
	Metadata   envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, providerID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:    id,
		EventType:  eventType,
		ProviderID: providerID,
		Timestamp:  ts.UTC(),
		Version:    schemaVersion,
		Payload:    payload,
		Metadata:   metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(providerID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSessionStarted publishes onboarding.session.started events.
func (p *EventPublisher) PublishSessionStarted(ctx context.Context, event domain.SessionStartedEvent) error {
	payload := struct {
		SessionID         string         `json:"session_id"`
		ProviderID        string         `json:"provider_id"`
		DeviceFingerprint *string        `json:"device_fingerprint,omitempty"`
		StartedAt         time.Time      `json:"started_at"`
		ExpiresAt         time.Time      `json:"expires_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		SessionID:         event.SessionID,
		ProviderID:        event.ProviderID,
		DeviceFingerprint: event.DeviceFingerprint,
		StartedAt:         event.StartedAt.UTC(),
		ExpiresAt:         event.ExpiresAt.UTC(),
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, "onboarding.session.started", event.ProviderID, event.StartedAt, payload)
}

// PublishSessionEnded publishes onboarding.session.ended events.
func (p *EventPublisher) PublishSessionEnded(ctx context.Context, event domain.SessionEndedEvent) error {
	payload := struct {
		SessionID  string         `json:"session_id"`
		ProviderID string         `json:"provider_id"`
		EndedAt    time.Time      `json:"ended_at"`
		Reason     string         `json:"reason"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		SessionID:  event.SessionID,
		ProviderID: event.ProviderID,
		EndedAt:    event.EndedAt.UTC(),
		Reason:     event.Reason,
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "onboarding.session.ended", event.ProviderID, event.EndedAt, payload)
}

// PublishStepCompleted publishes onboarding.step.completed events.
func (p *EventPublisher) PublishStepCompleted(ctx context.Context, event domain.StepCompletedEvent) error {
	payload := struct {
		ProviderID      string         `json:"provider_id"`
		SessionID       string         `json:"session_id,omitempty"`
		StepNumber      int            `json:"step_number"`
		StepName        string         `json:"step_name"`
		CompletedAt     time.Time      `json:"completed_at"`
		ViaSubmission   bool           `json:"via_submission"`
		ProgressPercent float64        `json:"progress_percent"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		ProviderID:      event.ProviderID,
		SessionID:       event.SessionID,
		StepNumber:      int(event.StepNumber),
		StepName:        event.StepName,
		CompletedAt:     event.CompletedAt.UTC(),
		ViaSubmission:   event.ViaSubmission,
		ProgressPercent: event.ProgressPercent,
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, "onboarding.step.completed", event.ProviderID, event.CompletedAt, payload)
}

// PublishStepLockContended publishes onboarding.step.lock_contended events.
func (p *EventPublisher) PublishStepLockContended(ctx context.Context, event domain.StepLockContendedEvent) error {
	payload := struct {
		ProviderID    string         `json:"provider_id"`
		StepNumber    int            `json:"step_number"`
		RequestedBy   string         `json:"requested_by"`
		HeldBy        string         `json:"held_by"`
		LockExpiresAt time.Time      `json:"lock_expires_at"`
		ContendedAt   time.Time      `json:"contended_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		ProviderID:    event.ProviderID,
		StepNumber:    int(event.StepNumber),
		RequestedBy:   event.RequestedBy,
		HeldBy:        event.HeldBy,
		LockExpiresAt: event.LockExpiresAt.UTC(),
		ContendedAt:   event.ContendedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "onboarding.step.lock_contended", event.ProviderID, event.ContendedAt, payload)
}

// PublishOnboardingSubmitted publishes onboarding.submitted events.
func (p *EventPublisher) PublishOnboardingSubmitted(ctx context.Context, event domain.OnboardingSubmittedEvent) error {
	late := make([]int, 0, len(event.StepsCompletedLate))
	for _, step := range event.StepsCompletedLate {
		late = append(late, int(step))
	}

	payload := struct {
		ProviderID         string         `json:"provider_id"`
		SessionID          string         `json:"session_id,omitempty"`
		SubmittedAt        time.Time      `json:"submitted_at"`
		StepsCompletedLate []int          `json:"steps_completed_late,omitempty"`
		VerificationStatus string         `json:"verification_status"`
		Metadata           map[string]any `json:"metadata,omitempty"`
	}{
		ProviderID:         event.ProviderID,
		SessionID:          event.SessionID,
		SubmittedAt:        event.SubmittedAt.UTC(),
		StepsCompletedLate: late,
		VerificationStatus: string(event.VerificationStatus),
		Metadata:           event.Metadata,
	}

	return p.publish(ctx, event.EventID, "onboarding.submitted", event.ProviderID, event.SubmittedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
