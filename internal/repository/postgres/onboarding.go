package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/repository"
)

// OnboardingRepository implements port.OnboardingRepository backed by PostgreSQL.
type OnboardingRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewOnboardingRepository constructs the repository.
func NewOnboardingRepository(exec pgExecutor) *OnboardingRepository {
	return &OnboardingRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var onboardingColumns = []string{
	"provider_id",
	"current_step",
	"completed_steps",
	"verification_status",
	"current_session_id",
	"started_at",
	"submitted_at",
	"completed_at",
	"approved_at",
	"rejected_at",
	"stripe_validation_status",
	"stripe_validation_errors",
	"notification_preferences",
	"updated_at",
}

// Get fetches the provider's aggregate onboarding record.
func (r *OnboardingRepository) Get(ctx context.Context, providerID string) (*domain.OnboardingProgress, error) {
	stmt, args, err := r.builder.
		Select(onboardingColumns...).
		From("onboarding.progress").
		Where(squirrel.Eq{"provider_id": providerID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select onboarding sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	progress, err := scanOnboardingProgress(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan onboarding progress: %w", err)
	}
	return progress, nil
}

// Upsert writes the full aggregate record, replacing an existing row.
func (r *OnboardingRepository) Upsert(ctx context.Context, progress domain.OnboardingProgress) error {
	completedSteps, err := marshalJSON(stepNumbersToInts(progress.CompletedSteps))
	if err != nil {
		return err
	}
	stripeErrors, err := marshalJSON(progress.StripeValidationErrors)
	if err != nil {
		return err
	}
	notificationPrefs, err := marshalJSON(progress.NotificationPreferences)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("onboarding.progress").
		Columns(onboardingColumns...).
		Values(
			progress.ProviderID,
			int(progress.CurrentStep),
			completedSteps,
			string(progress.VerificationStatus),
			optionalString(progress.CurrentSessionID),
			optionalTime(progress.StartedAt),
			optionalTime(progress.SubmittedAt),
			optionalTime(progress.CompletedAt),
			optionalTime(progress.ApprovedAt),
			optionalTime(progress.RejectedAt),
			progress.StripeValidationStatus,
			stripeErrors,
			notificationPrefs,
			time.Now().UTC(),
		).
		Suffix(`ON CONFLICT (provider_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			completed_steps = EXCLUDED.completed_steps,
			verification_status = EXCLUDED.verification_status,
			current_session_id = EXCLUDED.current_session_id,
			started_at = EXCLUDED.started_at,
			submitted_at = EXCLUDED.submitted_at,
			completed_at = EXCLUDED.completed_at,
			approved_at = EXCLUDED.approved_at,
			rejected_at = EXCLUDED.rejected_at,
			stripe_validation_status = EXCLUDED.stripe_validation_status,
			stripe_validation_errors = EXCLUDED.stripe_validation_errors,
			notification_preferences = EXCLUDED.notification_preferences,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert onboarding sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert onboarding progress: %w", err)
	}
	return nil
}

// SetStripeValidation stores the latest payment-account validation outcome
// without touching the rest of the record.
func (r *OnboardingRepository) SetStripeValidation(ctx context.Context, providerID, status string, validationErrors []string) error {
	payload, err := marshalJSON(validationErrors)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update("onboarding.progress").
		Set("stripe_validation_status", status).
		Set("stripe_validation_errors", payload).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"provider_id": providerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build stripe validation sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set stripe validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanOnboardingProgress(row pgx.Row) (*domain.OnboardingProgress, error) {
	var (
		progress         domain.OnboardingProgress
		currentStep      int
		rawCompleted     []byte
		status           string
		currentSessionID sql.NullString
		startedAt        sql.NullTime
		submittedAt      sql.NullTime
		completedAt      sql.NullTime
		approvedAt       sql.NullTime
		rejectedAt       sql.NullTime
		rawStripeErrors  []byte
		rawNotifications []byte
	)

	if err := row.Scan(
		&progress.ProviderID,
		&currentStep,
		&rawCompleted,
		&status,
		&currentSessionID,
		&startedAt,
		&submittedAt,
		&completedAt,
		&approvedAt,
		&rejectedAt,
		&progress.StripeValidationStatus,
		&rawStripeErrors,
		&rawNotifications,
		&progress.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	progress.CurrentStep = domain.StepNumber(currentStep)
	progress.VerificationStatus = domain.VerificationStatus(status)
	progress.CurrentSessionID = nullableStringPtr(currentSessionID)
	progress.StartedAt = nullableTimePtr(startedAt)
	progress.SubmittedAt = nullableTimePtr(submittedAt)
	progress.CompletedAt = nullableTimePtr(completedAt)
	progress.ApprovedAt = nullableTimePtr(approvedAt)
	progress.RejectedAt = nullableTimePtr(rejectedAt)
	progress.UpdatedAt = progress.UpdatedAt.UTC()

	if len(rawCompleted) > 0 {
		var values []int
		if err := json.Unmarshal(rawCompleted, &values); err != nil {
			return nil, fmt.Errorf("unmarshal completed steps: %w", err)
		}
		progress.CompletedSteps = make([]domain.StepNumber, 0, len(values))
		for _, v := range values {
			progress.CompletedSteps = append(progress.CompletedSteps, domain.StepNumber(v))
		}
	}

	stripeErrors, err := unmarshalStringSlice(rawStripeErrors)
	if err != nil {
		return nil, err
	}
	progress.StripeValidationErrors = stripeErrors

	if len(rawNotifications) > 0 {
		if err := json.Unmarshal(rawNotifications, &progress.NotificationPreferences); err != nil {
			return nil, fmt.Errorf("unmarshal notification preferences: %w", err)
		}
	}

	return &progress, nil
}

func stepNumbersToInts(steps []domain.StepNumber) []int {
	if steps == nil {
		return nil
	}
	values := make([]int, 0, len(steps))
	for _, s := range steps {
		values = append(values, int(s))
	}
	return values
}

var _ port.OnboardingRepository = (*OnboardingRepository)(nil)
