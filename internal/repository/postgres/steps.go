package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/repository"
)

// StepRepository implements port.StepRepository backed by PostgreSQL.
type StepRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewStepRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewStepRepository(exec pgExecutor) *StepRepository {
	return &StepRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var stepColumns = []string{
	"provider_id",
	"step_number",
	"status",
	"data",
	"validation_errors",
	"locked_by_session",
	"locked_at",
	"lock_expires_at",
	"started_at",
	"completed_at",
	"failed_at",
	"retry_count",
	"max_retries",
	"completed_via_submission",
	"updated_at",
}

// Get fetches one step progress row by provider and step number.
func (r *StepRepository) Get(ctx context.Context, providerID string, step domain.StepNumber) (*domain.StepProgress, error) {
	stmt, args, err := r.builder.
		Select(stepColumns...).
		From("onboarding.step_progress").
		Where(squirrel.Eq{"provider_id": providerID, "step_number": int(step)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select step sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	progress, err := scanStepProgress(row)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan step progress: %w", err)
	}
	return progress, nil
}

// ListByProvider retrieves all step rows for a provider ordered by step number.
func (r *StepRepository) ListByProvider(ctx context.Context, providerID string) ([]domain.StepProgress, error) {
	stmt, args, err := r.builder.
		Select(stepColumns...).
		From("onboarding.step_progress").
		Where(squirrel.Eq{"provider_id": providerID}).
		OrderBy("step_number ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list steps sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query step progress: %w", err)
	}
	defer rows.Close()

	result := make([]domain.StepProgress, 0)
	for rows.Next() {
		progress, err := scanStepProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step progress: %w", err)
		}
		result = append(result, *progress)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step progress: %w", err)
	}

	return result, nil
}

// Upsert persists the step row, overwriting an existing row for the same
// (provider, step) key.
func (r *StepRepository) Upsert(ctx context.Context, progress domain.StepProgress) error {
	data, err := domain.EncodeStepData(progress.Data)
	if err != nil {
		return err
	}
	validationErrors, err := marshalJSON(progress.ValidationErrors)
	if err != nil {
		return err
	}

	var lockedBy any
	var lockedAt, lockExpiresAt any
	if progress.Lock != nil {
		lockedBy = progress.Lock.LockedBySession
		lockedAt = progress.Lock.LockedAt.UTC()
		lockExpiresAt = progress.Lock.LockExpiresAt.UTC()
	}

	stmt, args, err := r.builder.Insert("onboarding.step_progress").
		Columns(stepColumns...).
		Values(
			progress.ProviderID,
			int(progress.StepNumber),
			string(progress.Status),
			data,
			validationErrors,
			lockedBy,
			lockedAt,
			lockExpiresAt,
			optionalTime(progress.StartedAt),
			optionalTime(progress.CompletedAt),
			optionalTime(progress.FailedAt),
			progress.RetryCount,
			progress.MaxRetries,
			progress.CompletedViaSubmission,
			time.Now().UTC(),
		).
		Suffix(`ON CONFLICT (provider_id, step_number) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			validation_errors = EXCLUDED.validation_errors,
			locked_by_session = EXCLUDED.locked_by_session,
			locked_at = EXCLUDED.locked_at,
			lock_expires_at = EXCLUDED.lock_expires_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			failed_at = EXCLUDED.failed_at,
			retry_count = EXCLUDED.retry_count,
			max_retries = EXCLUDED.max_retries,
			completed_via_submission = EXCLUDED.completed_via_submission,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert step sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert step progress: %w", err)
	}
	return nil
}

// SetLock writes or clears the lock columns for a step row.
func (r *StepRepository) SetLock(ctx context.Context, providerID string, step domain.StepNumber, lock *domain.StepLock) error {
	update := r.builder.Update("onboarding.step_progress").
		Where(squirrel.Eq{"provider_id": providerID, "step_number": int(step)})

	if lock == nil {
		update = update.
			Set("locked_by_session", nil).
			Set("locked_at", nil).
			Set("lock_expires_at", nil)
	} else {
		update = update.
			Set("locked_by_session", lock.LockedBySession).
			Set("locked_at", lock.LockedAt.UTC()).
			Set("lock_expires_at", lock.LockExpiresAt.UTC())
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build set lock sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set step lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ClearExpiredLocks wipes lock columns on rows whose lock expiry has passed.
func (r *StepRepository) ClearExpiredLocks(ctx context.Context, before time.Time) (int, error) {
	stmt := `
        UPDATE onboarding.step_progress
           SET locked_by_session = NULL,
               locked_at = NULL,
               lock_expires_at = NULL
         WHERE lock_expires_at IS NOT NULL
           AND lock_expires_at < $1
    `
	tag, err := r.exec.Exec(ctx, stmt, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("clear expired step locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanStepProgress(row pgx.Row) (*domain.StepProgress, error) {
	var (
		progress        domain.StepProgress
		stepNumber      int
		status          string
		rawData         []byte
		rawValidation   []byte
		lockedBySession sql.NullString
		lockedAt        sql.NullTime
		lockExpiresAt   sql.NullTime
		startedAt       sql.NullTime
		completedAt     sql.NullTime
		failedAt        sql.NullTime
	)

	if err := row.Scan(
		&progress.ProviderID,
		&stepNumber,
		&status,
		&rawData,
		&rawValidation,
		&lockedBySession,
		&lockedAt,
		&lockExpiresAt,
		&startedAt,
		&completedAt,
		&failedAt,
		&progress.RetryCount,
		&progress.MaxRetries,
		&progress.CompletedViaSubmission,
		new(time.Time),
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	progress.StepNumber = domain.StepNumber(stepNumber)
	progress.Status = domain.StepStatus(status)

	data, err := domain.DecodeStepData(progress.StepNumber, rawData)
	if err != nil {
		return nil, err
	}
	progress.Data = data

	validationErrors, err := unmarshalStringSlice(rawValidation)
	if err != nil {
		return nil, err
	}
	progress.ValidationErrors = validationErrors

	if session := nullableStringPtr(lockedBySession); session != nil {
		lock := domain.StepLock{LockedBySession: *session}
		if lockedAt.Valid {
			lock.LockedAt = lockedAt.Time.UTC()
		}
		if lockExpiresAt.Valid {
			lock.LockExpiresAt = lockExpiresAt.Time.UTC()
		}
		progress.Lock = &lock
	}

	progress.StartedAt = nullableTimePtr(startedAt)
	progress.CompletedAt = nullableTimePtr(completedAt)
	progress.FailedAt = nullableTimePtr(failedAt)

	return &progress, nil
}

var (
	_ port.StepRepository = (*StepRepository)(nil)
	_ pgExecutor          = (*pgxpool.Pool)(nil)
)
