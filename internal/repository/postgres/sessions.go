package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/repository"
)

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var sessionColumns = []string{
	"id",
	"provider_id",
	"device_fingerprint",
	"created_at",
	"expires_at",
	"last_activity_at",
	"ended_at",
	"end_reason",
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.VerificationSession) error {
	stmt, args, err := r.builder.Insert("onboarding.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.ProviderID,
			optionalString(session.DeviceFingerprint),
			session.CreatedAt.UTC(),
			session.ExpiresAt.UTC(),
			session.LastActivityAt.UTC(),
			optionalTime(session.EndedAt),
			optionalString(session.EndReason),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get fetches one session by id.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.VerificationSession, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("onboarding.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// FindActiveByFingerprint locates the newest non-ended, non-expired session
// for the provider on the given device.
func (r *SessionRepository) FindActiveByFingerprint(ctx context.Context, providerID, fingerprint string) (*domain.VerificationSession, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("onboarding.sessions").
		Where(squirrel.Eq{"provider_id": providerID, "device_fingerprint": fingerprint}).
		Where("ended_at IS NULL").
		Where("expires_at > ?", time.Now().UTC()).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find session sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// Touch bumps the session's last-activity timestamp.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	stmt, args, err := r.builder.Update("onboarding.sessions").
		Set("last_activity_at", at.UTC()).
		Where(squirrel.Eq{"id": sessionID}).
		Where("ended_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// End marks the session as ended with a reason. Ending an already-ended
// session leaves the original end untouched.
func (r *SessionRepository) End(ctx context.Context, sessionID, reason string) error {
	stmt, args, err := r.builder.Update("onboarding.sessions").
		Set("ended_at", time.Now().UTC()).
		Set("end_reason", reason).
		Where(squirrel.Eq{"id": sessionID}).
		Where("ended_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build end session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ExpireStale ends every open session whose expiry has passed. Used by the
// background sweeper.
func (r *SessionRepository) ExpireStale(ctx context.Context, before time.Time) (int, error) {
	stmt := `
        UPDATE onboarding.sessions
           SET ended_at = $1,
               end_reason = 'expired'
         WHERE ended_at IS NULL
           AND expires_at < $1
    `
	tag, err := r.exec.Exec(ctx, stmt, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*domain.VerificationSession, error) {
	var (
		session     domain.VerificationSession
		fingerprint sql.NullString
		endedAt     sql.NullTime
		endReason   sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.ProviderID,
		&fingerprint,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastActivityAt,
		&endedAt,
		&endReason,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	session.CreatedAt = session.CreatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	session.LastActivityAt = session.LastActivityAt.UTC()
	session.DeviceFingerprint = nullableStringPtr(fingerprint)
	session.EndedAt = nullableTimePtr(endedAt)
	session.EndReason = nullableStringPtr(endReason)

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
