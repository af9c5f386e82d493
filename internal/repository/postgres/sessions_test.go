package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/taskbridge/provider-verification/internal/core/domain"
	"github.com/taskbridge/provider-verification/internal/repository"
)

func TestSessionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	createdAt := time.Now().UTC()
	fingerprint := "device-abc"
	session := domain.VerificationSession{
		ID:                "sess-1",
		ProviderID:        "provider-1",
		DeviceFingerprint: &fingerprint,
		CreatedAt:         createdAt,
		ExpiresAt:         createdAt.Add(24 * time.Hour),
		LastActivityAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO onboarding\.sessions`).
		WithArgs(
			session.ID,
			session.ProviderID,
			fingerprint,
			session.CreatedAt,
			session.ExpiresAt,
			session.LastActivityAt,
			nil,
			nil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	createdAt := time.Now().UTC()
	endedAt := createdAt.Add(time.Hour)

	rows := pgxmock.NewRows(sessionColumns).AddRow(
		"sess-1", "provider-1", "device-abc",
		createdAt, createdAt.Add(24*time.Hour), createdAt,
		endedAt, "user_logout",
	)

	mock.ExpectQuery(`SELECT .* FROM onboarding\.sessions`).
		WithArgs("sess-1").
		WillReturnRows(rows)

	session, err := repo.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if session.ID != "sess-1" || session.ProviderID != "provider-1" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.DeviceFingerprint == nil || *session.DeviceFingerprint != "device-abc" {
		t.Fatal("device fingerprint not scanned")
	}
	if session.EndedAt == nil || !session.EndedAt.Equal(endedAt) {
		t.Fatalf("ended_at = %v, want %v", session.EndedAt, endedAt)
	}
	if session.EndReason == nil || *session.EndReason != "user_logout" {
		t.Fatal("end reason not scanned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectQuery(`SELECT .* FROM onboarding\.sessions`).
		WithArgs("sess-missing").
		WillReturnRows(pgxmock.NewRows(sessionColumns))

	if _, err := repo.Get(context.Background(), "sess-missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_TouchGuardsEndedSessions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE onboarding\.sessions`).
		WithArgs(at, "sess-ended").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Touch(context.Background(), "sess-ended", at); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for ended or missing session", err)
	}
}

func TestSessionRepository_ExpireStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	before := time.Now().UTC()
	mock.ExpectExec(`UPDATE onboarding\.sessions`).
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	expired, err := repo.ExpireStale(context.Background(), before)
	if err != nil {
		t.Fatalf("ExpireStale returned error: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expired = %d, want 2", expired)
	}
}
