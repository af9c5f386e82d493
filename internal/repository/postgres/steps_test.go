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

func TestStepRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStepRepository(mock)

	startedAt := time.Now().UTC().Add(-time.Hour)
	completedAt := time.Now().UTC()

	rows := pgxmock.NewRows(stepColumns).AddRow(
		"provider-1", 2, "completed",
		[]byte(`{"image_path":"provider-1/selfie/face.jpg"}`), nil,
		nil, nil, nil,
		startedAt, completedAt, nil,
		0, 3, false, completedAt,
	)

	mock.ExpectQuery(`SELECT .* FROM onboarding\.step_progress`).
		WithArgs("provider-1", 2).
		WillReturnRows(rows)

	progress, err := repo.Get(context.Background(), "provider-1", domain.StepSelfie)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if progress.StepNumber != domain.StepSelfie || progress.Status != domain.StepCompleted {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	selfie, ok := progress.Data.(domain.SelfieData)
	if !ok {
		t.Fatalf("data decoded as %T, want SelfieData", progress.Data)
	}
	if selfie.ImagePath != "provider-1/selfie/face.jpg" {
		t.Fatalf("image path = %q", selfie.ImagePath)
	}
	if progress.CompletedAt == nil || !progress.CompletedAt.Equal(completedAt) {
		t.Fatalf("completed_at = %v, want %v", progress.CompletedAt, completedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStepRepository_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStepRepository(mock)

	mock.ExpectQuery(`SELECT .* FROM onboarding\.step_progress`).
		WithArgs("provider-1", 4).
		WillReturnRows(pgxmock.NewRows(stepColumns))

	if _, err := repo.Get(context.Background(), "provider-1", domain.StepCategorySelection); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStepRepository_GetScansLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStepRepository(mock)

	lockedAt := time.Now().UTC()
	lockExpires := lockedAt.Add(30 * time.Minute)

	rows := pgxmock.NewRows(stepColumns).AddRow(
		"provider-1", 5, "in_progress",
		nil, nil,
		"sess-1", lockedAt, lockExpires,
		lockedAt, nil, nil,
		0, 3, false, lockedAt,
	)

	mock.ExpectQuery(`SELECT .* FROM onboarding\.step_progress`).
		WithArgs("provider-1", 5).
		WillReturnRows(rows)

	progress, err := repo.Get(context.Background(), "provider-1", domain.StepServices)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if progress.Lock == nil {
		t.Fatal("lock columns not scanned into a lock record")
	}
	if progress.Lock.LockedBySession != "sess-1" || !progress.Lock.LockExpiresAt.Equal(lockExpires) {
		t.Fatalf("lock = %+v", progress.Lock)
	}
}

func TestStepRepository_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStepRepository(mock)

	completedAt := time.Now().UTC()
	progress := domain.StepProgress{
		ProviderID:  "provider-1",
		StepNumber:  domain.StepTerms,
		Status:      domain.StepCompleted,
		Data:        domain.TermsData{Accepted: true, Version: "2025-01"},
		StartedAt:   &completedAt,
		CompletedAt: &completedAt,
		MaxRetries:  3,
	}

	mock.ExpectExec(`INSERT INTO onboarding\.step_progress .* ON CONFLICT \(provider_id, step_number\) DO UPDATE`).
		WithArgs(
			"provider-1", 8, "completed",
			[]byte(`{"accepted":true,"version":"2025-01"}`), []byte(nil),
			nil, nil, nil,
			completedAt, completedAt, nil,
			0, 3, false, pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Upsert(context.Background(), progress); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStepRepository_SetLockNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStepRepository(mock)

	lock := &domain.StepLock{
		LockedBySession: "sess-1",
		LockedAt:        time.Now().UTC(),
		LockExpiresAt:   time.Now().UTC().Add(30 * time.Minute),
	}

	mock.ExpectExec(`UPDATE onboarding\.step_progress`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.SetLock(context.Background(), "provider-1", domain.StepBio, lock); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for a missing row", err)
	}
}

func TestStepRepository_ClearExpiredLocks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewStepRepository(mock)

	before := time.Now().UTC()
	mock.ExpectExec(`UPDATE onboarding\.step_progress`).
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	cleared, err := repo.ClearExpiredLocks(context.Background(), before)
	if err != nil {
		t.Fatalf("ClearExpiredLocks returned error: %v", err)
	}
	if cleared != 3 {
		t.Fatalf("cleared = %d, want 3", cleared)
	}
}
