package worker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	integrationdomain "touchbase-backend/internal/integration/domain"
	integrationusecase "touchbase-backend/internal/integration/usecase"
	"touchbase-backend/internal/job/domain"
	"touchbase-backend/internal/job/repository"
)

func newTestPool(t *testing.T) (*Pool, repository.JobRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&domain.SyncJob{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	jobRepo := repository.NewJobRepository(db)
	return NewPool(jobRepo, nil, nil, 1, time.Minute), jobRepo
}

func seedRunning(t *testing.T, jobRepo repository.JobRepository, attempts int) *domain.SyncJob {
	t.Helper()
	now := time.Now()
	job := &domain.SyncJob{
		ID:          uuid.New().String(),
		JobKey:      domain.JobKey("user-1", integrationdomain.ProviderGmail),
		UserID:      "user-1",
		Provider:    integrationdomain.ProviderGmail,
		Mode:        "incremental",
		Status:      domain.StatusRunning,
		Attempts:    attempts,
		MaxAttempts: 3,
		RunAt:       now,
		StartedAt:   &now,
	}
	if _, _, err := jobRepo.Enqueue(job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func TestHandleFailureReschedulesWithBackoff(t *testing.T) {
	pool, jobRepo := newTestPool(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return base }

	cases := []struct {
		attempts  int
		wantDelay time.Duration
	}{
		{attempts: 1, wantDelay: 30 * time.Second},
		{attempts: 2, wantDelay: 60 * time.Second},
	}

	for _, tc := range cases {
		job := seedRunning(t, jobRepo, tc.attempts)
		pool.handleFailure(0, job, errors.New("provider unavailable"))

		got, err := jobRepo.GetByID(job.ID)
		if err != nil || got == nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != domain.StatusPending {
			t.Errorf("attempt %d: status = %s, want pending", tc.attempts, got.Status)
		}
		if !got.RunAt.Equal(base.Add(tc.wantDelay)) {
			t.Errorf("attempt %d: RunAt = %s, want +%s", tc.attempts, got.RunAt, tc.wantDelay)
		}
		if got.LastError == "" {
			t.Errorf("attempt %d: LastError empty", tc.attempts)
		}

		// free the key for the next case
		got.Status = domain.StatusFailed
		if err := jobRepo.Update(got); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
}

func TestHandleFailureExhaustsAttempts(t *testing.T) {
	pool, jobRepo := newTestPool(t)

	job := seedRunning(t, jobRepo, 3)
	pool.handleFailure(0, job, errors.New("provider unavailable"))

	got, err := jobRepo.GetByID(job.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed after final attempt", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestHandleFailureReconnectIsNotRetried(t *testing.T) {
	pool, jobRepo := newTestPool(t)

	job := seedRunning(t, jobRepo, 1)
	pool.handleFailure(0, job, fmt.Errorf("gmail: %w", integrationusecase.ErrReconnectRequired))

	got, err := jobRepo.GetByID(job.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed; reauthorization cannot be retried away", got.Status)
	}
}
