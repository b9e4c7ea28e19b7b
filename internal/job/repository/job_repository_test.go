package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	integrationdomain "touchbase-backend/internal/integration/domain"
	"touchbase-backend/internal/job/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&domain.SyncJob{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newJob(userID string, runAt time.Time) *domain.SyncJob {
	return &domain.SyncJob{
		ID:          uuid.New().String(),
		JobKey:      domain.JobKey(userID, integrationdomain.ProviderGoogleCalendar),
		UserID:      userID,
		Provider:    integrationdomain.ProviderGoogleCalendar,
		Mode:        "incremental",
		Status:      domain.StatusPending,
		MaxAttempts: 3,
		RunAt:       runAt,
	}
}

func TestEnqueueSingleFlight(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	now := time.Now()

	first, created, err := repo.Enqueue(newJob("user-1", now))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !created {
		t.Fatal("first enqueue should create")
	}

	second, created, err := repo.Enqueue(newJob("user-1", now))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if created {
		t.Error("second enqueue for the same key must not create")
	}
	if second.ID != first.ID {
		t.Errorf("second enqueue returned job %s, want existing %s", second.ID, first.ID)
	}

	// a different account gets its own job
	_, created, err = repo.Enqueue(newJob("user-2", now))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !created {
		t.Error("different key should create a new job")
	}

	// once the live job finishes, the key is free again
	first.Status = domain.StatusCompleted
	if err := repo.Update(first); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_, created, err = repo.Enqueue(newJob("user-1", now))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !created {
		t.Error("finished job should no longer block its key")
	}
}

func TestClaimDue(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	now := time.Now()

	if _, _, err := repo.Enqueue(newJob("user-later", now.Add(time.Minute))); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// nothing is due yet
	job, err := repo.ClaimDue(now)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if job != nil {
		t.Fatalf("claimed a job scheduled in the future: %+v", job)
	}

	due := newJob("user-due", now.Add(-time.Second))
	if _, _, err := repo.Enqueue(due); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err = repo.ClaimDue(now)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if job == nil || job.ID != due.ID {
		t.Fatalf("claimed %+v, want %s", job, due.ID)
	}
	if job.Status != domain.StatusRunning {
		t.Errorf("status = %s, want running", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", job.Attempts)
	}
	if job.StartedAt == nil {
		t.Error("StartedAt not set")
	}

	// the same job is not handed out twice
	again, err := repo.ClaimDue(now)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if again != nil {
		t.Errorf("claimed an already-running job: %+v", again)
	}
}

func TestUpdateProgress(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))

	job := newJob("user-1", time.Now())
	if _, _, err := repo.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := repo.UpdateProgress(job.ID, 10, 4, 6, 2); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	got, err := repo.GetByID(job.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Synced != 10 || got.Added != 4 || got.Updated != 6 || got.Skipped != 2 {
		t.Errorf("progress = %+v", got)
	}
}

func TestFailStale(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	now := time.Now()

	stale := newJob("user-stale", now.Add(-2*time.Hour))
	if _, _, err := repo.Enqueue(stale); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	startedLongAgo := now.Add(-2 * time.Hour)
	stale.Status = domain.StatusRunning
	stale.StartedAt = &startedLongAgo
	if err := repo.Update(stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fresh := newJob("user-fresh", now)
	if _, _, err := repo.Enqueue(fresh); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	startedJustNow := now.Add(-time.Minute)
	fresh.Status = domain.StatusRunning
	fresh.StartedAt = &startedJustNow
	if err := repo.Update(fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// queued before the deadline but never picked up
	forgotten := newJob("user-forgotten", now.Add(-3*time.Hour))
	if _, _, err := repo.Enqueue(forgotten); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	failed, err := repo.FailStale(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}

	got, _ := repo.GetByID(stale.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("stale job status = %s, want failed", got.Status)
	}
	if got.LastError == "" {
		t.Error("stale job should record why it failed")
	}

	got, _ = repo.GetByID(fresh.ID)
	if got.Status != domain.StatusRunning {
		t.Errorf("fresh job status = %s, want running", got.Status)
	}

	got, _ = repo.GetByID(forgotten.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("forgotten pending job status = %s, want failed", got.Status)
	}

	// the failed key is free for a new run
	live, err := repo.GetLiveByKey(stale.JobKey)
	if err != nil {
		t.Fatalf("GetLiveByKey: %v", err)
	}
	if live != nil {
		t.Errorf("key still occupied: %+v", live)
	}
}
