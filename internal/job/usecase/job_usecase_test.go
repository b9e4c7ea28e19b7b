package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	integrationdomain "touchbase-backend/internal/integration/domain"
	integrationrepo "touchbase-backend/internal/integration/repository"
	"touchbase-backend/internal/job/domain"
	"touchbase-backend/internal/job/repository"
)

func newTestUsecase(t *testing.T) (*JobUsecase, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&integrationdomain.Integration{},
		&integrationdomain.SyncState{},
		&domain.SyncJob{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	uc := NewJobUsecase(
		repository.NewJobRepository(db),
		integrationrepo.NewIntegrationRepository(db),
		integrationrepo.NewSyncStateRepository(db),
	)
	return uc, db
}

func seedAccount(t *testing.T, db *gorm.DB, userID string, provider integrationdomain.ProviderType, active, syncEnabled bool) {
	t.Helper()
	integrationID := uuid.New().String()
	if err := db.Create(&integrationdomain.Integration{
		ID:          integrationID,
		UserID:      userID,
		Provider:    provider,
		AccessToken: "enc",
		IsActive:    active,
	}).Error; err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	// gorm's default:true tag omits an explicit false from the INSERT, so
	// force the column after creation
	if !active {
		if err := db.Model(&integrationdomain.Integration{}).Where("id = ?", integrationID).Update("is_active", false).Error; err != nil {
			t.Fatalf("seed integration active flag: %v", err)
		}
	}
	stateID := uuid.New().String()
	if err := db.Create(&integrationdomain.SyncState{
		ID:       stateID,
		UserID:   userID,
		Provider: provider,
		Enabled:  syncEnabled,
	}).Error; err != nil {
		t.Fatalf("seed sync state: %v", err)
	}
	if !syncEnabled {
		if err := db.Model(&integrationdomain.SyncState{}).Where("id = ?", stateID).Update("enabled", false).Error; err != nil {
			t.Fatalf("seed sync state enabled flag: %v", err)
		}
	}
}

func TestTriggerDeduplicates(t *testing.T) {
	uc, _ := newTestUsecase(t)

	first, created, err := uc.Trigger("user-1", integrationdomain.ProviderGmail, "full", 0)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if !created {
		t.Fatal("first trigger should create a job")
	}
	if first.JobKey != "sync:user-1:mail-gmail" {
		t.Errorf("job key = %q", first.JobKey)
	}
	if first.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", first.MaxAttempts)
	}

	second, created, err := uc.Trigger("user-1", integrationdomain.ProviderGmail, "full", 0)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if created {
		t.Error("second trigger for a live job must not create")
	}
	if second.ID != first.ID {
		t.Errorf("second trigger returned %s, want %s", second.ID, first.ID)
	}
}

func TestTriggerDelayPushesRunAt(t *testing.T) {
	uc, _ := newTestUsecase(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return base }

	job, _, err := uc.Trigger("user-1", integrationdomain.ProviderGmail, "incremental", 45*time.Second)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if !job.RunAt.Equal(base.Add(45 * time.Second)) {
		t.Errorf("RunAt = %s, want %s", job.RunAt, base.Add(45*time.Second))
	}
}

func TestEnqueueAll(t *testing.T) {
	uc, db := newTestUsecase(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return base }
	uc.stagger = func() time.Duration { return 30 * time.Second }

	seedAccount(t, db, "user-on", integrationdomain.ProviderGoogleCalendar, true, true)
	seedAccount(t, db, "user-off", integrationdomain.ProviderGoogleCalendar, true, false)
	seedAccount(t, db, "user-inactive", integrationdomain.ProviderGoogleCalendar, false, true)

	uc.EnqueueAll()

	var jobs []domain.SyncJob
	if err := db.Find(&jobs).Error; err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want only the enabled active account: %+v", len(jobs), jobs)
	}
	job := jobs[0]
	if job.UserID != "user-on" {
		t.Errorf("job for %s, want user-on", job.UserID)
	}
	if job.Mode != "incremental" {
		t.Errorf("mode = %q, want incremental", job.Mode)
	}
	if !job.RunAt.Equal(base.Add(30 * time.Second)) {
		t.Errorf("RunAt = %s, want staggered by 30s", job.RunAt)
	}

	// a second pass does not stack jobs on the live key
	uc.EnqueueAll()
	if err := db.Find(&jobs).Error; err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("jobs after second pass = %d, want 1", len(jobs))
	}
}

func TestPurgeStaleFreesJobKey(t *testing.T) {
	uc, db := newTestUsecase(t)
	now := time.Now()

	started := now.Add(-2 * time.Hour)
	orphan := &domain.SyncJob{
		ID:          uuid.New().String(),
		JobKey:      domain.JobKey("user-1", integrationdomain.ProviderGmail),
		UserID:      "user-1",
		Provider:    integrationdomain.ProviderGmail,
		Status:      domain.StatusRunning,
		MaxAttempts: 3,
		RunAt:       started,
		StartedAt:   &started,
	}
	if err := db.Create(orphan).Error; err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	uc.PurgeStale()

	job, _, err := uc.Trigger("user-1", integrationdomain.ProviderGmail, "incremental", 0)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if job.ID == orphan.ID {
		t.Error("purge did not free the key; trigger returned the orphan")
	}
}
