package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"touchbase-backend/internal/integration/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Integration{},
		&domain.OAuthState{},
		&domain.SyncState{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestOAuthStateConsumeIsSingleUse(t *testing.T) {
	repo := NewOAuthStateRepository(newTestDB(t))

	state := &domain.OAuthState{
		State:     "random-state-value",
		UserID:    uuid.New().String(),
		Provider:  domain.ProviderGmail,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	if err := repo.Create(state); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := repo.Consume("random-state-value")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if first == nil || first.UserID != state.UserID {
		t.Fatalf("first consume = %+v", first)
	}

	second, err := repo.Consume("random-state-value")
	if err != nil {
		t.Fatalf("second Consume: %v", err)
	}
	if second != nil {
		t.Error("replayed state was accepted")
	}
}

func TestOAuthStateConsumeUnknown(t *testing.T) {
	repo := NewOAuthStateRepository(newTestDB(t))

	record, err := repo.Consume("never-created")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if record != nil {
		t.Errorf("unknown state returned %+v", record)
	}
}

func TestOAuthStateDeleteExpired(t *testing.T) {
	repo := NewOAuthStateRepository(newTestDB(t))
	now := time.Now()

	if err := repo.Create(&domain.OAuthState{
		State:     "old",
		UserID:    "u1",
		Provider:  domain.ProviderGmail,
		ExpiresAt: now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(&domain.OAuthState{
		State:     "fresh",
		UserID:    "u1",
		Provider:  domain.ProviderGmail,
		ExpiresAt: now.Add(10 * time.Minute),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	deleted, err := repo.DeleteExpired(now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if record, _ := repo.Consume("fresh"); record == nil {
		t.Error("unexpired state was removed")
	}
}
