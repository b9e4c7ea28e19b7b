package domain

import (
	"fmt"
	"time"

	integrationdomain "touchbase-backend/internal/integration/domain"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// SyncJob is one queued sync run. At most one live (pending or running) job
// exists per job key, so concurrent triggers for the same account collapse
// into a single run.
type SyncJob struct {
	ID       string                         `json:"id" gorm:"primaryKey"`
	JobKey   string                         `json:"job_key" gorm:"index;not null"`
	UserID   string                         `json:"user_id" gorm:"index;not null"`
	Provider integrationdomain.ProviderType `json:"provider" gorm:"not null"`
	Mode     string                         `json:"mode"`
	Status   JobStatus                      `json:"status" gorm:"index;not null"`

	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	RunAt       time.Time  `json:"run_at" gorm:"index"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`

	Synced  int `json:"synced"`
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Live reports whether the job still occupies its key.
func (j *SyncJob) Live() bool {
	return j.Status == StatusPending || j.Status == StatusRunning
}

// JobKey derives the deterministic single-flight key for one account sync.
func JobKey(userID string, provider integrationdomain.ProviderType) string {
	return fmt.Sprintf("sync:%s:%s", userID, provider)
}
