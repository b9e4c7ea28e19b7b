package repository

import (
	"time"

	"touchbase-backend/internal/job/domain"

	"gorm.io/gorm"
)

type JobRepository interface {
	// Enqueue inserts the job unless a live job with the same key already
	// exists; in that case the existing job is returned and created is
	// false.
	Enqueue(job *domain.SyncJob) (existing *domain.SyncJob, created bool, err error)
	// ClaimDue atomically moves the oldest due pending job to running.
	// Returns nil when nothing is due.
	ClaimDue(now time.Time) (*domain.SyncJob, error)
	Update(job *domain.SyncJob) error
	UpdateProgress(jobID string, synced, added, updated, skipped int) error
	GetByID(id string) (*domain.SyncJob, error)
	ListByUser(userID string, limit int) ([]domain.SyncJob, error)
	GetLiveByKey(jobKey string) (*domain.SyncJob, error)
	// FailStale fails running jobs started before the deadline and pending
	// jobs due before it, freeing their keys after a crash or long outage.
	FailStale(before time.Time) (int64, error)
}

type jobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Enqueue(job *domain.SyncJob) (*domain.SyncJob, bool, error) {
	var existing *domain.SyncJob
	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var live domain.SyncJob
		err := tx.Where("job_key = ? AND status IN ?", job.JobKey,
			[]domain.JobStatus{domain.StatusPending, domain.StatusRunning}).
			First(&live).Error
		if err == nil {
			existing = &live
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		created = true
		return tx.Create(job).Error
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return job, created, nil
}

func (r *jobRepository) ClaimDue(now time.Time) (*domain.SyncJob, error) {
	var claimed *domain.SyncJob
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var job domain.SyncJob
		err := tx.Where("status = ? AND run_at <= ?", domain.StatusPending, now).
			Order("run_at ASC").
			First(&job).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		started := now
		result := tx.Model(&domain.SyncJob{}).
			Where("id = ? AND status = ?", job.ID, domain.StatusPending).
			Updates(map[string]any{
				"status":     domain.StatusRunning,
				"started_at": started,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// another worker won the race
			return nil
		}

		job.Status = domain.StatusRunning
		job.StartedAt = &started
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRepository) Update(job *domain.SyncJob) error {
	return r.db.Save(job).Error
}

func (r *jobRepository) UpdateProgress(jobID string, synced, added, updated, skipped int) error {
	return r.db.Model(&domain.SyncJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"synced":  synced,
			"added":   added,
			"updated": updated,
			"skipped": skipped,
		}).Error
}

func (r *jobRepository) GetByID(id string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) ListByUser(userID string, limit int) ([]domain.SyncJob, error) {
	var jobs []domain.SyncJob
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRepository) GetLiveByKey(jobKey string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := r.db.Where("job_key = ? AND status IN ?", jobKey,
		[]domain.JobStatus{domain.StatusPending, domain.StatusRunning}).
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) FailStale(before time.Time) (int64, error) {
	running := r.db.Model(&domain.SyncJob{}).
		Where("status = ? AND started_at < ?", domain.StatusRunning, before).
		Updates(map[string]any{
			"status":     domain.StatusFailed,
			"last_error": "abandoned: worker did not finish",
		})
	if running.Error != nil {
		return running.RowsAffected, running.Error
	}

	// jobs still queued long past their run time mean the workers never got
	// to them before a shutdown; fail them so their keys free up
	pending := r.db.Model(&domain.SyncJob{}).
		Where("status = ? AND run_at < ?", domain.StatusPending, before).
		Updates(map[string]any{
			"status":     domain.StatusFailed,
			"last_error": "abandoned: never picked up",
		})
	return running.RowsAffected + pending.RowsAffected, pending.Error
}
