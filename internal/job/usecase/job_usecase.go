package usecase

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	integrationdomain "touchbase-backend/internal/integration/domain"
	integrationrepo "touchbase-backend/internal/integration/repository"
	"touchbase-backend/internal/job/domain"
	"touchbase-backend/internal/job/repository"
)

const (
	defaultMaxAttempts = 3
	// scheduled runs spread out over this span so every user's sync does
	// not hit the providers in the same second
	maxStagger = 60 * time.Second
	// a running job older than this is assumed orphaned by a crash
	staleAfter = time.Hour
)

// JobUsecase enqueues sync jobs and exposes their status.
type JobUsecase struct {
	jobRepo         repository.JobRepository
	integrationRepo integrationrepo.IntegrationRepository
	syncStateRepo   integrationrepo.SyncStateRepository
	now             func() time.Time
	stagger         func() time.Duration
}

func NewJobUsecase(
	jobRepo repository.JobRepository,
	integrationRepo integrationrepo.IntegrationRepository,
	syncStateRepo integrationrepo.SyncStateRepository,
) *JobUsecase {
	return &JobUsecase{
		jobRepo:         jobRepo,
		integrationRepo: integrationRepo,
		syncStateRepo:   syncStateRepo,
		now:             time.Now,
		stagger: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxStagger)))
		},
	}
}

// Trigger enqueues a sync for one account. If a job for the same account is
// already pending or running, that job is returned instead of a new one.
func (u *JobUsecase) Trigger(userID string, provider integrationdomain.ProviderType, mode string, delay time.Duration) (*domain.SyncJob, bool, error) {
	job := &domain.SyncJob{
		ID:          uuid.New().String(),
		JobKey:      domain.JobKey(userID, provider),
		UserID:      userID,
		Provider:    provider,
		Mode:        mode,
		Status:      domain.StatusPending,
		MaxAttempts: defaultMaxAttempts,
		RunAt:       u.now().Add(delay),
	}
	existing, created, err := u.jobRepo.Enqueue(job)
	if err != nil {
		return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return existing, created, nil
}

// EnqueueAll schedules an incremental sync for every active integration with
// sync enabled, each staggered by a random delay.
func (u *JobUsecase) EnqueueAll() {
	integrations, err := u.integrationRepo.ListActive()
	if err != nil {
		log.Printf("[Jobs] failed to list integrations: %v", err)
		return
	}

	enqueued := 0
	for _, integration := range integrations {
		state, err := u.syncStateRepo.GetByUserAndProvider(integration.UserID, integration.Provider)
		if err != nil {
			log.Printf("[Jobs] failed to load sync state for user %s: %v", integration.UserID, err)
			continue
		}
		if state == nil || !state.Enabled {
			continue
		}
		_, created, err := u.Trigger(integration.UserID, integration.Provider, "incremental", u.stagger())
		if err != nil {
			log.Printf("[Jobs] failed to enqueue sync for user %s provider %s: %v",
				integration.UserID, integration.Provider, err)
			continue
		}
		if created {
			enqueued++
		}
	}
	if enqueued > 0 {
		log.Printf("[Jobs] enqueued %d scheduled syncs", enqueued)
	}
}

// PurgeStale fails running jobs that outlived any plausible runtime. Called
// on startup so a crash never wedges a job key forever.
func (u *JobUsecase) PurgeStale() {
	failed, err := u.jobRepo.FailStale(u.now().Add(-staleAfter))
	if err != nil {
		log.Printf("[Jobs] failed to purge stale jobs: %v", err)
		return
	}
	if failed > 0 {
		log.Printf("[Jobs] failed %d stale jobs", failed)
	}
}

func (u *JobUsecase) Get(id string) (*domain.SyncJob, error) {
	return u.jobRepo.GetByID(id)
}

func (u *JobUsecase) ListByUser(userID string, limit int) ([]domain.SyncJob, error) {
	return u.jobRepo.ListByUser(userID, limit)
}
