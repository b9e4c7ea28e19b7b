package worker

import (
	"context"
	"errors"
	"log"
	"time"

	integrationusecase "touchbase-backend/internal/integration/usecase"
	"touchbase-backend/internal/job/domain"
	"touchbase-backend/internal/job/repository"
	"touchbase-backend/internal/notification"
	syncdomain "touchbase-backend/internal/sync/domain"
	syncusecase "touchbase-backend/internal/sync/usecase"
)

const (
	pollInterval = 2 * time.Second
	// base retry delay, doubled on every failed attempt
	backoffBase = 30 * time.Second
)

// Pool runs claimed sync jobs on a fixed number of workers. Retries are
// rescheduled with exponential backoff until the job runs out of attempts.
type Pool struct {
	jobRepo      repository.JobRepository
	orchestrator *syncusecase.Orchestrator
	notifier     *notification.Service
	workers      int
	jobTimeout   time.Duration
	stopChan     chan struct{}
	now          func() time.Time
}

func NewPool(
	jobRepo repository.JobRepository,
	orchestrator *syncusecase.Orchestrator,
	notifier *notification.Service,
	workers int,
	jobTimeout time.Duration,
) *Pool {
	return &Pool{
		jobRepo:      jobRepo,
		orchestrator: orchestrator,
		notifier:     notifier,
		workers:      workers,
		jobTimeout:   jobTimeout,
		stopChan:     make(chan struct{}),
		now:          time.Now,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	log.Printf("[Worker] Starting %d sync workers (job timeout: %s)", p.workers, p.jobTimeout)
	for i := 0; i < p.workers; i++ {
		go p.run(i)
	}
}

// Stop signals every worker to exit after its current job.
func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) run(id int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			for {
				job, err := p.jobRepo.ClaimDue(p.now())
				if err != nil {
					log.Printf("[Worker %d] failed to claim job: %v", id, err)
					break
				}
				if job == nil {
					break
				}
				p.execute(id, job)
			}
		}
	}
}

func (p *Pool) execute(workerID int, job *domain.SyncJob) {
	log.Printf("[Worker %d] running job %s (%s, attempt %d/%d)",
		workerID, job.ID, job.JobKey, job.Attempts, job.MaxAttempts)

	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	mode := syncusecase.ModeIncremental
	if job.Mode == string(syncusecase.ModeFull) {
		mode = syncusecase.ModeFull
	}

	progress := func(result syncdomain.SyncResult) {
		if err := p.jobRepo.UpdateProgress(job.ID, result.Synced, result.Added, result.Updated, result.Skipped); err != nil {
			log.Printf("[Worker %d] failed to report progress for job %s: %v", workerID, job.ID, err)
		}
	}

	result, err := p.orchestrator.Sync(ctx, job.UserID, job.Provider, mode, progress)
	if err != nil {
		p.handleFailure(workerID, job, err)
		return
	}

	finished := p.now()
	job.Status = domain.StatusCompleted
	job.FinishedAt = &finished
	job.LastError = ""
	job.Synced = result.Synced
	job.Added = result.Added
	job.Updated = result.Updated
	job.Skipped = result.Skipped
	if err := p.jobRepo.Update(job); err != nil {
		log.Printf("[Worker %d] failed to complete job %s: %v", workerID, job.ID, err)
		return
	}

	p.notifier.SyncCompleted(notification.Event{
		UserID:   job.UserID,
		Provider: string(job.Provider),
		JobID:    job.ID,
		Synced:   result.Synced,
		Added:    result.Added,
		Updated:  result.Updated,
		Skipped:  result.Skipped,
		At:       finished,
	})
}

func (p *Pool) handleFailure(workerID int, job *domain.SyncJob, cause error) {
	retryable := !errors.Is(cause, integrationusecase.ErrReconnectRequired)

	if retryable && job.Attempts < job.MaxAttempts {
		delay := backoffBase * (1 << (job.Attempts - 1))
		job.Status = domain.StatusPending
		job.RunAt = p.now().Add(delay)
		job.LastError = cause.Error()
		if err := p.jobRepo.Update(job); err != nil {
			log.Printf("[Worker %d] failed to reschedule job %s: %v", workerID, job.ID, err)
			return
		}
		log.Printf("[Worker %d] job %s failed (%v), retrying in %s", workerID, job.ID, cause, delay)
		return
	}

	finished := p.now()
	job.Status = domain.StatusFailed
	job.FinishedAt = &finished
	job.LastError = cause.Error()
	if err := p.jobRepo.Update(job); err != nil {
		log.Printf("[Worker %d] failed to fail job %s: %v", workerID, job.ID, err)
		return
	}
	log.Printf("[Worker %d] job %s failed permanently: %v", workerID, job.ID, cause)

	p.notifier.SyncFailed(notification.Event{
		UserID:   job.UserID,
		Provider: string(job.Provider),
		JobID:    job.ID,
		Error:    cause.Error(),
		At:       finished,
	})
}
