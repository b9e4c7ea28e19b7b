package scheduler

import (
	"log"
	"time"

	"touchbase-backend/internal/job/usecase"
)

// SyncScheduler periodically enqueues incremental syncs for every enabled
// integration.
type SyncScheduler struct {
	jobUsecase *usecase.JobUsecase
	interval   time.Duration
	stopChan   chan struct{}
}

func NewSyncScheduler(jobUsecase *usecase.JobUsecase, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		jobUsecase: jobUsecase,
		interval:   interval,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the scheduler loop.
func (s *SyncScheduler) Start() {
	log.Printf("[SyncScheduler] Starting sync scheduler (interval: %s)", s.interval)

	go func() {
		// Run immediately on start
		s.jobUsecase.EnqueueAll()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.jobUsecase.EnqueueAll()
			case <-s.stopChan:
				log.Println("[SyncScheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *SyncScheduler) Stop() {
	close(s.stopChan)
}
