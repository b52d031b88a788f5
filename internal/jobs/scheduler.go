package jobs

import (
	"log"

	"github.com/robfig/cron/v3"

	"github.com/pennyflow/backend/internal/session"
)

// Scheduler manages background jobs
type Scheduler struct {
	cron     *cron.Cron
	sessions *session.Store
}

// NewScheduler creates a new job scheduler
func NewScheduler(sessions *session.Store) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	// Sweep expired link sessions every 10 minutes
	s.cron.AddFunc("*/10 * * * *", func() {
		if removed := s.sessions.Sweep(); removed > 0 {
			log.Printf("Session sweep: removed %d expired link sessions", removed)
		}
	})

	s.cron.Start()
	log.Println("Job scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Job scheduler stopped")
}
