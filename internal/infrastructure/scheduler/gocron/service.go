package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/pi-apps/a2u/internal/core/ports"
)

type service struct {
	scheduler *gocron.Scheduler
	job       *gocron.Job
	mu        *sync.Mutex
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc, nil, &sync.Mutex{}}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

// ScheduleRecovery replaces any previously scheduled recovery. The first run
// happens one interval from now and runs never overlap.
func (s *service) ScheduleRecovery(interval time.Duration, recoverFunc func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid recovery interval: %s", interval)
	}
	if recoverFunc == nil {
		return fmt.Errorf("missing recovery func")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil {
		s.scheduler.Remove(s.job)
		s.job = nil
	}

	job, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(recoverFunc)
	if err != nil {
		return err
	}

	s.job = job
	return nil
}

// WhenNextRecovery returns the next scheduled recovery time
func (s *service) WhenNextRecovery() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil {
		return time.Time{}
	}

	return s.job.NextRun()
}
