package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job is a unit of background work. A returned error is logged and reported
// to Sentry when it is configured.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron specs.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu   sync.RWMutex
	jobs map[string]Job
}

func New(location *time.Location, timeout time.Duration) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	logger := cron.PrintfLogger(log.StandardLogger())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout: timeout,
		jobs:    make(map[string]Job),
	}
}

// Add schedules job under name. spec accepts standard cron expressions and
// descriptors like "@every 15m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s is already scheduled", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.jobs[name] = job
	log.Infof("scheduled job %s at %q", name, spec)
	return nil
}

// Every schedules job every interval minutes.
func (s *Scheduler) Every(name string, minutes int, job Job) error {
	if minutes <= 0 {
		return fmt.Errorf("invalid interval %d for job %s", minutes, name)
	}
	return s.Add(name, fmt.Sprintf("@every %dm", minutes), job)
}

// RunNow runs a scheduled job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s is not scheduled", name)
	}
	return s.run(name, job)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info("scheduler stopped")
}

func (s *Scheduler) run(name string, job Job) error {
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetTag("job", name)
	ctx := sentry.SetHubOnContext(context.Background(), hub)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	err := job(ctx)
	if err != nil {
		log.Errorf("job %s failed after %s: %v", name, time.Since(started).Round(time.Millisecond), err)
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.CaptureException(err)
		}
		return err
	}
	log.Debugf("job %s finished in %s", name, time.Since(started).Round(time.Millisecond))
	return nil
}
