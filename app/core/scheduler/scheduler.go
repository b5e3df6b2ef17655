package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"buddy/app/pkg/logger"
)

var slog = logger.Scope("scheduler")

var (
	ErrJobExists  = errors.New("scheduler: job already registered")
	ErrJobMissing = errors.New("scheduler: job not found")
	ErrStarted    = errors.New("scheduler: already started")
)

// Job is a named periodic task. Timeout bounds a single run; zero means
// no per-run deadline. RunOnStart fires the job once before the first tick.
type Job struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
	Run        func(context.Context) error
}

type JobStatus struct {
	Name         string
	Runs         int64
	LastStartAt  time.Time
	LastEndAt    time.Time
	LastError    string
	LastDuration time.Duration
}

// Scheduler runs registered jobs on independent tickers. Jobs may be
// registered before or after Start; each job gets its own goroutine.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]Job
	status  map[string]JobStatus
	stops   map[string]context.CancelFunc
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]Job),
		status: make(map[string]JobStatus),
		stops:  make(map[string]context.CancelFunc),
	}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return errors.New("scheduler: job name is required")
	}
	if job.Interval <= 0 {
		return errors.New("scheduler: job interval must be positive")
	}
	if job.Run == nil {
		return errors.New("scheduler: job run callback is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}
	s.jobs[job.Name] = job
	s.status[job.Name] = JobStatus{Name: job.Name}
	if s.started {
		s.launchLocked(job)
	}
	return nil
}

func (s *Scheduler) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrJobMissing, name)
	}
	delete(s.jobs, name)
	delete(s.status, name)
	if stop, ok := s.stops[name]; ok {
		stop()
		delete(s.stops, name)
	}
	return nil
}

func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.started = true
	for _, job := range s.jobs {
		s.launchLocked(job)
	}
	return nil
}

// Stop cancels all jobs and waits for in-flight runs to finish, up to
// timeout. A zero timeout waits indefinitely.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.ctx = nil
	s.cancel = nil
	s.started = false
	s.stops = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	cancel()
	if timeout <= 0 {
		s.wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: stop timed out after %s", timeout)
	}
}

// Snapshot returns per-job run stats sorted by name.
func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) launchLocked(job Job) {
	if !s.started || s.ctx == nil {
		return
	}
	if _, ok := s.stops[job.Name]; ok {
		return
	}
	ctx, stop := context.WithCancel(s.ctx)
	s.stops[job.Name] = stop
	s.wg.Add(1)
	go s.loop(ctx, job)
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	if job.RunOnStart {
		s.runOnce(ctx, job)
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(parent context.Context, job Job) {
	start := time.Now()
	s.record(job.Name, func(st *JobStatus) {
		st.LastStartAt = start
	})

	ctx := parent
	cancel := func() {}
	if job.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, job.Timeout)
	}
	defer cancel()

	err := job.Run(ctx)
	end := time.Now()
	s.record(job.Name, func(st *JobStatus) {
		st.Runs++
		st.LastEndAt = end
		st.LastDuration = end.Sub(start)
		if err != nil {
			st.LastError = err.Error()
		} else {
			st.LastError = ""
		}
	})
	if err != nil {
		slog.Error("job %s failed: %v", job.Name, err)
	}
}

func (s *Scheduler) record(name string, update func(*JobStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[name]
	if !ok {
		st = JobStatus{Name: name}
	}
	update(&st)
	s.status[name] = st
}
