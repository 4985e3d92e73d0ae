// Package scheduler runs the service's periodic work: autoevent reads
// and any other recurring task a subsystem registers. Schedules are
// either Go durations ("10s") or five-field cron expressions
// ("*/5 * * * *"); cron tasks are evaluated on minute boundaries.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

// task is one registered unit of periodic work.
type task struct {
	id       string
	name     string
	interval time.Duration // 0 when cron-scheduled
	cron     string
	run      func()
	cancel   chan struct{}
}

// Scheduler manages periodic tasks. Tasks may be registered before or
// after Start; registrations made while running begin immediately.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	gron    *gronx.Gronx
	logger  *slog.Logger
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:  make(map[string]*task),
		stopCh: make(chan struct{}),
		gron:   gronx.New(),
		logger: logger,
	}
}

// Schedule registers a task. The schedule is a duration or a cron
// expression; anything else is rejected. The returned ID cancels the
// task.
func (s *Scheduler) Schedule(name, schedule string, run func()) (string, error) {
	if run == nil {
		return "", fmt.Errorf("scheduler: task %q has no work function", name)
	}

	t := &task{
		id:     uuid.NewString(),
		name:   name,
		run:    run,
		cancel: make(chan struct{}),
	}
	if d, err := time.ParseDuration(schedule); err == nil {
		if d <= 0 {
			return "", fmt.Errorf("scheduler: task %q interval must be positive", name)
		}
		t.interval = d
	} else if s.gron.IsValid(schedule) {
		t.cron = schedule
	} else {
		return "", fmt.Errorf("scheduler: task %q has unusable schedule %q", name, schedule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", fmt.Errorf("scheduler: stopped")
	}
	s.tasks[t.id] = t
	if s.started {
		s.launch(t)
	}
	return t.id, nil
}

// Cancel stops and removes a task by ID.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		close(t.cancel)
		delete(s.tasks, id)
	}
}

// Start launches all registered tasks.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	for _, t := range s.tasks {
		s.launch(t)
	}
	s.logger.Debug("Scheduler started", "tasks", len(s.tasks))
}

// Stop terminates every task and waits for in-flight runs to complete.
// The scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.started {
		close(s.stopCh)
	}
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("Scheduler stopped")
}

// launch starts a task's goroutine. Caller holds the lock.
func (s *Scheduler) launch(t *task) {
	s.wg.Add(1)
	if t.interval > 0 {
		go s.runInterval(t)
	} else {
		go s.runCron(t)
	}
}

// runInterval fires the task on a fixed ticker.
func (s *Scheduler) runInterval(t *task) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.cancel:
			return
		case <-ticker.C:
			t.run()
		}
	}
}

// runCron evaluates the expression once per minute, aligned to the next
// minute boundary so each cron window fires at most once.
func (s *Scheduler) runCron(t *task) {
	defer s.wg.Done()

	next := time.Now().Truncate(time.Minute).Add(time.Minute)
	align := time.NewTimer(time.Until(next))
	defer align.Stop()
	select {
	case <-s.stopCh:
		return
	case <-t.cancel:
		return
	case <-align.C:
		s.fireIfDue(t)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.cancel:
			return
		case <-ticker.C:
			s.fireIfDue(t)
		}
	}
}

// fireIfDue runs the task when its cron expression matches the current
// minute.
func (s *Scheduler) fireIfDue(t *task) {
	due, err := s.gron.IsDue(t.cron, time.Now().Truncate(time.Minute))
	if err != nil {
		s.logger.Error("Cron evaluation failed", "task", t.name, "error", err)
		return
	}
	if due {
		t.run()
	}
}

// Count returns the number of registered tasks.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
