package supervise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guarzo/killfeed-indexer/internal/metrics"
)

var (
	// ErrCapacityExceeded is returned when a ceiling is already at capacity.
	// The caller should treat this as retryable-later; tasks are never queued.
	ErrCapacityExceeded = errors.New("supervisor at capacity")

	// ErrTaskTimeout is reported for tasks forcibly terminated after
	// exceeding the hard duration ceiling.
	ErrTaskTimeout = errors.New("task exceeded max duration")
)

// Config configures a Supervisor.
type Config struct {
	Name          string        // Label used in logs and telemetry
	MaxConcurrent int           // Global ceiling (default: 50)
	MaxPerUser    int           // Per-tag ceiling, 0 = unlimited
	MaxDuration   time.Duration // Hard kill (default: 30s)
	WarningTime   time.Duration // Logs a warning, task continues (default: MaxDuration/2)
}

// Task is a unit of supervised work. The context is cancelled when the hard
// duration ceiling elapses.
type Task func(ctx context.Context) error

// Handle identifies a running task in the registry.
type Handle uint64

// Entry is the registry record for one running task, readable concurrently
// without message-passing to the supervisor.
type Entry struct {
	Handle    Handle
	Tag       string
	Metadata  map[string]string
	StartedAt time.Time
}

// Supervisor is a bounded-concurrency executor with capacity ceilings and
// hard wall-clock timeouts. Rejection is immediate; there is no queue.
type Supervisor struct {
	config Config

	mu       sync.Mutex
	running  map[Handle]*Entry
	perTag   map[string]int
	nextID   uint64
	draining bool

	wg sync.WaitGroup
}

// New creates a new Supervisor.
func New(cfg Config) *Supervisor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 50
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 30 * time.Second
	}
	if cfg.WarningTime <= 0 || cfg.WarningTime >= cfg.MaxDuration {
		cfg.WarningTime = cfg.MaxDuration / 2
	}
	return &Supervisor{
		config:  cfg,
		running: make(map[Handle]*Entry),
		perTag:  make(map[string]int),
	}
}

// StartTask registers and launches fn under supervision. It rejects with
// ErrCapacityExceeded if either the global or the per-tag ceiling is already
// at capacity. The returned handle stays valid until the task is deregistered.
func (s *Supervisor) StartTask(fn Task, tag string, metadata map[string]string) (Handle, error) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: shutting down", ErrCapacityExceeded)
	}
	if len(s.running) >= s.config.MaxConcurrent {
		s.mu.Unlock()
		metrics.TaskRejections.Inc()
		return 0, fmt.Errorf("%w: %d tasks running", ErrCapacityExceeded, s.config.MaxConcurrent)
	}
	if s.config.MaxPerUser > 0 && tag != "" && s.perTag[tag] >= s.config.MaxPerUser {
		s.mu.Unlock()
		metrics.TaskRejections.Inc()
		return 0, fmt.Errorf("%w: tag %q at limit %d", ErrCapacityExceeded, tag, s.config.MaxPerUser)
	}

	s.nextID++
	handle := Handle(s.nextID)
	entry := &Entry{
		Handle:    handle,
		Tag:       tag,
		Metadata:  metadata,
		StartedAt: time.Now(),
	}
	s.running[handle] = entry
	if tag != "" {
		s.perTag[tag]++
	}
	s.mu.Unlock()

	metrics.TasksRunning.Inc()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	var timedOut atomic.Bool

	s.wg.Add(1)
	go func() {
		done <- fn(ctx)
	}()

	// Monitor goroutine: races completion against warning and timeout timers.
	go func() {
		defer s.wg.Done()
		defer cancel()

		warn := time.NewTimer(s.config.WarningTime)
		kill := time.NewTimer(s.config.MaxDuration)
		defer warn.Stop()
		defer kill.Stop()

		var err error
		for {
			select {
			case err = <-done:
				if timedOut.Load() {
					// Already reported as timeout; the late result is
					// discarded, not swallowed silently.
					slog.Debug("supervised task finished after forced kill",
						"supervisor", s.config.Name,
						"handle", handle,
						"err", err,
					)
					return
				}
				s.finish(entry, err, false)
				return
			case <-warn.C:
				slog.Warn("supervised task running long",
					"supervisor", s.config.Name,
					"handle", handle,
					"tag", tag,
					"elapsed", time.Since(entry.StartedAt).Round(time.Millisecond),
				)
			case <-kill.C:
				timedOut.Store(true)
				cancel()
				s.finish(entry, ErrTaskTimeout, true)
				return
			}
		}
	}()

	return handle, nil
}

// finish deregisters a task and emits completion telemetry.
func (s *Supervisor) finish(entry *Entry, err error, timedOut bool) {
	s.mu.Lock()
	delete(s.running, entry.Handle)
	if entry.Tag != "" {
		s.perTag[entry.Tag]--
		if s.perTag[entry.Tag] <= 0 {
			delete(s.perTag, entry.Tag)
		}
	}
	s.mu.Unlock()

	metrics.TasksRunning.Dec()

	duration := time.Since(entry.StartedAt)
	switch {
	case timedOut:
		metrics.TasksTotal.WithLabelValues("timeout").Inc()
		slog.Error("supervised task killed",
			"supervisor", s.config.Name,
			"handle", entry.Handle,
			"tag", entry.Tag,
			"duration_ms", duration.Milliseconds(),
		)
	case err != nil:
		metrics.TasksTotal.WithLabelValues("error").Inc()
		slog.Warn("supervised task failed",
			"supervisor", s.config.Name,
			"handle", entry.Handle,
			"tag", entry.Tag,
			"duration_ms", duration.Milliseconds(),
			"err", err,
		)
	default:
		metrics.TasksTotal.WithLabelValues("ok").Inc()
		slog.Debug("supervised task done",
			"supervisor", s.config.Name,
			"handle", entry.Handle,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// Run executes fn inline under the supervisor's ceilings and returns its
// result, blocking until the task completes or is killed. A task that died to
// the hard duration ceiling reports ErrTaskTimeout, so callers can tell a kill
// apart from an ordinary cancellation inside the task.
func (s *Supervisor) Run(fn Task, tag string, metadata map[string]string) error {
	result := make(chan error, 1)
	_, err := s.StartTask(func(ctx context.Context) error {
		err := fn(ctx)
		// The task context is only cancelled before fn returns when the kill
		// timer fired; completion-path cancellation happens strictly after.
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			err = ErrTaskTimeout
		}
		result <- err
		return err
	}, tag, metadata)
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-time.After(s.config.MaxDuration + time.Second):
		return ErrTaskTimeout
	}
}

// RunningCount returns the number of currently registered tasks.
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// RunningTasks returns a snapshot of the registry for introspection.
func (s *Supervisor) RunningTasks() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.running))
	for _, e := range s.running {
		out = append(out, *e)
	}
	return out
}

// Drain stops accepting new tasks and waits for running tasks to finish or
// be killed.
func (s *Supervisor) Drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.wg.Wait()
}
