// Package followup schedules delayed, cancellable follow-up actions keyed
// by user id. Timers are in-process and wall-clock anchored; pending
// follow-ups do not survive a restart.
package followup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/m3rciful/funnelbot/core/logger"

	"log/slog"
)

// Action is the work performed when a follow-up fires. The action itself
// is responsible for re-checking funnel state before sending anything.
type Action func(ctx context.Context)

// Scheduler schedules and cancels per-user follow-up actions.
type Scheduler interface {
	// Schedule runs fn once after delay. key names the follow-up kind for
	// bookkeeping and logs.
	Schedule(userID int64, key string, delay time.Duration, fn Action) error
	// CancelAll cancels every pending follow-up for the user and returns
	// how many were cancelled. Already-running actions are not interrupted.
	CancelAll(userID int64) int
	// Pending returns the keys of the user's pending follow-ups.
	Pending(userID int64) []string
	// Close stops the underlying scheduler and drops all pending jobs.
	Close() error
}

type entry struct {
	id  uuid.UUID
	key string
}

// Registry is the gocron-backed Scheduler implementation.
type Registry struct {
	sched gocron.Scheduler

	mu   sync.Mutex
	jobs map[int64][]*entry
}

// NewRegistry constructs and starts a follow-up registry.
func NewRegistry() (*Registry, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("followup: scheduler init: %w", err)
	}
	sched.Start()
	return &Registry{
		sched: sched,
		jobs:  make(map[int64][]*entry),
	}, nil
}

func (r *Registry) Schedule(userID int64, key string, delay time.Duration, fn Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{key: key}
	var jobDef gocron.OneTimeJobStartAtOption
	if delay <= 0 {
		jobDef = gocron.OneTimeJobStartImmediately()
	} else {
		jobDef = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}

	job, err := r.sched.NewJob(
		gocron.OneTimeJob(jobDef),
		gocron.NewTask(func() {
			fn(context.Background())
			r.forget(userID, e)
		}),
	)
	if err != nil {
		return fmt.Errorf("followup: schedule %s for %d: %w", key, userID, err)
	}
	e.id = job.ID()
	r.jobs[userID] = append(r.jobs[userID], e)

	logger.FUNNEL.Debug("follow-up scheduled",
		slog.String("event", "followup.schedule"),
		slog.Int64("uid", userID),
		slog.String("followup", key),
		slog.Duration("delay_ms", logger.RoundMS(delay)),
	)
	return nil
}

func (r *Registry) CancelAll(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.jobs[userID]
	if len(entries) == 0 {
		return 0
	}
	for _, e := range entries {
		_ = r.sched.RemoveJob(e.id)
	}
	delete(r.jobs, userID)

	logger.FUNNEL.Debug("follow-ups cancelled",
		slog.String("event", "followup.cancel"),
		slog.Int64("uid", userID),
		slog.Int("pending_count", len(entries)),
	)
	return len(entries)
}

func (r *Registry) Pending(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.jobs[userID]
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.key)
	}
	return keys
}

// forget drops the bookkeeping entry after a job has run.
func (r *Registry) forget(userID int64, done *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.jobs[userID]
	for i, e := range entries {
		if e == done {
			r.jobs[userID] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(r.jobs[userID]) == 0 {
		delete(r.jobs, userID)
	}
}

func (r *Registry) Close() error {
	r.mu.Lock()
	r.jobs = make(map[int64][]*entry)
	r.mu.Unlock()
	return r.sched.Shutdown()
}
