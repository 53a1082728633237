// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package job runs long pipeline operations off the request path and tracks
// their lifecycle.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	rgerr "github.com/kraklabs/repograph/internal/errors"
)

// State is a job lifecycle state. Transitions only move forward:
// pending -> running -> (completed | failed | cancelled).
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ErrorInfo is the structured error stored on a failed job.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is a point-in-time copy of a job record.
type Snapshot struct {
	ID         string         `json:"job_id"`
	Kind       string         `json:"kind"`
	State      State          `json:"status"`
	Progress   string         `json:"progress,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Error      *ErrorInfo     `json:"error,omitempty"`
	CreatedAt  string         `json:"created_at"`
	StartedAt  string         `json:"started_at,omitempty"`
	FinishedAt string         `json:"finished_at,omitempty"`
}

// Fn is the work body of a job. It reports progress through update and
// returns the result payload stored on the completed record. The context is
// cancelled when the job is cancelled; implementations check it at phase
// boundaries.
type Fn func(ctx context.Context, update func(progress string)) (map[string]any, error)

type record struct {
	snapshot Snapshot
	seq      uint64
	cancel   context.CancelFunc
}

type task struct {
	id string
	fn Fn
}

// Registry owns all job state and the worker pool that executes jobs.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*record
	counter uint64
	closed  bool

	tasks chan task
	wg    sync.WaitGroup
}

// DefaultWorkers is the worker pool size used when none is given.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	return n
}

// NewRegistry starts a registry with the given pool size (<=0 uses
// DefaultWorkers).
func NewRegistry(workers int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	r := &Registry{
		logger: logger,
		jobs:   make(map[string]*record),
		tasks:  make(chan task, workers*4),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.logger.Info("job.registry.started", "workers", workers)
	return r
}

// Submit registers a new pending job and queues it for execution. Job ids
// are "<kind>_<counter>" with a process-wide monotonic counter.
func (r *Registry) Submit(kind string, fn Fn) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", rgerr.New(rgerr.KindInternal, "job registry is shut down")
	}
	r.counter++
	id := fmt.Sprintf("%s_%d", kind, r.counter)
	ctx, cancel := context.WithCancel(context.Background())
	r.jobs[id] = &record{
		snapshot: Snapshot{
			ID:        id,
			Kind:      kind,
			State:     StatePending,
			CreatedAt: now(),
		},
		seq:    r.counter,
		cancel: cancel,
	}
	r.mu.Unlock()

	r.tasks <- task{id: id, fn: wrapWithContext(ctx, fn)}
	r.logger.Info("job.submitted", "job_id", id, "kind", kind)
	return id, nil
}

// wrapWithContext binds the job's cancellation context to its body.
func wrapWithContext(ctx context.Context, fn Fn) Fn {
	return func(_ context.Context, update func(string)) (map[string]any, error) {
		return fn(ctx, update)
	}
}

func (r *Registry) worker() {
	defer r.wg.Done()
	for t := range r.tasks {
		r.execute(t)
	}
}

func (r *Registry) execute(t task) {
	r.mu.Lock()
	rec, ok := r.jobs[t.id]
	if !ok || rec.snapshot.State != StatePending {
		// Deleted or cancelled before it ran.
		r.mu.Unlock()
		return
	}
	rec.snapshot.State = StateRunning
	rec.snapshot.StartedAt = now()
	r.mu.Unlock()
	r.logger.Info("job.started", "job_id", t.id)

	update := func(progress string) {
		r.mu.Lock()
		if rec, ok := r.jobs[t.id]; ok && rec.snapshot.State == StateRunning {
			rec.snapshot.Progress = progress
		}
		r.mu.Unlock()
	}

	result, err := t.fn(context.Background(), update)

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok = r.jobs[t.id]
	if !ok {
		return
	}
	rec.snapshot.FinishedAt = now()
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		rec.snapshot.State = StateCancelled
		rec.snapshot.Progress = ""
		r.logger.Info("job.cancelled", "job_id", t.id)
	case err != nil:
		rec.snapshot.State = StateFailed
		rec.snapshot.Error = &ErrorInfo{Kind: string(rgerr.KindOf(err)), Message: err.Error()}
		r.logger.Warn("job.failed", "job_id", t.id, "kind", rgerr.KindOf(err), "error", err)
	default:
		rec.snapshot.State = StateCompleted
		rec.snapshot.Progress = "completed"
		rec.snapshot.Result = result
		r.logger.Info("job.completed", "job_id", t.id)
	}
}

// Cancel requests cancellation. A pending job is cancelled immediately; a
// running job's context is cancelled and the body observes it at the next
// phase boundary.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[id]
	if !ok {
		return rgerr.Newf(rgerr.KindNotFound, "job %s not found", id)
	}
	if rec.snapshot.State.Terminal() {
		return rgerr.Newf(rgerr.KindInvalidInput, "job %s already %s", id, rec.snapshot.State)
	}
	rec.cancel()
	if rec.snapshot.State == StatePending {
		rec.snapshot.State = StateCancelled
		rec.snapshot.FinishedAt = now()
	}
	r.logger.Info("job.cancel_requested", "job_id", id)
	return nil
}

// Delete removes a terminal job record. Active jobs must be cancelled first.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[id]
	if !ok {
		return rgerr.Newf(rgerr.KindNotFound, "job %s not found", id)
	}
	if !rec.snapshot.State.Terminal() {
		return rgerr.Newf(rgerr.KindInvalidInput, "job %s is %s; cancel it before deleting", id, rec.snapshot.State)
	}
	delete(r.jobs, id)
	r.logger.Info("job.deleted", "job_id", id)
	return nil
}

// Snapshot returns the current state of one job.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[id]
	if !ok {
		return Snapshot{}, rgerr.Newf(rgerr.KindNotFound, "job %s not found", id)
	}
	return cloneSnapshot(rec.snapshot), nil
}

// List returns all jobs in submission order plus per-state totals.
func (r *Registry) List() ([]Snapshot, map[State]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := make([]*record, 0, len(r.jobs))
	for _, rec := range r.jobs {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([]Snapshot, 0, len(recs))
	totals := make(map[State]int)
	for _, rec := range recs {
		out = append(out, cloneSnapshot(rec.snapshot))
		totals[rec.snapshot.State]++
	}
	return out, totals
}

// ActiveCount returns the number of pending or running jobs.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.jobs {
		if !rec.snapshot.State.Terminal() {
			n++
		}
	}
	return n
}

// Close stops accepting jobs and waits for running ones to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.tasks)
	r.wg.Wait()
	r.logger.Info("job.registry.stopped")
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	if s.Result != nil {
		out.Result = make(map[string]any, len(s.Result))
		for k, v := range s.Result {
			out.Result[k] = v
		}
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
