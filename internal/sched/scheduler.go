// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package sched fires polling and aggregation jobs on cron triggers.
// Every job runs at most once concurrently; a fire arriving while the
// previous run still executes is skipped and logged, and fires that
// come in too far past their planned time are dropped as misfires.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// State of the scheduler lifecycle.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrShutdownTimeout means in-flight jobs outlived the grace window.
var ErrShutdownTimeout = errors.New("sched: jobs still running after shutdown grace")

// Func is a job body. The context is cancelled on shutdown.
type Func func(ctx context.Context) error

type job struct {
	name    string
	grace   time.Duration
	fn      Func
	entryID cron.EntryID
	running atomic.Bool
	skips   atomic.Int64
}

// Scheduler wraps a seconds-resolution cron runner.
type Scheduler struct {
	cron  *cron.Cron
	loc   *time.Location
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*job
}

// New builds a scheduler flooring and firing in loc.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		loc:    loc,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{})),
	)
	return s
}

// Location returns the scheduler's bucket timezone.
func (s *Scheduler) Location() *time.Location { return s.loc }

// AddJob registers fn under a 6-field cron spec (seconds first) or an
// "@every" interval. grace bounds how late a fire may start before it
// is treated as a misfire and dropped.
func (s *Scheduler) AddJob(name, spec string, grace time.Duration, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("sched: duplicate job %q", name)
	}

	j := &job{name: name, grace: grace, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.fire(j) })
	if err != nil {
		return fmt.Errorf("sched: job %q spec %q: %w", name, spec, err)
	}
	j.entryID = id
	s.jobs[name] = j
	return nil
}

func (s *Scheduler) fire(j *job) {
	if State(s.state.Load()) != StateRunning {
		return
	}

	// Planned fire time of this run; a fire that starts too far
	// behind it is a misfire.
	planned := s.cron.Entry(j.entryID).Prev
	if j.grace > 0 && !planned.IsZero() && time.Since(planned) > j.grace {
		slog.Warn("misfire, dropping run", "job", j.name, "planned", planned, "grace", j.grace)
		return
	}

	// max_instances = 1: skip when the previous run still executes.
	if !j.running.CompareAndSwap(false, true) {
		j.skips.Add(1)
		slog.Warn("previous run still executing, skipping fire", "job", j.name)
		return
	}
	defer j.running.Store(false)

	start := time.Now()
	if err := j.fn(s.ctx); err != nil {
		// Job failures never kill the scheduler.
		slog.Error("job run failed", "job", j.name, "elapsed", time.Since(start), "err", err)
		return
	}
	slog.Debug("job run complete", "job", j.name, "elapsed", time.Since(start))
}

// Skips reports how many fires of the named job were skipped because
// a run was still executing.
func (s *Scheduler) Skips(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		return j.skips.Load()
	}
	return 0
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return
	}
	s.cron.Start()
	s.state.Store(int32(StateRunning))
	slog.Info("scheduler running", "jobs", len(s.jobs), "timezone", s.loc.String())
}

// Stop refuses new fires, waits up to grace for in-flight jobs, then
// cancels their contexts. On an overrun it dumps live goroutine
// stacks for diagnosis and returns ErrShutdownTimeout.
func (s *Scheduler) Stop(grace time.Duration) error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}
	defer s.state.Store(int32(StateStopped))

	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.cancel()
		slog.Info("scheduler stopped")
		return nil
	case <-time.After(grace):
		s.cancel()
		DumpStacks()
		select {
		case <-done:
			return nil
		case <-time.After(time.Second):
			return ErrShutdownTimeout
		}
	}
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// DumpStacks writes every live goroutine stack to stderr.
func DumpStacks() {
	if p := pprof.Lookup("goroutine"); p != nil {
		_ = p.WriteTo(os.Stderr, 1)
	}
}

// cronLogger adapts slog to the cron runner's logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	slog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	kv = append(kv, "err", err)
	slog.Error("cron: "+msg, kv...)
}
