// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/wontakkang/jais-backend-sub000/internal/aggregate"
	"github.com/wontakkang/jais-backend-sub000/internal/config"
	"github.com/wontakkang/jais-backend-sub000/internal/kv"
	"github.com/wontakkang/jais-backend-sub000/internal/memmap"
	"github.com/wontakkang/jais-backend-sub000/internal/poll"
	"github.com/wontakkang/jais-backend-sub000/internal/sched"
	"github.com/wontakkang/jais-backend-sub000/internal/transaction"
	"github.com/wontakkang/jais-backend-sub000/transport/tcp"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting XGT acquisition core...")

	ctx := context.Background()

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		slog.Error("Bad scheduler timezone", "err", err)
		os.Exit(1)
	}

	// KV cache: redis when configured, in-process otherwise.
	var cache kv.Store
	if cfg.Redis.Enabled {
		cache = kv.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	} else {
		cache = kv.NewMemoryStore()
	}
	defer cache.Close()

	// Warm-start snapshot.
	var snap *kv.Snapshot
	if cfg.Snapshot.Path != "" {
		snap, err = kv.OpenSnapshot(cfg.Snapshot.Path, cfg.Snapshot.MaxSlots)
		if err != nil {
			slog.Warn("Snapshot unavailable, starting cold", "path", cfg.Snapshot.Path, "err", err)
			snap = nil
		} else {
			defer snap.Close()
			n, err := snap.Restore(ctx, cache)
			if err != nil {
				slog.Warn("Snapshot restore incomplete", "restored", n, "err", err)
			} else {
				slog.Info("KV cache warmed from snapshot", "samples", n)
			}
		}
	}

	// Aggregate store: MySQL when configured, in-process otherwise.
	var aggStore aggregate.Store
	if cfg.Database.Enabled {
		s, err := aggregate.NewSQLStore(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.SaveOffsetHours)
		if err != nil {
			slog.Error("Failed to open aggregate database", "err", err)
			os.Exit(1)
		}
		if err := s.InitSchema(ctx); err != nil {
			slog.Error("Failed to create bucket tables", "err", err)
			os.Exit(1)
		}
		aggStore = s
	} else {
		aggStore = aggregate.NewMemoryStore()
	}
	defer aggStore.Close()

	scheduler := sched.New(loc)
	statusLog := poll.NewStatusLog()
	registry := memmap.NewRegistry()

	// Per-client polling jobs.
	enabled := 0
	for i := range cfg.Clients {
		cc := &cfg.Clients[i]
		if !cc.IsUsed {
			continue
		}
		if err := addClientJobs(scheduler, cc, cache, snap, statusLog, registry); err != nil {
			slog.Error("Failed to register client", "client", cc.ID, "err", err)
			os.Exit(1)
		}
		enabled++
	}
	slog.Info("Clients registered", "enabled", enabled, "configured", len(cfg.Clients))

	// Aggregation cascade. Every fire rolls the bucket that just
	// closed; the second-level offsets let the finer job finish first.
	runner := &aggregate.Runner{Cache: cache, Store: aggStore, Loc: loc}
	aggJobs := []struct {
		name  string
		spec  string
		grace time.Duration
		width time.Duration
		run   func(context.Context, time.Time) error
	}{
		{"aggregate-2min", "0 */2 * * * *", 30 * time.Second, 2 * time.Minute, runner.RunTwoMinute},
		{"aggregate-10min", "5 */10 * * * *", time.Minute, 10 * time.Minute, runner.RunTenMinute},
		{"aggregate-1hour", "10 0 * * * *", 2 * time.Minute, time.Hour, runner.RunHourly},
		{"aggregate-daily", "0 5 0 * * *", 5 * time.Minute, 24 * time.Hour, runner.RunDaily},
	}
	for _, j := range aggJobs {
		j := j
		err := scheduler.AddJob(j.name, j.spec, j.grace, func(ctx context.Context) error {
			return j.run(ctx, time.Now().Add(-j.width))
		})
		if err != nil {
			slog.Error("Failed to register aggregation job", "job", j.name, "err", err)
			os.Exit(1)
		}
	}

	scheduler.Start()

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	slog.Info("Shutting down...", "signal", sig.String())
	if err := scheduler.Stop(cfg.Scheduler.ShutdownGrace); err != nil {
		if errors.Is(err, sched.ErrShutdownTimeout) {
			slog.Error("Jobs outlived the grace window, exiting hard")
			os.Exit(1)
		}
		slog.Error("Scheduler stop failed", "err", err)
	}
	slog.Info("Goodbye.")
}

// addClientJobs wires one PLC endpoint: connector, transaction
// manager, poller and its cron entries.
func addClientJobs(scheduler *sched.Scheduler, cc *config.ClientConfig, cache kv.Store, snap *kv.Snapshot, statusLog *poll.StatusLog, registry *memmap.Registry) error {
	client := &poll.Client{
		ID:       cc.ID,
		Endpoint: cc.Address(),
	}
	for _, b := range cc.Blocks {
		client.Blocks = append(client.Blocks, poll.Block{
			Memory:   b.Memory,
			Address:  b.Address,
			Count:    b.Count,
			FuncName: b.FuncName,
			GroupID:  b.GroupID,
		})
	}
	for _, gc := range cc.MemoryGroups {
		g, err := gc.MemoryGroup(cc.ID)
		if err != nil {
			return err
		}
		client.Groups = append(client.Groups, g)
	}

	mgr := transaction.NewManager(cc.Address(), tcp.NewClient(cc.Address()), transaction.Options{
		Timeout:      cc.Timeout,
		RetryOnEmpty: cc.RetryOnEmpty,
		Retries:      cc.Retries,
	})

	p := poll.NewPoller(client, mgr, cache)
	p.Snapshot = snap
	p.Status = statusLog
	registry.Register(p)

	spec, err := cc.Cron.Spec()
	if err != nil {
		return err
	}
	if err := scheduler.AddJob(fmt.Sprintf("poll-client-%d", cc.ID), spec, 15*time.Second, p.Run); err != nil {
		return err
	}

	if !cc.SetupCron.IsZero() {
		spec, err := cc.SetupCron.Spec()
		if err != nil {
			return err
		}
		if err := scheduler.AddJob(fmt.Sprintf("setup-client-%d", cc.ID), spec, 15*time.Second, p.RunSetup); err != nil {
			return err
		}
	}
	return nil
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
