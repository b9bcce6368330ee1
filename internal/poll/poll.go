// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package poll runs the per-client acquisition job: read every
// configured block from the PLC in declared order, decode the block
// through the client's memory map, and stage the samples in the KV
// cache under "{client_id}:{var_id}" keys.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wontakkang/jais-backend-sub000/internal/kv"
	"github.com/wontakkang/jais-backend-sub000/internal/memmap"
	"github.com/wontakkang/jais-backend-sub000/xgt"
)

// Block is one read descriptor of a client: a continuous read of
// Count elements from Memory at Address, decoded through the memory
// group named by GroupID.
type Block struct {
	Memory   string
	Address  int
	Count    int
	FuncName string
	GroupID  int
}

// Client is one enabled PLC endpoint with its read plan and decode
// context.
type Client struct {
	ID       int
	Endpoint string
	Blocks   []Block
	Groups   []*memmap.MemoryGroup
}

// Executor runs one request/response transaction. The transaction
// manager implements it; tests supply fakes.
type Executor interface {
	Execute(ctx context.Context, req xgt.Request) (*xgt.Response, error)
}

// Poller executes polling runs for one client. The scheduler
// guarantees at most one concurrent run; the poller itself is safe to
// reconfigure concurrently through the group observer.
type Poller struct {
	client *Client
	exec   Executor
	cache  kv.Store

	// Snapshot, when set, receives every staged numeric sample for
	// warm restarts.
	Snapshot *kv.Snapshot
	// Status, when set, tracks the PLC system status after each run
	// and records transitions.
	Status *StatusLog

	mu     sync.RWMutex
	groups map[int]*memmap.MemoryGroup
}

// NewPoller wires a poller for the client.
func NewPoller(client *Client, exec Executor, cache kv.Store) *Poller {
	p := &Poller{
		client: client,
		exec:   exec,
		cache:  cache,
		groups: make(map[int]*memmap.MemoryGroup),
	}
	for _, g := range client.Groups {
		p.groups[g.ID] = g
	}
	return p
}

// OnMemoryGroupChanged mirrors a mutated group into the decode
// context. Mutators call this at the point of mutation.
func (p *Poller) OnMemoryGroupChanged(ev memmap.GroupEvent) {
	if ev.Group == nil {
		return
	}
	p.mu.Lock()
	p.groups[ev.Group.ID] = ev.Group
	p.mu.Unlock()
	slog.Debug("memory group updated", "client", p.client.ID, "group", ev.Group.Name, "fields", ev.Fields)
}

func (p *Poller) group(id int) *memmap.MemoryGroup {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.groups[id]
}

// Run reads every block in declared order, stages all decodable
// variables, then refreshes the client status.
func (p *Poller) Run(ctx context.Context) error {
	return p.run(ctx, nil)
}

// RunSetup is the shorter-cadence job over the same blocks, staging
// only variables carrying the control attribute.
func (p *Poller) RunSetup(ctx context.Context) error {
	return p.run(ctx, func(v *memmap.Variable) bool {
		return v.HasAttribute(memmap.AttrControl)
	})
}

func (p *Poller) run(ctx context.Context, keep func(*memmap.Variable) bool) error {
	for _, b := range p.client.Blocks {
		resp, err := p.exec.Execute(ctx, &xgt.ContinuousReadRequest{
			Memory:  b.Memory,
			Address: b.Address,
			Count:   b.Count,
		})
		if err != nil {
			return fmt.Errorf("client %d block %s%d: %w", p.client.ID, b.Memory, b.Address, err)
		}

		g := p.group(b.GroupID)
		if g == nil {
			slog.Warn("block names unknown memory group", "client", p.client.ID, "group_id", b.GroupID)
			continue
		}
		p.stage(ctx, g, resp.Payload, keep)
	}
	return p.refreshStatus(ctx)
}

// stage decodes and caches every (kept) variable of the group. A
// variable the decoder rejects is logged and skipped; the rest of the
// block still stages.
func (p *Poller) stage(ctx context.Context, g *memmap.MemoryGroup, payload []byte, keep func(*memmap.Variable) bool) {
	for i := range g.Variables {
		v := &g.Variables[i]
		if keep != nil && !keep(v) {
			continue
		}

		val, err := memmap.Decode(payload, g, v)
		if err != nil {
			var verr *memmap.ValidationError
			if errors.As(err, &verr) {
				slog.Warn("variable decode rejected", "client", p.client.ID, "variable", v.Name, "err", err)
				continue
			}
			slog.Error("variable decode failed", "client", p.client.ID, "variable", v.Name, "err", err)
			continue
		}

		key := kv.Key(p.client.ID, v.ID)
		if err := p.cache.Set(ctx, key, val.Number, val.Type); err != nil {
			slog.Error("cache set failed", "key", key, "err", err)
			continue
		}
		if p.Snapshot != nil {
			if err := p.Snapshot.Record(p.client.ID, v.ID, val.Type, val.Number); err != nil {
				slog.Warn("snapshot record failed", "key", key, "err", err)
			}
		}
	}
}

// refreshStatus queries the PLC system status and records a
// transition when it changed.
func (p *Poller) refreshStatus(ctx context.Context) error {
	if p.Status == nil {
		return nil
	}
	resp, err := p.exec.Execute(ctx, &xgt.StatusRequest{})
	if err != nil {
		return fmt.Errorf("client %d status: %w", p.client.ID, err)
	}
	if resp.Status == nil {
		return fmt.Errorf("client %d: status response carried no status block", p.client.ID)
	}
	changed, err := p.Status.Observe(p.client.ID, resp.Status)
	if err != nil {
		return err
	}
	if changed {
		slog.Info("plc status changed", "client", p.client.ID, "status", resp.Status.SystemStatus)
	}
	return nil
}
