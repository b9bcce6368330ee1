// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wontakkang/jais-backend-sub000/internal/kv"
)

// minCoarseSlots is the ten-minute slot count below which the hourly
// and daily jobs fall back to the 2-minute table for a variable.
const minCoarseSlots = 3

// Runner executes the aggregation jobs. The 2-minute job snapshots
// the KV cache; the coarser jobs fold the table one resolution below.
// All jobs are idempotent upserts keyed by (bucket, var_id).
type Runner struct {
	Cache kv.Store
	Store Store
	// Loc is the bucket-flooring timezone. Buckets are stored as UTC
	// instants; the zone matters only at flooring time.
	Loc *time.Location
}

func (r *Runner) loc() *time.Location {
	if r.Loc == nil {
		return time.Local
	}
	return r.Loc
}

// RunTwoMinute stages one row per "{client_id}:{var_id}" key found in
// the cache into the 2-minute table for the bucket containing at.
func (r *Runner) RunTwoMinute(ctx context.Context, at time.Time) error {
	bucket := TwoMinute.BucketStart(at, r.loc())

	samples, err := r.Cache.Scan(ctx, "*:*")
	if err != nil {
		return fmt.Errorf("aggregate: scan cache: %w", err)
	}

	rows := make([]Row, 0, len(samples))
	for key, s := range samples {
		clientID, varID, ok := kv.ParseKey(key)
		if !ok {
			continue
		}

		row := Row{Timestamp: bucket, ClientID: clientID, VarID: varID}
		num, tag, numeric := Classify(s.Value)
		row.ValueType = tag
		if numeric {
			v := num
			row.Value = &v
			row.Min = num
			row.Max = num
			row.Sum = num
			row.Count = 1
		}
		row.finish()
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].VarID < rows[j].VarID })
	return r.Store.Upsert(ctx, TwoMinute, rows)
}

// RunTenMinute folds the 2-minute rows of the bucket containing at.
func (r *Runner) RunTenMinute(ctx context.Context, at time.Time) error {
	return r.runCascade(ctx, TenMinute, at)
}

// RunHourly folds ten-minute rows, falling back to 2-minute rows for
// variables with too few ten-minute slots.
func (r *Runner) RunHourly(ctx context.Context, at time.Time) error {
	return r.runCascade(ctx, Hourly, at)
}

// RunDaily folds a day the same way the hourly job folds an hour.
func (r *Runner) RunDaily(ctx context.Context, at time.Time) error {
	return r.runCascade(ctx, Daily, at)
}

type accumulator struct {
	clientID int
	groupID  int
	tag      kv.TypeTag
	min      float64
	max      float64
	sum      float64
	count    int64
	slots    int
}

func (a *accumulator) fold(row Row) {
	a.clientID = row.ClientID
	if row.GroupID != 0 {
		a.groupID = row.GroupID
	}
	if row.ValueType != "" && row.ValueType != kv.TagNull {
		a.tag = row.ValueType
	}
	a.slots++

	if row.Count == 0 {
		return
	}
	sum := row.Sum
	if sum == 0 && row.Avg != nil {
		sum = *row.Avg * float64(row.Count)
	}
	if a.count == 0 || row.Min < a.min {
		a.min = row.Min
	}
	if a.count == 0 || row.Max > a.max {
		a.max = row.Max
	}
	a.sum += sum
	a.count += row.Count
}

func (r *Runner) runCascade(ctx context.Context, res Resolution, at time.Time) error {
	source := TenMinute
	if res == TenMinute {
		source = TwoMinute
	}

	bucket := res.BucketStart(at, r.loc())
	end := bucket.Add(res.Duration())

	srcRows, err := r.Store.Range(ctx, source, bucket, end)
	if err != nil {
		return err
	}

	acc := make(map[int]*accumulator)
	for _, row := range srcRows {
		a, ok := acc[row.VarID]
		if !ok {
			a = &accumulator{}
			acc[row.VarID] = a
		}
		a.fold(row)
	}

	// Hourly and daily prefer the ten-minute source only when enough
	// slots exist; variables below the threshold, including those
	// with no ten-minute row at all, re-fold from the 2-minute table.
	if res != TenMinute {
		fineRows, err := r.Store.Range(ctx, TwoMinute, bucket, end)
		if err != nil {
			return err
		}
		sparse := make(map[int]bool)
		for _, row := range fineRows {
			a, ok := acc[row.VarID]
			if !ok || a.slots < minCoarseSlots {
				sparse[row.VarID] = true
			}
		}
		for varID := range sparse {
			acc[varID] = &accumulator{}
		}
		for _, row := range fineRows {
			if sparse[row.VarID] {
				acc[row.VarID].fold(row)
			}
		}
	}

	rows := make([]Row, 0, len(acc))
	for varID, a := range acc {
		row := Row{
			Timestamp: bucket,
			ClientID:  a.clientID,
			GroupID:   a.groupID,
			VarID:     varID,
			ValueType: a.tag,
			Min:       a.min,
			Max:       a.max,
			Sum:       a.sum,
			Count:     a.count,
		}
		row.finish()
		// At coarse resolutions the value column carries the bucket
		// average rather than a last sample.
		row.Value = row.Avg
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].VarID < rows[j].VarID })
	return r.Store.Upsert(ctx, res, rows)
}
