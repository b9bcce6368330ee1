// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wontakkang/jais-backend-sub000/internal/kv"
)

func TestBucketStart(t *testing.T) {
	loc := time.UTC
	at := time.Date(2026, 3, 14, 12, 7, 42, 0, loc)

	assert.Equal(t, time.Date(2026, 3, 14, 12, 6, 0, 0, loc), TwoMinute.BucketStart(at, loc))
	assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 0, loc), TenMinute.BucketStart(at, loc))
	assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 0, loc), Hourly.BucketStart(at, loc))
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, loc), Daily.BucketStart(at, loc))
}

func TestBucketStartFloorsInLocalZone(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	// 23:30 UTC is 08:30 the next day in Seoul; the daily bucket must
	// start at Seoul midnight, not UTC midnight.
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, seoul).UTC()
	assert.Equal(t, want, Daily.BucketStart(at, seoul))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in      any
		num     float64
		tag     kv.TypeTag
		numeric bool
	}{
		{nil, 0, kv.TagNull, false},
		{true, 1, kv.TagBool, true},
		{false, 0, kv.TagBool, true},
		{int(7), 7, kv.TagInt, true},
		{int64(-3), -3, kv.TagInt, true},
		{uint16(9), 9, kv.TagInt, true},
		{12.3, 12.3, kv.TagFloat, true},
		{"42", 42, kv.TagInt, true},
		{"12.3", 12.3, kv.TagFloat, true},
		{"true", 1, kv.TagBool, true},
		{`"12.3"`, 12.3, kv.TagFloat, true},
		{"RUN", 0, kv.TagStr, false},
		{`{"a":1}`, 0, kv.TagStr, false},
	}
	for _, tt := range tests {
		num, tag, numeric := Classify(tt.in)
		assert.Equal(t, tt.numeric, numeric, "input %v", tt.in)
		assert.Equal(t, tt.tag, tag, "input %v", tt.in)
		if tt.numeric {
			assert.InDelta(t, tt.num, num, 1e-9, "input %v", tt.in)
		}
	}
}

func TestTwoMinuteJobFromCache(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryStore()
	store := NewMemoryStore()

	require.NoError(t, cache.Set(ctx, kv.Key(1, 10), 12.3, kv.TagFloat))
	require.NoError(t, cache.Set(ctx, kv.Key(1, 11), 7, kv.TagInt))
	require.NoError(t, cache.Set(ctx, kv.Key(2, 12), "RUN", kv.TagStr))
	require.NoError(t, cache.Set(ctx, "not-a-sample", 1, kv.TagInt))

	r := &Runner{Cache: cache, Store: store, Loc: time.UTC}
	at := time.Date(2026, 3, 14, 12, 1, 30, 0, time.UTC)
	require.NoError(t, r.RunTwoMinute(ctx, at))

	bucket := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rows, err := store.Range(ctx, TwoMinute, bucket, bucket.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byVar := make(map[int]Row)
	for _, row := range rows {
		byVar[row.VarID] = row
	}

	temp := byVar[10]
	assert.Equal(t, 1, temp.ClientID)
	require.NotNil(t, temp.Value)
	assert.Equal(t, 12.3, *temp.Value)
	assert.Equal(t, kv.TagFloat, temp.ValueType)
	assert.Equal(t, 12.3, temp.Min)
	assert.Equal(t, 12.3, temp.Max)
	require.NotNil(t, temp.Avg)
	assert.Equal(t, 12.3, *temp.Avg)
	assert.Equal(t, int64(1), temp.Count)

	// Non-numeric strings keep the count at zero and only carry the tag.
	status := byVar[12]
	assert.Equal(t, int64(0), status.Count)
	assert.Nil(t, status.Value)
	assert.Nil(t, status.Avg)
	assert.Equal(t, kv.TagStr, status.ValueType)
}

func TestTwoMinuteJobIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryStore()
	store := NewMemoryStore()
	require.NoError(t, cache.Set(ctx, kv.Key(1, 42), 10.0, kv.TagFloat))

	r := &Runner{Cache: cache, Store: store, Loc: time.UTC}
	at := time.Date(2026, 3, 14, 12, 0, 10, 0, time.UTC)
	require.NoError(t, r.RunTwoMinute(ctx, at))

	bucket := TwoMinute.BucketStart(at, time.UTC)
	first, err := store.Range(ctx, TwoMinute, bucket, bucket.Add(2*time.Minute))
	require.NoError(t, err)

	require.NoError(t, r.RunTwoMinute(ctx, at))
	second, err := store.Range(ctx, TwoMinute, bucket, bucket.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func fineRow(ts time.Time, varID int, value float64) Row {
	v := value
	row := Row{
		Timestamp: ts,
		ClientID:  1,
		VarID:     varID,
		Value:     &v,
		ValueType: kv.TagFloat,
		Min:       value,
		Max:       value,
		Sum:       value,
		Count:     1,
	}
	row.finish()
	return row
}

func TestTenMinuteFoldsTwoMinuteRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	values := []float64{10, 12, 8, 14, 6}
	rows := make([]Row, 0, len(values))
	for i, v := range values {
		rows = append(rows, fineRow(base.Add(time.Duration(i)*2*time.Minute), 42, v))
	}
	require.NoError(t, store.Upsert(ctx, TwoMinute, rows))

	r := &Runner{Store: store, Loc: time.UTC}
	require.NoError(t, r.RunTenMinute(ctx, base.Add(30*time.Second)))

	got, err := store.Range(ctx, TenMinute, base, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)

	row := got[0]
	assert.Equal(t, 6.0, row.Min)
	assert.Equal(t, 14.0, row.Max)
	assert.Equal(t, 50.0, row.Sum)
	assert.Equal(t, int64(5), row.Count)
	require.NotNil(t, row.Avg)
	assert.Equal(t, 10.0, *row.Avg)
	require.NotNil(t, row.Value)
	assert.Equal(t, 10.0, *row.Value, "coarse value column carries the average")
}

func TestHourlyPrefersTenMinuteSource(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Six ten-minute rows, each folding five samples of value 10.
	tenRows := make([]Row, 0, 6)
	for i := 0; i < 6; i++ {
		avg := 10.0
		row := Row{
			Timestamp: base.Add(time.Duration(i) * 10 * time.Minute),
			ClientID:  1,
			VarID:     42,
			Value:     &avg,
			ValueType: kv.TagFloat,
			Min:       6,
			Max:       14,
			Sum:       50,
			Count:     5,
		}
		row.finish()
		tenRows = append(tenRows, row)
	}
	require.NoError(t, store.Upsert(ctx, TenMinute, tenRows))

	r := &Runner{Store: store, Loc: time.UTC}
	require.NoError(t, r.RunHourly(ctx, base.Add(time.Minute)))

	got, err := store.Range(ctx, Hourly, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(30), got[0].Count)
	require.NotNil(t, got[0].Avg)
	assert.Equal(t, 10.0, *got[0].Avg)
	assert.Equal(t, 6.0, got[0].Min)
	assert.Equal(t, 14.0, got[0].Max)
}

func TestHourlyFallsBackToTwoMinuteWhenSparse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Only two ten-minute slots for var 42: below the threshold, so
	// the hourly job must re-fold the 2-minute table instead.
	for i := 0; i < 2; i++ {
		avg := 99.0
		row := Row{
			Timestamp: base.Add(time.Duration(i) * 10 * time.Minute),
			ClientID:  1, VarID: 42,
			Value: &avg, ValueType: kv.TagFloat,
			Min: 99, Max: 99, Sum: 99, Count: 1,
		}
		row.finish()
		require.NoError(t, store.Upsert(ctx, TenMinute, []Row{row}))
	}

	fine := []Row{
		fineRow(base, 42, 10),
		fineRow(base.Add(2*time.Minute), 42, 20),
		fineRow(base.Add(4*time.Minute), 42, 30),
	}
	require.NoError(t, store.Upsert(ctx, TwoMinute, fine))

	r := &Runner{Store: store, Loc: time.UTC}
	require.NoError(t, r.RunHourly(ctx, base))

	got, err := store.Range(ctx, Hourly, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Count)
	assert.Equal(t, 60.0, got[0].Sum)
	assert.Equal(t, 10.0, got[0].Min)
	assert.Equal(t, 30.0, got[0].Max)
}

func TestHourlyFoldsVariableWithoutTenMinuteRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Var 7 only has 2-minute rows in the hour, as after a missed
	// ten-minute fire. The hourly job must still produce its row.
	fine := []Row{
		fineRow(base.Add(4*time.Minute), 7, 10),
		fineRow(base.Add(24*time.Minute), 7, 14),
	}
	require.NoError(t, store.Upsert(ctx, TwoMinute, fine))

	r := &Runner{Store: store, Loc: time.UTC}
	require.NoError(t, r.RunHourly(ctx, base))

	got, err := store.Range(ctx, Hourly, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)

	row := got[0]
	assert.Equal(t, 7, row.VarID)
	assert.Equal(t, int64(2), row.Count)
	assert.Equal(t, 10.0, row.Min)
	assert.Equal(t, 14.0, row.Max)
	assert.Equal(t, 24.0, row.Sum)
	require.NotNil(t, row.Avg)
	assert.Equal(t, 12.0, *row.Avg)
}

func TestRowInvariants(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryStore()
	store := NewMemoryStore()
	for i, v := range []float64{3.5, -1, 12, 0.25} {
		require.NoError(t, cache.Set(ctx, kv.Key(1, 100+i), v, kv.TagFloat))
	}

	r := &Runner{Cache: cache, Store: store, Loc: time.UTC}
	at := time.Date(2026, 3, 14, 9, 3, 0, 0, time.UTC)
	require.NoError(t, r.RunTwoMinute(ctx, at))

	bucket := TwoMinute.BucketStart(at, time.UTC)
	rows, err := store.Range(ctx, TwoMinute, bucket, bucket.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	for _, row := range rows {
		if row.Count == 0 {
			assert.Nil(t, row.Avg)
			continue
		}
		require.NotNil(t, row.Avg)
		assert.LessOrEqual(t, row.Min, *row.Avg)
		assert.LessOrEqual(t, *row.Avg, row.Max)
		assert.InDelta(t, row.Sum, *row.Avg*float64(row.Count), 1e-6)
	}
}
