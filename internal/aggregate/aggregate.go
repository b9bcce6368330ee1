// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package aggregate rolls staged samples into fixed-resolution
// min/max/avg/sum/count buckets: the cache feeds the 2-minute table,
// and each coarser table folds the one below it.
package aggregate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/wontakkang/jais-backend-sub000/internal/kv"
)

// Resolution of an aggregate table.
type Resolution int

const (
	TwoMinute Resolution = iota
	TenMinute
	Hourly
	Daily
)

func (r Resolution) String() string {
	switch r {
	case TwoMinute:
		return "2min"
	case TenMinute:
		return "10min"
	case Hourly:
		return "1hour"
	case Daily:
		return "daily"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// Table names the backing table of the resolution.
func (r Resolution) Table() string {
	return "data_" + r.String()
}

// Duration is the bucket width.
func (r Resolution) Duration() time.Duration {
	switch r {
	case TwoMinute:
		return 2 * time.Minute
	case TenMinute:
		return 10 * time.Minute
	case Hourly:
		return time.Hour
	case Daily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// BucketStart floors t to the resolution boundary in loc and returns
// the boundary as a UTC instant.
func (r Resolution) BucketStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	var b time.Time
	switch r {
	case TwoMinute:
		b = time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute()-lt.Minute()%2, 0, 0, loc)
	case TenMinute:
		b = time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute()-lt.Minute()%10, 0, 0, loc)
	case Hourly:
		b = time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
	case Daily:
		b = time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	default:
		b = lt
	}
	return b.UTC()
}

// Row is one (bucket, variable) aggregate. Timestamp is the bucket
// start as a UTC instant. Value and Avg are nil when Count is zero.
type Row struct {
	Timestamp time.Time
	ClientID  int
	GroupID   int
	VarID     int
	Value     *float64
	ValueType kv.TypeTag
	Min       float64
	Max       float64
	Avg       *float64
	Sum       float64
	Count     int64
}

// finish derives Avg from Sum and Count.
func (r *Row) finish() {
	if r.Count > 0 {
		avg := r.Sum / float64(r.Count)
		r.Avg = &avg
	} else {
		r.Avg = nil
	}
}

// Classify coerces a staged value to a number and a type tag.
// Booleans become 0/1, numeric strings parse to their numeric kind,
// JSON-encoded primitives decode recursively, and anything else is a
// plain string with no numeric part.
func Classify(value any) (num float64, tag kv.TypeTag, numeric bool) {
	switch v := value.(type) {
	case nil:
		return 0, kv.TagNull, false
	case bool:
		if v {
			return 1, kv.TagBool, true
		}
		return 0, kv.TagBool, true
	case int:
		return float64(v), kv.TagInt, true
	case int8:
		return float64(v), kv.TagInt, true
	case int16:
		return float64(v), kv.TagInt, true
	case int32:
		return float64(v), kv.TagInt, true
	case int64:
		return float64(v), kv.TagInt, true
	case uint:
		return float64(v), kv.TagInt, true
	case uint8:
		return float64(v), kv.TagInt, true
	case uint16:
		return float64(v), kv.TagInt, true
	case uint32:
		return float64(v), kv.TagInt, true
	case uint64:
		return float64(v), kv.TagInt, true
	case float32:
		return float64(v), kv.TagFloat, true
	case float64:
		return v, kv.TagFloat, true
	case []byte:
		return classifyString(string(v))
	case string:
		return classifyString(v)
	case json.Number:
		return classifyString(v.String())
	default:
		return 0, kv.TagStr, false
	}
}

func classifyString(s string) (float64, kv.TypeTag, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(n), kv.TagInt, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, kv.TagFloat, true
	}
	// A JSON-encoded primitive ("true", "\"12.3\"") decodes to a
	// value we can classify again.
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err == nil {
		if inner, ok := decoded.(string); ok && inner == s {
			return 0, kv.TagStr, false
		}
		return Classify(decoded)
	}
	return 0, kv.TagStr, false
}
