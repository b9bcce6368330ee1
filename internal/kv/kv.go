// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package kv stages the latest decoded sample per variable under
// ASCII keys of the form "{client_id}:{var_id}". Writes replace
// without history; the aggregator periodically scans a snapshot of
// the key space.
package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypeTag classifies a staged value.
type TypeTag string

const (
	TagNull  TypeTag = "null"
	TagBool  TypeTag = "bool"
	TagInt   TypeTag = "int"
	TagFloat TypeTag = "float"
	TagStr   TypeTag = "str"
)

// Sample is the latest value staged for one variable.
type Sample struct {
	Value     any
	Type      TypeTag
	UpdatedAt time.Time
}

// Store is the process-wide cache. Implementations provide per-key
// atomic replacement; a Scan may observe a mix of updates from
// different writers.
type Store interface {
	Get(ctx context.Context, key string) (Sample, bool, error)
	Set(ctx context.Context, key string, value any, tag TypeTag) error
	// Scan returns every key matching the glob pattern; "*:*"
	// enumerates all staged samples.
	Scan(ctx context.Context, pattern string) (map[string]Sample, error)
	Close() error
}

// Key builds the cache key for a client/variable pair.
func Key(clientID, varID int) string {
	return fmt.Sprintf("%d:%d", clientID, varID)
}

// ParseKey splits a "{client_id}:{var_id}" key. Keys that are not two
// non-negative integers are rejected.
func ParseKey(key string) (clientID, varID int, ok bool) {
	i := strings.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return 0, 0, false
	}
	clientID, err := strconv.Atoi(key[:i])
	if err != nil || clientID < 0 {
		return 0, 0, false
	}
	varID, err = strconv.Atoi(key[i+1:])
	if err != nil || varID < 0 {
		return 0, 0, false
	}
	return clientID, varID, true
}
