// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package kv

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Snapshot keeps the latest numeric sample per variable in a
// memory-mapped file so current-value queries are warm immediately
// after a restart. String samples are not snapshotted.
//
// Layout:
//   - header: magic "JKVS" (4) | slot capacity (u32 LE)
//   - slot:   client_id (u32) | var_id (u32) | tag (1) | used (1) |
//     pad (2) | value (f64 LE)
type Snapshot struct {
	path string
	file *os.File

	mu    sync.Mutex
	data  mmap.MMap
	index map[string]int
	max   int
}

const (
	snapshotMagic      = "JKVS"
	snapshotHeaderSize = 8
	snapshotSlotSize   = 20

	slotTagBool  = 1
	slotTagInt   = 2
	slotTagFloat = 3
)

// OpenSnapshot maps (creating if needed) a snapshot file holding up
// to maxSlots samples.
func OpenSnapshot(path string, maxSlots int) (*Snapshot, error) {
	if maxSlots <= 0 {
		maxSlots = 4096
	}
	total := int64(snapshotHeaderSize + maxSlots*snapshotSlotSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("kv: open snapshot: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != total {
		if err := f.Truncate(total); err != nil {
			f.Close()
			return nil, fmt.Errorf("kv: resize snapshot: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("kv: mmap snapshot: %w", err)
	}

	s := &Snapshot{path: path, file: f, data: data, index: make(map[string]int), max: maxSlots}
	if string(data[0:4]) != snapshotMagic {
		// Fresh or foreign file: initialize.
		copy(data[0:4], snapshotMagic)
		binary.LittleEndian.PutUint32(data[4:8], uint32(maxSlots))
		for i := 0; i < maxSlots; i++ {
			s.slot(i)[9] = 0
		}
	}
	for i := 0; i < maxSlots; i++ {
		sl := s.slot(i)
		if sl[9] != 0 {
			key := Key(int(binary.LittleEndian.Uint32(sl[0:4])), int(binary.LittleEndian.Uint32(sl[4:8])))
			s.index[key] = i
		}
	}
	return s, nil
}

func (s *Snapshot) slot(i int) []byte {
	off := snapshotHeaderSize + i*snapshotSlotSize
	return s.data[off : off+snapshotSlotSize]
}

// Record stages one numeric sample into the snapshot. Non-numeric
// tags are ignored.
func (s *Snapshot) Record(clientID, varID int, tag TypeTag, value float64) error {
	var t byte
	switch tag {
	case TagBool:
		t = slotTagBool
	case TagInt:
		t = slotTagInt
	case TagFloat:
		t = slotTagFloat
	default:
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return fmt.Errorf("kv: snapshot closed")
	}

	key := Key(clientID, varID)
	i, ok := s.index[key]
	if !ok {
		if len(s.index) >= s.max {
			return fmt.Errorf("kv: snapshot full: %d slots", s.max)
		}
		i = len(s.index)
		s.index[key] = i
	}

	sl := s.slot(i)
	binary.LittleEndian.PutUint32(sl[0:4], uint32(clientID))
	binary.LittleEndian.PutUint32(sl[4:8], uint32(varID))
	sl[8] = t
	sl[9] = 1
	binary.LittleEndian.PutUint64(sl[12:20], math.Float64bits(value))
	return s.data.Flush()
}

// Restore loads every recorded sample into store and returns the
// count.
func (s *Snapshot) Restore(ctx context.Context, store Store) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return 0, fmt.Errorf("kv: snapshot closed")
	}

	n := 0
	for key, i := range s.index {
		sl := s.slot(i)
		value := math.Float64frombits(binary.LittleEndian.Uint64(sl[12:20]))

		var tag TypeTag
		var v any
		switch sl[8] {
		case slotTagBool:
			tag, v = TagBool, value != 0
		case slotTagInt:
			tag, v = TagInt, int(value)
		case slotTagFloat:
			tag, v = TagFloat, value
		default:
			continue
		}
		if err := store.Set(ctx, key, v, tag); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Close flushes, unmaps and closes the snapshot file.
func (s *Snapshot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.data != nil {
		if e := s.data.Flush(); e != nil {
			err = e
		}
		if e := s.data.Unmap(); e != nil {
			err = e
		}
		s.data = nil
	}
	if s.file != nil {
		if e := s.file.Close(); e != nil {
			err = e
		}
		s.file = nil
	}
	return err
}
