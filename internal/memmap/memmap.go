// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package memmap models the configured memory map of a device: named
// groups of bytes read in one transaction, and the typed, scaled
// variables living inside them.
package memmap

import (
	"fmt"
	"math"
)

// DataType of a variable inside a read block.
type DataType string

const (
	TypeBool  DataType = "bool"
	TypeSint  DataType = "sint"
	TypeUsint DataType = "usint"
	TypeInt   DataType = "int"
	TypeUint  DataType = "uint"
	TypeDint  DataType = "dint"
	TypeUdint DataType = "udint"
	TypeFloat DataType = "float"
)

// ByteSize returns the wire width of the data type.
func (t DataType) ByteSize() (int, error) {
	switch t {
	case TypeBool, TypeSint, TypeUsint:
		return 1, nil
	case TypeInt, TypeUint:
		return 2, nil
	case TypeDint, TypeUdint, TypeFloat:
		return 4, nil
	default:
		return 0, &ValidationError{Reason: fmt.Sprintf("unknown data type %q", string(t))}
	}
}

// Unit is the addressing granularity of a variable.
type Unit string

const (
	UnitBit   Unit = "bit"
	UnitByte  Unit = "byte"
	UnitWord  Unit = "word"
	UnitDword Unit = "dword"
	UnitLword Unit = "lword"
)

// ByteSize returns the multiplier applied to the integer address part.
func (u Unit) ByteSize() (int, error) {
	switch u {
	case UnitBit, UnitByte:
		return 1, nil
	case UnitWord:
		return 2, nil
	case UnitDword:
		return 4, nil
	case UnitLword:
		return 8, nil
	default:
		return 0, &ValidationError{Reason: fmt.Sprintf("unknown unit %q", string(u))}
	}
}

// Variable attribute flags.
const (
	AttrMonitor = "monitor"
	AttrControl = "control"
	AttrRecord  = "record"
	AttrAlarm   = "alarm"
)

// Variable is the semantic description of one scalar inside a read
// block. Address is a float whose integer part is the unit offset and
// whose fractional part names a bit 0..7 for bool variables.
type Variable struct {
	ID         int
	Name       string
	Device     string // memory prefix, e.g. "%MB"
	Address    float64
	DataType   DataType
	Unit       Unit
	Scale      float64
	Offset     string
	Attributes []string
	Min        float64
	Max        float64

	// UseGroupBaseAddress adds the group's byte offset before the
	// variable's own.
	UseGroupBaseAddress bool
}

// HasAttribute reports whether the variable carries the given flag.
func (v *Variable) HasAttribute(attr string) bool {
	for _, a := range v.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// byteOffset resolves the variable's byte offset inside its group
// block.
func (v *Variable) byteOffset(g *MemoryGroup) (int, error) {
	unitSize, err := v.Unit.ByteSize()
	if err != nil {
		return 0, err
	}
	offset := int(v.Address) * unitSize
	if v.UseGroupBaseAddress && g != nil {
		offset += int(g.StartAddress)
	}
	return offset, nil
}

// bitIndex extracts the fractional bit index of a bool address.
func (v *Variable) bitIndex() (uint, error) {
	frac := v.Address - math.Floor(v.Address)
	// The fraction names a decimal digit: 10.3 is byte 10, bit 3.
	bit := int(math.Round(frac * 10))
	if bit < 0 || bit > 7 {
		return 0, &ValidationError{Reason: fmt.Sprintf("%s: bit index %d out of range 0..7", v.Name, bit)}
	}
	return uint(bit), nil
}

// MemoryGroup is a named contiguous byte block read in one
// transaction.
type MemoryGroup struct {
	ID       int
	ClientID int
	Name     string
	SizeByte int
	// StartAddress: integer part is the byte offset of the block,
	// fractional part a bit index (unused on groups in practice).
	StartAddress float64
	Variables    []Variable
}

// Validate checks the group invariant: the block must cover every
// variable.
func (g *MemoryGroup) Validate() error {
	for i := range g.Variables {
		v := &g.Variables[i]
		offset, err := v.byteOffset(g)
		if err != nil {
			return err
		}
		width, err := v.DataType.ByteSize()
		if err != nil {
			return err
		}
		if offset+width > g.SizeByte {
			return &ValidationError{Reason: fmt.Sprintf(
				"group %s: variable %s at offset %d width %d exceeds block size %d",
				g.Name, v.Name, offset, width, g.SizeByte)}
		}
	}
	return nil
}

// ValidationError reports a memory map or value the decoder refuses.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "memmap: " + e.Reason
}
