// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package memmap

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wontakkang/jais-backend-sub000/internal/kv"
)

// Value is a decoded, scaled sample ready for the KV cache.
type Value struct {
	Number float64
	Type   kv.TypeTag
}

// Decode extracts the variable's typed, scaled value from a raw block.
// The decoder never silently truncates: anything out of bounds or of
// unknown type is a ValidationError.
func Decode(block []byte, g *MemoryGroup, v *Variable) (Value, error) {
	offset, err := v.byteOffset(g)
	if err != nil {
		return Value{}, err
	}
	width, err := v.DataType.ByteSize()
	if err != nil {
		return Value{}, err
	}
	if offset < 0 || offset+width > len(block) {
		return Value{}, &ValidationError{Reason: fmt.Sprintf(
			"%s: offset %d width %d outside block of %d bytes", v.Name, offset, width, len(block))}
	}

	if v.DataType == TypeBool {
		bit, err := v.bitIndex()
		if err != nil {
			return Value{}, err
		}
		if block[offset]&(1<<bit) != 0 {
			return Value{Number: 1, Type: kv.TagBool}, nil
		}
		return Value{Number: 0, Type: kv.TagBool}, nil
	}

	var raw float64
	switch v.DataType {
	case TypeSint:
		raw = float64(int8(block[offset]))
	case TypeUsint:
		raw = float64(block[offset])
	case TypeInt:
		raw = float64(int16(binary.LittleEndian.Uint16(block[offset:])))
	case TypeUint:
		raw = float64(binary.LittleEndian.Uint16(block[offset:]))
	case TypeDint:
		raw = float64(int32(binary.LittleEndian.Uint32(block[offset:])))
	case TypeUdint:
		raw = float64(binary.LittleEndian.Uint32(block[offset:]))
	case TypeFloat:
		raw = float64(math.Float32frombits(binary.LittleEndian.Uint32(block[offset:])))
	default:
		return Value{}, &ValidationError{Reason: fmt.Sprintf("unknown data type %q", string(v.DataType))}
	}

	scale := v.Scale
	if scale == 0 {
		scale = 1
	}
	value := clamp(raw*scale, v.Min, v.Max)

	tag := kv.TagInt
	if v.DataType == TypeFloat || scale != math.Trunc(scale) {
		tag = kv.TagFloat
	}
	return Value{Number: value, Type: tag}, nil
}

// clamp bounds value to [min, max]; min == max means no limit.
func clamp(value, min, max float64) float64 {
	if min >= max {
		return value
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// WritePayload is a wire-ready write target built by EncodeWrite.
type WritePayload struct {
	// Address is the direct-variable name to write, e.g. "%MW10"
	// or "%MX83" for a single bit.
	Address string
	Data    []byte
}

// EncodeWrite converts a user value into the payload for a single
// write. Scalars are divided by the scale, clamped, and packed
// little-endian; bools become a single-bit address with value 0/1.
func EncodeWrite(g *MemoryGroup, v *Variable, value float64) (WritePayload, error) {
	if v.DataType == TypeBool {
		offset, err := v.byteOffset(g)
		if err != nil {
			return WritePayload{}, err
		}
		bit, err := v.bitIndex()
		if err != nil {
			return WritePayload{}, err
		}
		device := bitDevice(v.Device)
		var b byte
		if value != 0 {
			b = 1
		}
		return WritePayload{
			Address: fmt.Sprintf("%s%d", device, offset*8+int(bit)),
			Data:    []byte{b},
		}, nil
	}

	if v.Scale == 0 {
		return WritePayload{}, &ValidationError{Reason: v.Name + ": scale must not be zero on write"}
	}
	raw := clamp(value, v.Min, v.Max) / v.Scale

	offset, err := v.byteOffset(g)
	if err != nil {
		return WritePayload{}, err
	}
	addr := fmt.Sprintf("%s%d", v.Device, offset)

	switch v.DataType {
	case TypeSint, TypeUsint:
		return WritePayload{Address: addr, Data: []byte{byte(int64(raw))}}, nil
	case TypeInt, TypeUint:
		data := make([]byte, 2)
		binary.LittleEndian.PutUint16(data, uint16(int64(raw)))
		return WritePayload{Address: addr, Data: data}, nil
	case TypeDint, TypeUdint:
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, uint32(int64(raw)))
		return WritePayload{Address: addr, Data: data}, nil
	case TypeFloat:
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, math.Float32bits(float32(raw)))
		return WritePayload{Address: addr, Data: data}, nil
	default:
		return WritePayload{}, &ValidationError{Reason: fmt.Sprintf("unknown data type %q", string(v.DataType))}
	}
}

// bitDevice rewrites a byte-oriented device prefix to its bit form:
// "%MB" becomes "%MX".
func bitDevice(device string) string {
	if len(device) == 3 {
		return device[:2] + "X"
	}
	return device
}
