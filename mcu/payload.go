// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mcu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Builders and parsers for the fixed per-command data layouts. All
// multi-byte fields are little-endian.

// PayloadError reports data that does not match a command's layout.
type PayloadError struct {
	Command byte
	Reason  string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("mcu: %s payload: %s", CommandName(e.Command), e.Reason)
}

// SerialNumber is the 8-byte device identity used by node selection.
type SerialNumber [8]byte

func (s SerialNumber) String() string {
	return fmt.Sprintf("% X", s[:])
}

// NodeSelect builds the serial-bus node selection request.
func NodeSelect(serial SerialNumber) *Frame {
	return &Frame{Command: CmdNodeSelectReq, Data: serial[:]}
}

// DIRead reads one digital input channel.
func DIRead(channel byte) *Frame {
	return &Frame{Command: CmdDIReadReq, Data: []byte{channel}}
}

// DIThresholdLevel values: 0 = 18V, 1 = 24V, 2 = 39V.
func DIThreshold(level byte) (*Frame, error) {
	if level > 2 {
		return nil, &PayloadError{Command: CmdDIThresholdWrite, Reason: fmt.Sprintf("level %d out of range 0..2", level)}
	}
	return &Frame{Command: CmdDIThresholdWrite, Data: []byte{level}}, nil
}

// DORead reads one digital output channel state.
func DORead(channel byte) *Frame {
	return &Frame{Command: CmdDOReadReq, Data: []byte{channel}}
}

// DOWrite sets a single digital output.
func DOWrite(channel, value byte) (*Frame, error) {
	if channel > 7 {
		return nil, &PayloadError{Command: CmdDOWrite, Reason: fmt.Sprintf("channel %d out of range 0..7", channel)}
	}
	if value > 1 {
		return nil, &PayloadError{Command: CmdDOWrite, Reason: fmt.Sprintf("value %d not 0/1", value)}
	}
	return &Frame{Command: CmdDOWrite, Data: []byte{channel, value}}, nil
}

// DOWriteAll sets all eight digital outputs at once.
func DOWriteAll(values [8]byte) *Frame {
	return &Frame{Command: CmdDOWriteAll, Data: values[:]}
}

// DIOReadAll queries every DI/DO state.
func DIOReadAll() *Frame {
	return &Frame{Command: CmdDIOReadAllReq}
}

// DIOState is the decoded DIO_READ_ALL response: one bit per channel.
type DIOState struct {
	DI [8]bool
	DO [8]bool
}

func ParseDIOState(data []byte) (*DIOState, error) {
	if len(data) != 2 {
		return nil, &PayloadError{Command: CmdDIOReadAllRes, Reason: fmt.Sprintf("want 2 bytes, have %d", len(data))}
	}
	st := &DIOState{}
	for i := 0; i < 8; i++ {
		st.DI[i] = data[0]&(1<<i) != 0
		st.DO[i] = data[1]&(1<<i) != 0
	}
	return st, nil
}

// AnalogRead reads a single analog channel.
func AnalogRead(channel byte) *Frame {
	return &Frame{Command: CmdAnalogReadReq, Data: []byte{channel}}
}

// AnalogReadAll reads every analog channel.
func AnalogReadAll() *Frame {
	return &Frame{Command: CmdAnalogReadAllReq}
}

// AnalogValue is one analog sample: channel id plus raw conversion.
type AnalogValue struct {
	Channel byte
	Raw     uint16
}

func ParseAnalogValue(data []byte) (*AnalogValue, error) {
	if len(data) != 3 {
		return nil, &PayloadError{Command: CmdAnalogReadRes, Reason: fmt.Sprintf("want 3 bytes, have %d", len(data))}
	}
	return &AnalogValue{Channel: data[0], Raw: binary.LittleEndian.Uint16(data[1:3])}, nil
}

func ParseAnalogValues(data []byte) ([]AnalogValue, error) {
	if len(data)%3 != 0 {
		return nil, &PayloadError{Command: CmdAnalogReadAllRes, Reason: fmt.Sprintf("length %d not a multiple of 3", len(data))}
	}
	out := make([]AnalogValue, 0, len(data)/3)
	for i := 0; i < len(data); i += 3 {
		out = append(out, AnalogValue{Channel: data[i], Raw: binary.LittleEndian.Uint16(data[i+1 : i+3])})
	}
	return out, nil
}

// SerialSetup configures a UART sub-channel.
type SerialSetup struct {
	Channel  byte
	BaudRate uint32
	Parity   byte // 0 none, 1 odd, 2 even
	StopBits byte
	ByteSize byte
}

func (s *SerialSetup) Frame() *Frame {
	data := make([]byte, 8)
	data[0] = s.Channel
	binary.LittleEndian.PutUint32(data[1:5], s.BaudRate)
	data[5] = s.Parity
	data[6] = s.StopBits
	data[7] = s.ByteSize
	return &Frame{Command: CmdSerialSetup, Data: data}
}

// SerialSetupRead queries a UART sub-channel configuration.
func SerialSetupRead(channel byte) *Frame {
	return &Frame{Command: CmdSerialSetupReadReq, Data: []byte{channel}}
}

func ParseSerialSetup(data []byte) (*SerialSetup, error) {
	if len(data) != 8 {
		return nil, &PayloadError{Command: CmdSerialSetupReadRes, Reason: fmt.Sprintf("want 8 bytes, have %d", len(data))}
	}
	return &SerialSetup{
		Channel:  data[0],
		BaudRate: binary.LittleEndian.Uint32(data[1:5]),
		Parity:   data[5],
		StopBits: data[6],
		ByteSize: data[7],
	}, nil
}

// SerialWrite passes payload through a UART sub-channel transparently.
func SerialWrite(channel byte, payload []byte) (*Frame, error) {
	if len(payload) > MaxDataLength-1 {
		return nil, &OversizeError{Length: len(payload)}
	}
	data := make([]byte, 0, 1+len(payload))
	data = append(data, channel)
	data = append(data, payload...)
	return &Frame{Command: CmdSerialWriteReq, Data: data}, nil
}

// AccelRead samples the accelerometer.
func AccelRead() *Frame {
	return &Frame{Command: CmdAccelReadReq}
}

// AccelSample is two float32 axis readings.
type AccelSample struct {
	X float32
	Y float32
}

func ParseAccelSample(data []byte) (*AccelSample, error) {
	if len(data) != 8 {
		return nil, &PayloadError{Command: CmdAccelReadRes, Reason: fmt.Sprintf("want 8 bytes, have %d", len(data))}
	}
	return &AccelSample{
		X: math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])),
	}, nil
}

// GPSRead samples the GPS receiver.
func GPSRead() *Frame {
	return &Frame{Command: CmdGPSReadReq}
}

// GPSFix is the decoded 22-byte GPS_READ response.
type GPSFix struct {
	Hour        byte
	Minute      byte
	Second      byte
	Latitude    float64
	South       bool
	Altitude    float64
	West        bool
	PositionFix byte
}

func ParseGPSFix(data []byte) (*GPSFix, error) {
	if len(data) != 22 {
		return nil, &PayloadError{Command: CmdGPSReadRes, Reason: fmt.Sprintf("want 22 bytes, have %d", len(data))}
	}
	return &GPSFix{
		Hour:        data[0],
		Minute:      data[1],
		Second:      data[2],
		Latitude:    math.Float64frombits(binary.LittleEndian.Uint64(data[3:11])),
		South:       data[11] != 0,
		Altitude:    math.Float64frombits(binary.LittleEndian.Uint64(data[12:20])),
		West:        data[20] != 0,
		PositionFix: data[21],
	}, nil
}

// FirmwareVersionRead queries the firmware version triplet.
func FirmwareVersionRead() *Frame {
	return &Frame{Command: CmdFirmwareVersionReadReq}
}

// FirmwareVersion is the 3-byte version triplet.
type FirmwareVersion struct {
	Major byte
	Minor byte
	Patch byte
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func ParseFirmwareVersion(data []byte) (*FirmwareVersion, error) {
	if len(data) != 3 {
		return nil, &PayloadError{Command: CmdFirmwareVersionReadRes, Reason: fmt.Sprintf("want 3 bytes, have %d", len(data))}
	}
	return &FirmwareVersion{Major: data[0], Minor: data[1], Patch: data[2]}, nil
}

// FirmwareChunk frames one chunk of a chunked firmware push.
func FirmwareChunk(chunk []byte) (*Frame, error) {
	if len(chunk) > MaxDataLength {
		return nil, &OversizeError{Length: len(chunk)}
	}
	return &Frame{Command: CmdFirmwareVersionUpdate, Data: chunk}, nil
}
