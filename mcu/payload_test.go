// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mcu

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestGPSFixLayout(t *testing.T) {
	data := make([]byte, 22)
	data[0], data[1], data[2] = 13, 45, 59
	binary.LittleEndian.PutUint64(data[3:11], math.Float64bits(37.5665))
	data[11] = 0
	binary.LittleEndian.PutUint64(data[12:20], math.Float64bits(82.25))
	data[20] = 1
	data[21] = 2

	fix, err := ParseGPSFix(data)
	if err != nil {
		t.Fatal(err)
	}
	if fix.Hour != 13 || fix.Minute != 45 || fix.Second != 59 {
		t.Fatalf("time mismatch: %+v", fix)
	}
	if fix.Latitude != 37.5665 || fix.South {
		t.Fatalf("latitude mismatch: %+v", fix)
	}
	if fix.Altitude != 82.25 || !fix.West || fix.PositionFix != 2 {
		t.Fatalf("altitude/fix mismatch: %+v", fix)
	}

	if _, err := ParseGPSFix(data[:21]); err == nil {
		t.Fatal("expected length error")
	}
}

func TestAccelSampleLayout(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], math.Float32bits(-0.5))
	binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(9.81))

	s, err := ParseAccelSample(data)
	if err != nil {
		t.Fatal(err)
	}
	if s.X != -0.5 || s.Y != 9.81 {
		t.Fatalf("sample mismatch: %+v", s)
	}
}

func TestDOWriteValidation(t *testing.T) {
	f, err := DOWrite(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if f.Command != CmdDOWrite || f.Data[0] != 3 || f.Data[1] != 1 {
		t.Fatalf("unexpected frame: %+v", f)
	}

	if _, err := DOWrite(8, 1); err == nil {
		t.Fatal("expected channel range error")
	}
	if _, err := DOWrite(0, 2); err == nil {
		t.Fatal("expected value range error")
	}
}

func TestDIThresholdValidation(t *testing.T) {
	for level := byte(0); level <= 2; level++ {
		if _, err := DIThreshold(level); err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
	}
	if _, err := DIThreshold(3); err == nil {
		t.Fatal("expected level range error")
	}
}

func TestSerialSetupRoundTrip(t *testing.T) {
	in := &SerialSetup{Channel: 2, BaudRate: 19200, Parity: 1, StopBits: 1, ByteSize: 8}
	out, err := ParseSerialSetup(in.Frame().Data)
	if err != nil {
		t.Fatal(err)
	}
	if *out != *in {
		t.Fatalf("setup mismatch: %+v vs %+v", out, in)
	}
}

func TestParseDIOState(t *testing.T) {
	st, err := ParseDIOState([]byte{0b0000_0101, 0b1000_0000})
	if err != nil {
		t.Fatal(err)
	}
	if !st.DI[0] || st.DI[1] || !st.DI[2] {
		t.Fatalf("DI mismatch: %+v", st.DI)
	}
	if !st.DO[7] || st.DO[0] {
		t.Fatalf("DO mismatch: %+v", st.DO)
	}
}

func TestFirmwareVersion(t *testing.T) {
	v, err := ParseFirmwareVersion([]byte{1, 4, 2})
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "1.4.2" {
		t.Fatalf("version expected 1.4.2, actual %s", v)
	}
}
