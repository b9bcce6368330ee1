// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xgt

// DetailedStatus is the decoded view of the PLC info fields carried in
// a system status (0xEF) response header. JSON keys follow the names
// shown on the operator dashboard.
type DetailedStatus struct {
	CPUType      string `json:"CPU TYPE"`
	Composition  string `json:"COMPOSITION"`
	CPUStatus    string `json:"CPU STATUS"`
	SystemStatus string `json:"SYSTEM STATUS"`
	ErrorCode    int    `json:"ERROR CODE"`
	CPUSeries    string `json:"CPU SERIES,omitempty"`
}

// PLC info bit layout:
//
//	bits 0..4  CPU type
//	bit  5     composition (single / redundant)
//	bit  6     CPU status (normal / error)
//	bits 7..11 system status
func DecodeStatus(plcInfo uint16, cpuInfo byte) *DetailedStatus {
	ds := &DetailedStatus{}

	switch plcInfo & 0x1F {
	case 0x01:
		ds.CPUType = "XGK/I/R-CPUH"
	case 0x02:
		ds.CPUType = "CPU S"
	case 0x03:
		ds.CPUType = "CPU A"
	case 0x04:
		ds.CPUType = "CPU E"
	case 0x05:
		ds.CPUType = "CPU U"
	case 0x11:
		ds.CPUType = "CPUHN/SN/UN"
	default:
		ds.CPUType = "UNKNOWN"
	}

	if plcInfo&(1<<5) != 0 {
		ds.Composition = "redundant"
	} else {
		ds.Composition = "single"
	}

	if plcInfo&(1<<6) != 0 {
		ds.CPUStatus = "error"
	} else {
		ds.CPUStatus = "normal"
	}

	switch (plcInfo >> 7) & 0x1F {
	case 0x01:
		ds.SystemStatus = "RUN"
	case 0x02:
		ds.SystemStatus = "STOP"
	case 0x04:
		ds.SystemStatus = "ERROR"
	case 0x08:
		ds.SystemStatus = "DEBUG"
	default:
		ds.SystemStatus = "UNKNOWN"
	}

	switch cpuInfo {
	case 0xA0:
		ds.CPUSeries = "XGK"
	case 0xA4:
		ds.CPUSeries = "XGI"
	case 0xA8:
		ds.CPUSeries = "XGR"
	case 0xB0:
		ds.CPUSeries = "XGB(MK)"
	case 0xB4:
		ds.CPUSeries = "XGB(IEC)"
	}
	return ds
}
