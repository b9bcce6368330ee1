// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xgt

import "testing"

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		name    string
		plcInfo uint16
		cpuInfo byte
		want    DetailedStatus
	}{
		{
			name:    "cpuh running single",
			plcInfo: 0x01 | 0x01<<7,
			cpuInfo: 0xA0,
			want: DetailedStatus{
				CPUType: "XGK/I/R-CPUH", Composition: "single",
				CPUStatus: "normal", SystemStatus: "RUN", CPUSeries: "XGK",
			},
		},
		{
			name:    "cpu s stopped",
			plcInfo: 0x02 | 0x02<<7,
			cpuInfo: 0xB4,
			want: DetailedStatus{
				CPUType: "CPU S", Composition: "single",
				CPUStatus: "normal", SystemStatus: "STOP", CPUSeries: "XGB(IEC)",
			},
		},
		{
			name:    "redundant error debug",
			plcInfo: 0x05 | 1<<5 | 1<<6 | 0x08<<7,
			cpuInfo: 0xA8,
			want: DetailedStatus{
				CPUType: "CPU U", Composition: "redundant",
				CPUStatus: "error", SystemStatus: "DEBUG", CPUSeries: "XGR",
			},
		},
		{
			name:    "unknown fields",
			plcInfo: 0x1F,
			cpuInfo: 0x00,
			want: DetailedStatus{
				CPUType: "UNKNOWN", Composition: "single",
				CPUStatus: "normal", SystemStatus: "UNKNOWN",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeStatus(tt.plcInfo, tt.cpuInfo)
			if *got != tt.want {
				t.Fatalf("status expected %+v, actual %+v", tt.want, *got)
			}
		})
	}
}

func TestStatusResponseCarriesDecodedStatus(t *testing.T) {
	raw := BuildStatusResponse(2, 0x01|0x02<<7, 0xA0)
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status == nil || resp.Status.SystemStatus != "STOP" {
		t.Fatalf("expected STOP status, got %+v", resp.Status)
	}
}
