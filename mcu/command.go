// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mcu

// Command codes of the MCU serial protocol.
const (
	CmdNodeSelectReq = 0x20
	CmdNodeSelectRes = 0x21

	CmdNak = 0x23
	CmdAck = 0x24

	CmdDIReadReq        = 0x30
	CmdDIThresholdWrite = 0x31
	CmdDOReadReq        = 0x32
	CmdDOWrite          = 0x33
	CmdDIReadRes        = 0x40
	CmdDOReadRes        = 0x41
	CmdDIOReadAllReq    = 0x42
	CmdDIOReadAllRes    = 0x43
	CmdDOWriteAll       = 0x44

	CmdAnalogReadReq    = 0x50
	CmdAnalogReadAllReq = 0x51
	CmdAnalogReadRes    = 0x60
	CmdAnalogReadAllRes = 0x61

	CmdSerialSetup        = 0x70
	CmdSerialSetupReadReq = 0x71
	CmdSerialWriteReq     = 0x80
	CmdSerialWriteRes     = 0x81
	CmdSerialSetupReadRes = 0x82

	CmdAccelReadReq = 0x90
	CmdAccelReadRes = 0x91
	CmdGPSReadReq   = 0x92
	CmdGPSReadRes   = 0x93

	CmdFirmwareVersionReadReq = 0xA0
	CmdFirmwareVersionReadRes = 0xA1
	CmdFirmwareVersionUpdate  = 0xA2
)

// CommandName maps a code to its protocol name for logs and the
// command history.
func CommandName(code byte) string {
	switch code {
	case CmdNodeSelectReq, CmdNodeSelectRes:
		return "NODE_SELECT"
	case CmdNak:
		return "NAK"
	case CmdAck:
		return "ACK"
	case CmdDIReadReq, CmdDIReadRes:
		return "DI_READ"
	case CmdDIThresholdWrite:
		return "DI_THRESHOLD_WRITE"
	case CmdDOReadReq, CmdDOReadRes:
		return "DO_READ"
	case CmdDOWrite:
		return "DO_WRITE"
	case CmdDOWriteAll:
		return "DO_WRITE_ALL"
	case CmdDIOReadAllReq, CmdDIOReadAllRes:
		return "DIO_READ_ALL"
	case CmdAnalogReadReq, CmdAnalogReadRes:
		return "ANALOG_READ"
	case CmdAnalogReadAllReq, CmdAnalogReadAllRes:
		return "ANALOG_READ_ALL"
	case CmdSerialSetup:
		return "SERIAL_SETUP"
	case CmdSerialSetupReadReq, CmdSerialSetupReadRes:
		return "SERIAL_SETUP_READ"
	case CmdSerialWriteReq, CmdSerialWriteRes:
		return "SERIAL_WRITE"
	case CmdAccelReadReq, CmdAccelReadRes:
		return "ACCEL_READ"
	case CmdGPSReadReq, CmdGPSReadRes:
		return "GPS_READ"
	case CmdFirmwareVersionReadReq, CmdFirmwareVersionReadRes:
		return "FIRMWARE_VERSION_READ"
	case CmdFirmwareVersionUpdate:
		return "FIRMWARE_VERSION_UPDATE"
	default:
		return "UNKNOWN"
	}
}
