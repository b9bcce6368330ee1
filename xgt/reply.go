// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xgt

// Reply builders produce device-side frames. The production poller
// only decodes these; the builders serve loopback servers in tests and
// the simulator tooling.

func encodeReply(invokeID uint16, plcInfo uint16, cpuInfo byte, instruction []byte) []byte {
	h := Header{
		PLCInfo:  plcInfo,
		CPUInfo:  cpuInfo,
		Source:   SourceResponse,
		InvokeID: invokeID,
		Length:   uint16(len(instruction)),
	}
	return append(h.Encode(), instruction...)
}

// BuildReadResponse frames a continuous-read response carrying payload.
func BuildReadResponse(invokeID uint16, payload []byte) []byte {
	ins := make([]byte, 0, 12+len(payload))
	ins = appendUint16(ins, CmdContinuousReadRes)
	ins = appendUint16(ins, DataTypeContinuous)
	ins = appendUint16(ins, 0) // error state
	ins = appendUint16(ins, 0) // reserved
	ins = appendUint16(ins, 1) // block count
	ins = appendUint16(ins, uint16(len(payload)))
	ins = append(ins, payload...)
	return encodeReply(invokeID, 0, 0, ins)
}

// BuildWriteResponse frames a continuous-write acknowledgement.
func BuildWriteResponse(invokeID uint16) []byte {
	ins := make([]byte, 0, 10)
	ins = appendUint16(ins, CmdContinuousWriteRes)
	ins = appendUint16(ins, DataTypeContinuous)
	ins = appendUint16(ins, 0) // error state
	ins = appendUint16(ins, 0) // reserved
	ins = appendUint16(ins, 1) // block count
	return encodeReply(invokeID, 0, 0, ins)
}

// BuildStatusResponse frames a system status response whose header
// carries the given PLC and CPU info words.
func BuildStatusResponse(invokeID uint16, plcInfo uint16, cpuInfo byte) []byte {
	ins := make([]byte, 0, 6)
	ins = appendUint16(ins, CmdSystemStatus)
	ins = appendUint16(ins, 0)
	ins = appendUint16(ins, 0)
	return encodeReply(invokeID, plcInfo, cpuInfo, ins)
}

// BuildErrorResponse frames a device error reply with the given code.
func BuildErrorResponse(invokeID uint16, command uint16, code uint16) []byte {
	ins := make([]byte, 0, 8)
	ins = appendUint16(ins, command)
	ins = appendUint16(ins, DataTypeContinuous)
	ins = appendUint16(ins, errorFlag)
	ins = appendUint16(ins, code)
	return encodeReply(invokeID, 0, 0, ins)
}
