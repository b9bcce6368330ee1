// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package control issues operator commands to PLC and MCU endpoints.
// PLC commands open a fresh connection per invocation so they never
// interleave with scheduled polling reads; every command lands in the
// command log with its status transitions.
package control

// Result is the user-visible outcome of one command.
type Result struct {
	Status   string // "success" or "failure"
	Response string // hex bytes, empty when none arrived
	Message  string
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

func success(response, message string) Result {
	return Result{Status: StatusSuccess, Response: response, Message: message}
}

func failure(message string) Result {
	return Result{Status: StatusFailure, Message: message}
}
