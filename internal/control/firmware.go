// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package control

import (
	"fmt"
	"strings"

	"github.com/wontakkang/jais-backend-sub000/mcu"
)

// FirmwareImage is a typed sequence of push chunks. Build one from
// real chunk data; ParseLegacyColonPayload exists only for the old
// ":"-separated upload format.
type FirmwareImage struct {
	Chunks [][]byte
}

// Validate rejects empty images and chunks the frame cannot carry.
func (img FirmwareImage) Validate() error {
	if len(img.Chunks) == 0 {
		return fmt.Errorf("control: firmware image has no chunks")
	}
	for i, chunk := range img.Chunks {
		if len(chunk) == 0 {
			return fmt.Errorf("control: firmware chunk %d is empty", i)
		}
		if len(chunk) > mcu.MaxDataLength {
			return fmt.Errorf("control: firmware chunk %d is %d bytes, frame carries at most %d", i, len(chunk), mcu.MaxDataLength)
		}
	}
	return nil
}

// ParseLegacyColonPayload splits the legacy upload format, a single
// string of chunks separated by literal ":" characters.
func ParseLegacyColonPayload(payload string) FirmwareImage {
	parts := strings.Split(payload, ":")
	chunks := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		chunks = append(chunks, []byte(p))
	}
	return FirmwareImage{Chunks: chunks}
}
