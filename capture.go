// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Traffic directions recorded in a capture file.
const (
	DirectionRX byte = 'R' // device to host
	DirectionTX byte = 'T' // host to device
)

// CaptureChunk is one direction-tagged chunk of link traffic from a
// sniffer capture file.
type CaptureChunk struct {
	TimestampMS uint32 // milliseconds, relative to an arbitrary origin
	Direction   byte   // DirectionRX or DirectionTX
	Data        []byte
}

// ReadCapture parses a raw sniffer capture. Each record is framed as
//
//	[timestamp_ms u32 LE][direction u8][length u16 LE][payload]
//
// so captured sessions can be replayed through Decode offline. A
// truncated trailing record is discarded silently, matching how
// captures end when the sniffer is killed mid-record.
func ReadCapture(r io.Reader) ([]CaptureChunk, error) {
	br := bufio.NewReader(r)

	var chunks []CaptureChunk
	for {
		var hdr [7]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return chunks, nil
			}
			return nil, fmt.Errorf("error reading capture record header: %w", err)
		}

		data := make([]byte, binary.LittleEndian.Uint16(hdr[5:7]))
		if _, err := io.ReadFull(br, data); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return chunks, nil
			}
			return nil, fmt.Errorf("error reading capture record payload: %w", err)
		}

		chunks = append(chunks, CaptureChunk{
			TimestampMS: binary.LittleEndian.Uint32(hdr[0:4]),
			Direction:   hdr[4],
			Data:        data,
		})
	}
}

// ReceivedBytes concatenates the device-to-host payloads of a capture
// in order, ready to be fed to Decode.
func ReceivedBytes(chunks []CaptureChunk) []byte {
	var n int
	for _, c := range chunks {
		if c.Direction == DirectionRX {
			n += len(c.Data)
		}
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		if c.Direction == DirectionRX {
			out = append(out, c.Data...)
		}
	}
	return out
}
