// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg

import (
	"bytes"
	"encoding/binary"
)

// Decode scans buf for complete telemetry frames and returns the
// decoded blocks together with the unconsumed remainder. It is a pure
// function and may be called repeatedly as more bytes arrive: the
// caller appends new data to the remainder and calls Decode again.
//
// Incomplete frames are never partially consumed. A marker byte that is
// not followed by a valid header is skipped silently; such false
// positives are routine on a noisy link and are not errors.
func Decode(buf []byte) (blocks []*SampleBlock, remainder []byte) {
	remainder = buf
	for {
		block, consumed, needMore := decodeFrame(remainder)
		if needMore {
			return blocks, remainder
		}
		if block != nil {
			blocks = append(blocks, block)
		}
		remainder = remainder[consumed:]
		if consumed == 0 {
			return blocks, remainder
		}
	}
}

// decodeFrame attempts to decode one frame from the start of buf. It
// returns the block (nil when only noise was skipped), the number of
// bytes consumed, and whether decoding must wait for more data. When
// needMore is true nothing has been consumed.
func decodeFrame(buf []byte) (block *SampleBlock, consumed int, needMore bool) {
	escPos := bytes.IndexByte(buf, ESC)
	if escPos < 0 {
		return nil, 0, false
	}
	if escPos+minFrameBytes > len(buf) {
		return nil, 0, true
	}
	if !validHeader(buf[escPos:]) {
		// Not a frame start; skip the marker and keep scanning.
		return nil, escPos + 1, false
	}

	label := buf[escPos+2]
	count := int(binary.LittleEndian.Uint16(buf[escPos+7 : escPos+9]))

	dataStart := escPos + frameHeaderSize
	dataEnd := dataStart + count*2
	if dataEnd > len(buf) {
		return nil, 0, true
	}

	// Without a following marker nearby we cannot tell whether the
	// trailing metadata has fully arrived yet.
	if !hasMarkerWithin(buf, dataEnd, nextMarkerLookahead) && dataEnd+minMetadataBytes > len(buf) {
		return nil, 0, true
	}

	samples := make([]uint16, count)
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(buf[dataStart+2*i : dataStart+2*i+2])
	}

	// The metadata window runs to the next marker or the 40-byte cap,
	// whichever comes first; consumption runs to the next marker or
	// the end of the buffer.
	metaEnd := min(dataEnd+maxMetadataBytes, len(buf))
	consumed = len(buf)
	if next := bytes.IndexByte(buf[dataEnd:], ESC); next >= 0 {
		consumed = dataEnd + next
		metaEnd = min(metaEnd, consumed)
	}
	metadata := bytes.Clone(buf[dataEnd:metaEnd])

	return NewSampleBlock(label, samples, metadata), consumed, false
}

// validHeader reports whether buf starts with a well-formed 9-byte
// frame header: ESC 'L' <label> EOT SOH GS <unused> <size_lo> <size_hi>.
func validHeader(buf []byte) bool {
	return buf[1] == 'L' && buf[3] == EOT && buf[4] == SOH && buf[5] == GS
}

func hasMarkerWithin(buf []byte, start, lookahead int) bool {
	end := min(start+lookahead, len(buf))
	return bytes.IndexByte(buf[start:end], ESC) >= 0
}

// Decoder accumulates bytes from a single device connection and decodes
// frames as they complete. It also retains every decoded block so that
// an exam id arriving on a later block can be backfilled onto earlier
// blocks of the same exam, which the device frequently leaves untagged.
//
// A Decoder serializes one byte stream; concurrent connections each
// need their own instance. Calls for a single stream must not be
// interleaved.
type Decoder struct {
	buf    []byte
	blocks []*SampleBlock
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends data to the internal buffer and decodes any frames that
// are now complete, returning the newly decoded blocks. Previously
// returned blocks may gain an ExamID as a side effect of the backfill.
func (d *Decoder) Feed(data []byte) []*SampleBlock {
	d.buf = append(d.buf, data...)
	blocks, rest := Decode(d.buf)
	d.buf = rest

	for _, b := range blocks {
		d.blocks = append(d.blocks, b)
		if b.ExamID != 0 {
			for _, prev := range d.blocks {
				if prev.ExamID == 0 {
					prev.ExamID = b.ExamID
				}
			}
		}
	}
	return blocks
}

// Blocks returns all blocks decoded so far, in arrival order.
func (d *Decoder) Blocks() []*SampleBlock {
	out := make([]*SampleBlock, len(d.blocks))
	copy(out, d.blocks)
	return out
}

// Pending returns the number of buffered bytes not yet decoded.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Clear discards the buffer and all retained blocks.
func (d *Decoder) Clear() {
	d.buf = nil
	d.blocks = nil
}
