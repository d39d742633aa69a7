// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvasc/dppg"
)

// frame assembles a wire-format frame: 9-byte header, little-endian
// u16 samples, and the trailing metadata verbatim.
func frame(label byte, samples []uint16, metadata []byte) []byte {
	buf := []byte{dppg.ESC, 'L', label, dppg.EOT, dppg.SOH, dppg.GS, 0x00, 0, 0}
	binary.LittleEndian.PutUint16(buf[7:9], uint16(len(samples)))
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, s)
	}
	return append(buf, metadata...)
}

func rampSamples(n int) []uint16 {
	samples := make([]uint16, n)
	for i := range samples {
		samples[i] = uint16(1000 + i)
	}
	return samples
}

// examMetadata builds a metadata window carrying the exam-id pattern
// followed by the given hardware record (padded with 0xFF as needed).
func examMetadata(examID uint16, record []byte) []byte {
	meta := []byte{0x00, 0x00, 0x00, dppg.GS, 0, 0}
	binary.LittleEndian.PutUint16(meta[4:6], examID)
	meta = append(meta, record...)
	for len(meta) < 16 {
		meta = append(meta, 0xFF)
	}
	return meta
}

func TestDecodeRoundTrip(t *testing.T) {
	samples := rampSamples(50)
	buf := frame(dppg.LabelLeft, samples, examMetadata(1337, nil))

	blocks, remainder := dppg.Decode(buf)
	require.Len(t, blocks, 1)
	assert.Empty(t, remainder)

	b := blocks[0]
	assert.Equal(t, dppg.LabelLeft, b.Label)
	assert.Equal(t, samples, b.SamplesRaw)
	assert.Equal(t, samples, b.Samples) // clean ramp, nothing trimmed
	assert.Equal(t, uint16(1337), b.ExamID)
}

func TestDecodeStreamingEquivalence(t *testing.T) {
	buf := []byte{dppg.DLE, dppg.ACK} // link noise before the first frame
	buf = append(buf, frame(dppg.LabelRight, rampSamples(30), nil)...)
	buf = append(buf, frame(dppg.LabelRightTourniquet, rampSamples(25), examMetadata(7, nil))...)

	whole, wholeRem := dppg.Decode(buf)
	require.Len(t, whole, 2)
	assert.Empty(t, wholeRem)

	for split := 0; split <= len(buf); split++ {
		first, rem := dppg.Decode(buf[:split])
		second, _ := dppg.Decode(append(rem, buf[split:]...))
		blocks := append(first, second...)

		require.Lenf(t, blocks, 2, "split at %d", split)
		for i := range blocks {
			assert.Equal(t, whole[i].Label, blocks[i].Label)
			assert.Equal(t, whole[i].SamplesRaw, blocks[i].SamplesRaw)
		}
	}
}

func TestDecodeSkipsInvalidMarker(t *testing.T) {
	buf := []byte{dppg.ESC, 'X'} // marker not followed by a valid header
	buf = append(buf, frame(dppg.LabelLeft, rampSamples(20), examMetadata(3, nil))...)

	blocks, remainder := dppg.Decode(buf)
	require.Len(t, blocks, 1)
	assert.Empty(t, remainder)
	assert.Equal(t, uint16(3), blocks[0].ExamID)
}

func TestDecodeNeedsMoreData(t *testing.T) {
	full := frame(dppg.LabelLeft, rampSamples(20), examMetadata(9, nil))

	for _, tt := range []struct {
		name string
		cut  int
	}{
		{"partial header", 5},
		{"partial payload", 9 + 11},
		{"partial metadata", len(full) - 12},
	} {
		t.Run(tt.name, func(t *testing.T) {
			partial := full[:tt.cut]
			blocks, remainder := dppg.Decode(partial)
			assert.Empty(t, blocks)
			assert.Equal(t, partial, remainder, "nothing may be consumed")

			blocks, remainder = dppg.Decode(append(remainder, full[tt.cut:]...))
			require.Len(t, blocks, 1)
			assert.Empty(t, remainder)
			assert.Equal(t, uint16(9), blocks[0].ExamID)
		})
	}
}

func TestDecodeNoMarker(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04}
	blocks, remainder := dppg.Decode(buf)
	assert.Empty(t, blocks)
	assert.Equal(t, buf, remainder)
}

func TestDecodeHardwareRecord(t *testing.T) {
	record := []byte{
		100,        // To, samples
		14,         // Th, samples
		0x2C, 0x01, // amplitude 300
		0xA8, 0x61, // capacity 25000
		22,   // peak_raw
		7,    // Ti, seconds
		0x00, // flags
		0xAA, // trailer, undocumented
	}
	meta := []byte{dppg.GS, 0xE8, 0x03} // baseline 1000
	meta = append(meta, examMetadata(42, record)...)

	blocks, _ := dppg.Decode(frame(dppg.LabelLeftTourniquet, rampSamples(40), meta))
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Equal(t, uint16(42), b.ExamID)
	assert.Equal(t, 1000, b.HWBaseline)
	require.NotNil(t, b.HW)
	assert.Equal(t, 100, b.HW.ToSamples)
	assert.Equal(t, 14, b.HW.ThSamples)
	assert.Equal(t, 300, b.HW.Amplitude)
	assert.Equal(t, 25000, b.HW.CapacityX100)
	assert.Equal(t, 29, b.HW.PeakIndex, "peak_raw plus the pipeline delay offset")
	assert.Equal(t, 129, b.HW.EndIndex)
	assert.Equal(t, 7, b.HW.TiSeconds)
	assert.Equal(t, byte(0), b.HW.Flags)
}

func TestDecodeShortMetadataLeavesHardwareAbsent(t *testing.T) {
	// Exam-id pattern present, but the window ends before the record.
	meta := []byte{0x00, 0x00, 0x00, dppg.GS, 0x05, 0x00, 0x01, 0x02, 0x03, 0x04}

	blocks, _ := dppg.Decode(frame(dppg.LabelLeft, rampSamples(20), meta))
	require.Len(t, blocks, 1)
	assert.Equal(t, uint16(5), blocks[0].ExamID)
	assert.Nil(t, blocks[0].HW)
	assert.Equal(t, -1, blocks[0].HWBaseline)
}

func TestDecodeExamIDRangeGate(t *testing.T) {
	// The first pattern carries an out-of-range id (0); scanning must
	// continue past it to the valid one.
	meta := []byte{0x00, 0x00, 0x00, dppg.GS, 0x00, 0x00}
	meta = append(meta, examMetadata(1234, nil)...)

	blocks, _ := dppg.Decode(frame(dppg.LabelLeft, rampSamples(20), meta))
	require.Len(t, blocks, 1)
	assert.Equal(t, uint16(1234), blocks[0].ExamID)
}

func TestDecoderBackfillsExamID(t *testing.T) {
	// The first frame has no exam id; the second one does. The id is
	// backfilled onto the earlier block.
	buf := frame(dppg.LabelLeft, rampSamples(30), []byte{0xFF, 0xFF, 0xFF, 0xFF})
	buf = append(buf, frame(dppg.LabelRight, rampSamples(30), examMetadata(77, nil))...)

	dec := dppg.NewDecoder()
	dec.Feed(buf)

	blocks := dec.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, uint16(77), blocks[0].ExamID)
	assert.Equal(t, uint16(77), blocks[1].ExamID)
}

func TestDecoderFeedBytewise(t *testing.T) {
	buf := frame(dppg.LabelRight, rampSamples(25), examMetadata(8, nil))
	buf = append(buf, frame(dppg.LabelLeft, rampSamples(30), examMetadata(8, nil))...)

	dec := dppg.NewDecoder()
	var total int
	for _, b := range buf {
		total += len(dec.Feed([]byte{b}))
	}
	assert.Equal(t, 2, total)
	require.Len(t, dec.Blocks(), 2)
	assert.Equal(t, rampSamples(25), dec.Blocks()[0].SamplesRaw)
	assert.Equal(t, rampSamples(30), dec.Blocks()[1].SamplesRaw)

	dec.Clear()
	assert.Empty(t, dec.Blocks())
	assert.Zero(t, dec.Pending())
}

func TestDecodeAdversarialNoise(t *testing.T) {
	// A pile of markers and junk must terminate without producing
	// blocks or panicking.
	buf := make([]byte, 0, 4096)
	for i := 0; i < 1024; i++ {
		buf = append(buf, dppg.ESC, byte(i), byte(i>>3), 0x00)
	}
	blocks, remainder := dppg.Decode(buf)
	assert.Empty(t, blocks)
	assert.LessOrEqual(t, len(remainder), len(buf))
}
