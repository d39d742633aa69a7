// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg

import "encoding/binary"

// parseMetadata recovers the exam id, the device baseline and the
// hardware parameter record from the trailing metadata of a frame.
//
// The layout was inferred from a limited capture set, so every access
// is bounds-checked and nothing past the documented bytes is
// interpreted. Three independent pieces may be present:
//
//   - a leading GS followed by the baseline as u16 little-endian,
//   - the pattern 00 00 00 GS anywhere in the window, followed by the
//     exam id as u16 little-endian (accepted only in [1, 9999]),
//   - when an exam id matched, a fixed 10-byte record with the
//     firmware-computed parameters immediately after it.
//
// A metadata window too short for the record leaves hw nil; the
// analysis then falls back to the software path.
func parseMetadata(meta []byte) (examID uint16, baseline int, hw *HardwareRecord) {
	baseline = -1
	if len(meta) >= 3 && meta[0] == GS {
		baseline = int(binary.LittleEndian.Uint16(meta[1:3]))
	}

	for i := 0; i+6 <= len(meta); i++ {
		if meta[i] != 0x00 || meta[i+1] != 0x00 || meta[i+2] != 0x00 || meta[i+3] != GS {
			continue
		}
		id := binary.LittleEndian.Uint16(meta[i+4 : i+6])
		if id < minExamID || id > maxExamID {
			continue
		}
		examID = id
		if i+6+hardwareRecordSize <= len(meta) {
			hw = parseHardwareRecord(meta[i+6 : i+6+hardwareRecordSize])
		}
		break
	}
	return examID, baseline, hw
}

// parseHardwareRecord decodes the fixed 10-byte record following a
// matched exam id:
//
//	[To_samples u8][Th_samples u8][amplitude u16 LE][capacity_x100 u16 LE]
//	[peak_raw u8][Ti_seconds u8][flags u8][trailer u8]
//
// The trailer byte is undocumented and ignored.
func parseHardwareRecord(rec []byte) *HardwareRecord {
	hw := &HardwareRecord{
		ToSamples:    int(rec[0]),
		ThSamples:    int(rec[1]),
		Amplitude:    int(binary.LittleEndian.Uint16(rec[2:4])),
		CapacityX100: int(binary.LittleEndian.Uint16(rec[4:6])),
		PeakIndex:    int(rec[6]) + hardwarePeakOffset,
		TiSeconds:    int(rec[7]),
		Flags:        rec[8],
	}
	hw.EndIndex = hw.PeakIndex + hw.ToSamples
	return hw
}
