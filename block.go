// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg

import (
	"fmt"
	"sort"
)

// SampleBlock is one decoded waveform segment: the samples of a single
// measurement together with the channel label and whatever metadata the
// device appended to the frame.
type SampleBlock struct {
	// Label identifies the anatomical channel and recording condition.
	Label byte

	// SamplesRaw are the samples exactly as decoded from the payload.
	SamplesRaw []uint16

	// Samples are SamplesRaw with trailing artifacts removed.
	Samples []uint16

	// ExamID is the exam number recovered from the metadata, or zero
	// when it is not (yet) known. The id sometimes arrives only on a
	// later block of the same exam; Decoder backfills it.
	ExamID uint16

	// MetadataRaw is the opaque trailing metadata window, kept for
	// diagnostics.
	MetadataRaw []byte

	// HWBaseline is the device-reported baseline in ADC units, or -1
	// when the metadata carried none.
	HWBaseline int

	// HW holds the device-precomputed parameters when the metadata
	// matched the fixed record layout, nil otherwise.
	HW *HardwareRecord

	// Trimmed is the number of trailing samples removed as artifacts.
	Trimmed int
}

// NewSampleBlock builds a block from a decoded frame, trimming trailing
// artifacts and parsing the metadata window.
func NewSampleBlock(label byte, samples []uint16, metadata []byte) *SampleBlock {
	examID, baseline, hw := parseMetadata(metadata)
	trimmed := trimTrailingArtifacts(samples)
	return &SampleBlock{
		Label:       label,
		SamplesRaw:  samples,
		Samples:     trimmed,
		ExamID:      examID,
		MetadataRaw: metadata,
		HWBaseline:  baseline,
		HW:          hw,
		Trimmed:     len(samples) - len(trimmed),
	}
}

// LabelDescription returns the clinical description of the block's
// channel label, or "unrecognized" for labels outside the known set.
func (b *SampleBlock) LabelDescription() string {
	if desc, ok := labelDescriptions[b.Label]; ok {
		return desc
	}
	return "unrecognized"
}

// Duration returns the duration of the trimmed waveform in seconds.
func (b *SampleBlock) Duration() float64 {
	return float64(len(b.Samples)) / SampleRate
}

// PercentSignal converts the trimmed samples to %PPG relative to the
// mean of the first ten samples.
func (b *SampleBlock) PercentSignal() []float64 {
	if len(b.Samples) == 0 {
		return nil
	}
	n := min(baselineSamples, len(b.Samples))
	var sum float64
	for _, v := range b.Samples[:n] {
		sum += float64(v)
	}
	baseline := sum / float64(n)

	out := make([]float64, len(b.Samples))
	for i, v := range b.Samples {
		out[i] = (float64(v) - baseline) / ADCPerPercent
	}
	return out
}

func (b *SampleBlock) String() string {
	if b.ExamID != 0 {
		return fmt.Sprintf("SampleBlock(%s, %d samples, exam %d)", b.LabelDescription(), len(b.Samples), b.ExamID)
	}
	return fmt.Sprintf("SampleBlock(%s, %d samples)", b.LabelDescription(), len(b.Samples))
}

// trimTrailingArtifacts removes corrupted samples from the end of a
// block. Control characters of the protocol are sometimes decoded as
// payload, producing outliers within the last few samples. The main
// body of the block (all but the last five samples) provides robust
// statistics; anything in the tail falling outside median ± 2.5·IQR is
// truncated. Never touches more than the trailing five samples.
func trimTrailingArtifacts(samples []uint16) []uint16 {
	if len(samples) < trimMinSamples {
		return samples
	}

	main := samples[: len(samples)-trimTailSamples : len(samples)-trimTailSamples]
	sorted := make([]uint16, len(main))
	copy(sorted, main)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	median := float64(sorted[n/2])
	iqr := float64(sorted[3*n/4]) - float64(sorted[n/4])
	if iqr < trimMinIQR {
		iqr = trimMinIQR
	}

	lower := median - trimIQRFactor*iqr
	upper := median + trimIQRFactor*iqr

	for i := len(samples) - trimTailSamples; i < len(samples); i++ {
		v := float64(samples[i])
		if v < lower || v > upper {
			return samples[:i]
		}
	}

	// Secondary heuristic: a tail that swings far more than the signal
	// did just before it is still suspect even inside the hard bounds.
	tail := samples[len(samples)-trimTailSamples:]
	tailRange := sampleRange(tail)
	mainRange := iqr
	if len(main) >= stableBaselineSamples {
		mainRange = sampleRange(main[len(main)-stableBaselineSamples:])
	}

	if tailRange > mainRange*trimRangeFactor {
		for i := len(samples) - trimTailSamples; i < len(samples); i++ {
			if dev := float64(samples[i]) - median; dev > trimSoftIQRFactor*iqr || dev < -trimSoftIQRFactor*iqr {
				return samples[:i]
			}
		}
	}

	return samples
}

func sampleRange(samples []uint16) float64 {
	lo, hi := samples[0], samples[0]
	for _, v := range samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return float64(hi - lo)
}
