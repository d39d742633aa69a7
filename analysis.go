// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ComputeParameters derives the quantitative recovery parameters from a
// block. It returns nil when the waveform does not support a complete
// result: too few samples, no usable amplitude, or an unresolvable
// recovery time. A nil result is a normal outcome for pathological or
// truncated recordings, not an error.
//
// When the block carries device-precomputed values they are
// authoritative and used directly; the software path below exists for
// frames whose metadata could not be decoded. The computation is pure
// and safe for concurrent use across blocks.
func ComputeParameters(block *SampleBlock) *PPGParameters {
	samples := toFloats(block.Samples)
	if len(samples) < minAnalysisSamples {
		return nil
	}

	hasHW := block.HW != nil && block.HWBaseline >= 0
	dt := 1.0 / SampleRate

	// Baselines. The pre-exercise baseline anchors Vo and Th; the
	// post-recovery baseline anchors the To threshold.
	initialBaseline := float64(block.HWBaseline)
	if !hasHW {
		initialBaseline = median(samples[:baselineSamples])
	}
	stableBaseline := median(samples[len(samples)-stableBaselineSamples:])

	// Peak.
	var peakIdx int
	if hasHW && block.HW.PeakIndex < len(samples) {
		peakIdx = block.HW.PeakIndex
	} else {
		var ok bool
		peakIdx, ok = locatePeak(samples, initialBaseline)
		if !ok {
			return nil
		}
	}
	peakValue := samples[peakIdx]

	// Vo.
	amplitudeVo := peakValue - initialBaseline
	if hasHW && block.HW.Amplitude > 0 {
		amplitudeVo = float64(block.HW.Amplitude)
	}
	if amplitudeVo <= 0 || initialBaseline <= 0 {
		return nil
	}
	vo := amplitudeVo / initialBaseline * 100
	if vo < minVo {
		return nil
	}

	recovery := samples[peakIdx:]
	if len(recovery) < minRecoverySamples {
		return nil
	}

	// Th: first descending crossing of the half-amplitude level.
	var th float64
	if hasHW && block.HW.ThSamples > 0 {
		th = float64(block.HW.ThSamples) * dt
	} else {
		level := initialBaseline + amplitudeVo*thresholdTh
		cross, ok := findDescendingCrossing(recovery, level)
		if !ok {
			cross = float64(len(recovery) - 1)
		}
		th = cross * dt
	}

	// Ti: adaptive linear extrapolation of the early recovery slope,
	// not a threshold crossing.
	var ti float64
	if hasHW && block.HW.TiSeconds > 0 {
		ti = float64(block.HW.TiSeconds)
	} else {
		var ok bool
		ti, ok = initialInflowTime(samples, peakIdx, peakValue, initialBaseline)
		if !ok {
			return nil
		}
	}

	// To: first descending crossing of the near-full recovery level,
	// extrapolated from the trailing slope when the recording ends
	// before the signal gets there.
	var to float64
	toCross := -1.0 // crossing offset within the recovery segment, samples
	if hasHW && block.HW.ToSamples > 0 {
		toCross = float64(block.HW.ToSamples)
		to = toCross * dt
	} else {
		referenceBaseline := math.Max(stableBaseline, initialBaseline)
		amplitudeRef := peakValue - referenceBaseline
		if amplitudeRef <= 0 {
			referenceBaseline = initialBaseline
			amplitudeRef = amplitudeVo
		}
		level := referenceBaseline + amplitudeRef*thresholdTo
		cross, ok := findDescendingCrossing(recovery, level)
		if !ok {
			cross, ok = extrapolateCrossing(recovery, level)
		}
		if !ok {
			return nil
		}
		toCross = cross
		to = cross * dt
	}

	// All-or-nothing: a result only exists when every timing parameter
	// is still positive after rounding to the reported precision. A Ti
	// under half a second would otherwise round to zero in the result.
	to = round1(to)
	th = round1(th)
	ti = math.Round(ti)
	if to <= 0 || th <= 0 || ti <= 0 {
		return nil
	}

	// Fo: area of the recovery curve above baseline.
	var fo float64
	if hasHW && block.HW.CapacityX100 > 0 {
		fo = float64(block.HW.CapacityX100) / 100
	} else {
		foEnd := len(samples) - 1
		if toCross >= 0 {
			foEnd = min(peakIdx+int(toCross), len(samples)-1)
		}
		fo = pumpCapacity(samples, peakIdx, foEnd, initialBaseline)
	}

	endIdx := len(samples) - 1
	if hasHW {
		endIdx = min(block.HW.EndIndex, len(samples)-1)
	} else if toCross >= 0 {
		endIdx = min(peakIdx+int(toCross), len(samples)-1)
	}

	exerciseLevel := initialBaseline + amplitudeVo*exerciseRiseFraction
	exerciseStart := 0
	for i := 0; i < peakIdx; i++ {
		if samples[i] >= exerciseLevel {
			exerciseStart = i
			break
		}
	}

	tau, tauOK := fitRecoveryDecay(samples, peakIdx, endIdx, initialBaseline, peakValue)

	return &PPGParameters{
		To:                 to,
		Th:                 th,
		Ti:                 ti,
		Vo:                 round1(vo),
		Fo:                 math.Round(fo),
		Tau:                tau,
		TauValid:           tauOK,
		PeakIndex:          peakIdx,
		RecoveryEndIndex:   endIdx,
		ExerciseStartIndex: exerciseStart,
		BaselineValue:      initialBaseline,
		PeakValue:          peakValue,
	}
}

// locatePeak finds the index of the waveform peak. Shallow waveforms
// (estimated Vo below 3%) use the raw maximum over the exercise window;
// anything else is smoothed first so a single-sample spike cannot win,
// and the peak is searched within the central 10%-90% of the recording.
func locatePeak(samples []float64, initialBaseline float64) (int, bool) {
	estimatedAmplitude := floats.Max(samples) - initialBaseline
	estimatedVo := 0.0
	if initialBaseline > 0 {
		estimatedVo = estimatedAmplitude / initialBaseline * 100
	}

	exerciseEnd := min(int(exerciseSearchSeconds*SampleRate), len(samples)-10)
	if exerciseEnd <= exerciseSearchStart {
		return 0, false
	}

	var peakIdx int
	if estimatedVo < lowAmplitudeVo {
		peakIdx = exerciseSearchStart + floats.MaxIdx(samples[exerciseSearchStart:exerciseEnd])
	} else {
		smoothed, offset := movingAverage(samples, smoothingWindow)
		searchStart := max(10, len(smoothed)/10)
		searchEnd := len(smoothed) * 9 / 10
		if searchStart >= searchEnd {
			return 0, false
		}
		peakIdx = searchStart + floats.MaxIdx(smoothed[searchStart:searchEnd]) + offset
	}

	return min(peakIdx, len(samples)-1), true
}

// initialInflowTime computes Ti. The drop measured three seconds after
// the peak selects a 3 s look-ahead window for fast decays or a 6 s one
// for slow decays; Ti is then the linear extrapolation of that window's
// slope to the full amplitude, capped at 120 s. A signal that has not
// dropped at all by the window's end is "not recovering" and yields the
// cap directly.
func initialInflowTime(samples []float64, peakIdx int, peakValue, baseline float64) (float64, bool) {
	amplitude := peakValue - baseline
	if amplitude <= 0 {
		return 0, false
	}

	probe := peakIdx + int(tiFastWindowSeconds*SampleRate)
	if probe >= len(samples) {
		return 0, false
	}

	window := tiSlowWindowSeconds
	if peakValue-samples[probe] >= tiDeltaThreshold {
		window = tiFastWindowSeconds
	}

	target := peakIdx + int(window*SampleRate)
	if target >= len(samples) {
		target = len(samples) - 1
		window = float64(target-peakIdx) / SampleRate
	}

	drop := peakValue - samples[target]
	if drop <= 0 {
		return maxRecoverySeconds, true
	}

	ti := window * amplitude / drop
	return math.Min(ti, maxRecoverySeconds), true
}

// pumpCapacity integrates (sample - baseline) from the peak to the
// recovery endpoint, with a trapezoidal correction for the residual
// area when the signal has not fully returned to baseline, normalized
// to percent·seconds.
func pumpCapacity(samples []float64, peakIdx, endIdx int, baseline float64) float64 {
	if endIdx <= peakIdx || baseline <= 0 {
		return 0
	}
	endIdx = min(endIdx, len(samples)-1)

	n := endIdx - peakIdx
	area := floats.Sum(samples[peakIdx:endIdx]) - baseline*float64(n)
	correction := (samples[endIdx] - baseline) * float64(n) / 2

	fo := (area - correction) * 100 / (baseline * SampleRate)
	return math.Max(fo, 0)
}

// findDescendingCrossing returns the fractional sample index where the
// signal first descends through level, linearly interpolated between
// the bracketing samples.
func findDescendingCrossing(samples []float64, level float64) (float64, bool) {
	for i := 0; i < len(samples)-1; i++ {
		if samples[i] >= level && samples[i+1] < level {
			frac := (samples[i] - level) / (samples[i] - samples[i+1])
			return float64(i) + frac, true
		}
	}
	return 0, false
}

// extrapolateCrossing projects the trailing trend of the recovery
// segment forward to estimate when the signal would cross level beyond
// the recorded window. The slope is taken over the last ~20% of the
// segment, clamped to [10, 40] samples. A non-negative slope means the
// signal never recovers; the 120 s cap is returned instead.
func extrapolateCrossing(samples []float64, level float64) (float64, bool) {
	if len(samples) < extrapolationMinFit {
		return 0, false
	}

	nFit := len(samples) / 5
	nFit = max(nFit, extrapolationMinFit)
	nFit = min(nFit, extrapolationMaxFit)

	last := samples[len(samples)-1]
	slope := (last - samples[len(samples)-nFit]) / float64(nFit-1)

	maxSamples := maxRecoverySeconds * SampleRate
	if slope >= 0 {
		return maxSamples, true
	}

	remaining := last - level
	if remaining <= 0 {
		return float64(len(samples) - 1), true
	}

	crossing := float64(len(samples)-1) + remaining/-slope
	return math.Min(crossing, maxSamples), true
}

// movingAverage smooths samples with a centered window ("valid" mode:
// the output is shorter by window-1). The returned offset maps a
// smoothed index back to the unsmoothed series. Inputs no longer than
// the window are returned unchanged.
func movingAverage(samples []float64, window int) ([]float64, int) {
	if len(samples) <= window {
		return samples, 0
	}
	out := make([]float64, len(samples)-window+1)
	sum := floats.Sum(samples[:window])
	out[0] = sum / float64(window)
	for i := 1; i < len(out); i++ {
		sum += samples[i+window-1] - samples[i-1]
		out[i] = sum / float64(window)
	}
	return out, (window - 1) / 2
}

// median returns the true median: the mean of the two middle order
// statistics for even-length input. The baseline windows are always
// even-length, so picking a single middle element would bias every
// software-path baseline.
func median(x []float64) float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func toFloats(samples []uint16) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = float64(v)
	}
	return out
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
