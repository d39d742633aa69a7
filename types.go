// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg

// Control bytes used on the device link.
const (
	ESC byte = 0x1B // start of a frame header
	SOH byte = 0x01
	EOT byte = 0x04
	ACK byte = 0x06 // transport-level acknowledgment, one per received chunk
	DLE byte = 0x10 // status polling
	GS  byte = 0x1D
)

// Calibration constants of the instrument. The hardware samples
// internally at a higher rate but exports waveforms at 4 Hz.
const (
	// SampleRate is the export sampling rate of the device in Hz.
	SampleRate = 4.0

	// ADCPerPercent is the number of ADC units corresponding to a 1%
	// change of the PPG signal.
	ADCPerPercent = 27.0
)

// Framing parameters of the telemetry protocol.
const (
	frameHeaderSize     = 9  // ESC 'L' label EOT SOH GS unused size_lo size_hi
	minFrameBytes       = 10 // header plus at least one trailing byte
	minMetadataBytes    = 10 // shortest trailing metadata the device sends
	maxMetadataBytes    = 40
	nextMarkerLookahead = 30 // bytes scanned past the payload for the next frame
	hardwareRecordSize  = 10
	minExamID           = 1
	maxExamID           = 9999

	// The device reports the peak position relative to a fixed pipeline
	// delay of two sampling periods.
	hardwarePeakOffset = int(2*SampleRate) - 1
)

// Known channel labels. Each waveform block is tagged with the limb it
// was recorded from and whether a tourniquet was applied.
const (
	LabelRightTourniquet byte = 0xE2
	LabelRight           byte = 0xE1
	LabelLeftTourniquet  byte = 0xE0
	LabelLeft            byte = 0xDF
	LabelChannel5        byte = 0xDE
)

var labelDescriptions = map[byte]string{
	LabelRightTourniquet: "right leg, tourniquet",
	LabelRight:           "right leg",
	LabelLeftTourniquet:  "left leg, tourniquet",
	LabelLeft:            "left leg",
	LabelChannel5:        "channel 5",
}

// Artifact trimming parameters. Control characters of the protocol are
// occasionally decoded as samples at the very end of a block; they are
// removed statistically.
const (
	trimMinSamples    = 15
	trimTailSamples   = 5
	trimMinIQR        = 50 // floor to avoid over-trimming flat signals
	trimIQRFactor     = 2.5
	trimSoftIQRFactor = 1.5
	trimRangeFactor   = 2
)

// Analysis parameters. The thresholds and window sizes reproduce the
// behaviour of the reference instrument's firmware and must not be
// altered independently of it.
const (
	minAnalysisSamples    = 40
	minRecoverySamples    = 10
	baselineSamples       = 10
	stableBaselineSamples = 20
	smoothingWindow       = 5

	// Below this estimated Vo the waveform is too shallow for smoothed
	// peak search; the raw maximum over the exercise window is used.
	lowAmplitudeVo        = 3.0
	exerciseSearchStart   = 5
	exerciseSearchSeconds = 25.0

	minVo = 0.5 // percent; weaker signals are rejected outright

	thresholdTh          = 0.50 // half-amplitude recovery
	thresholdTo          = 0.03 // near-full (~97%) recovery
	exerciseRiseFraction = 0.10

	tiFastWindowSeconds = 3.0
	tiSlowWindowSeconds = 6.0
	// Signal drop three seconds past the peak that selects the fast
	// Ti window over the slow one, in ADC units.
	tiDeltaThreshold = 10.0

	// Cap applied to Ti and to extrapolated To, in seconds.
	maxRecoverySeconds = 120.0

	extrapolationMinFit = 10
	extrapolationMaxFit = 40

	minFitSamples    = 10
	tauMin           = 0.5 // seconds
	tauMax           = 200.0
	tauMaxIterations = 5000
)

// HardwareRecord holds parameters precomputed by the device firmware
// and transmitted in the trailing metadata of a block. When present it
// is authoritative over the software analysis.
type HardwareRecord struct {
	PeakIndex    int  // sample index of the waveform peak
	EndIndex     int  // sample index of the recovery endpoint
	Amplitude    int  // peak minus baseline, ADC units
	ToSamples    int  // venous refilling time, samples
	ThSamples    int  // half-amplitude time, samples
	TiSeconds    int  // initial inflow time, whole seconds
	CapacityX100 int  // pump capacity Fo in 0.01 %·s units
	Flags        byte // HWFlagNoEndpoint when the recording never recovered
}

// HWFlagNoEndpoint marks a block whose recovery never reached the
// device's endpoint threshold.
const HWFlagNoEndpoint byte = 0x80

// PPGParameters are the quantitative parameters of a D-PPG recovery
// curve. To, Th, Ti and Vo are always present and positive; a curve for
// which any of them cannot be determined yields no PPGParameters at all.
type PPGParameters struct {
	To float64 // venous refilling time, seconds
	Th float64 // half-amplitude recovery time, seconds
	Ti float64 // initial inflow time, seconds
	Vo float64 // venous pump power, percent of baseline
	Fo float64 // venous pump capacity, percent·seconds

	// Tau is the exponential time constant of the recovery decay in
	// seconds. It is only meaningful when TauValid is true; the fit is
	// allowed to fail.
	Tau      float64
	TauValid bool

	PeakIndex          int // index of the waveform peak
	RecoveryEndIndex   int // index of the recovery endpoint
	ExerciseStartIndex int // index where the exercise rise begins

	BaselineValue float64 // pre-exercise baseline, ADC units
	PeakValue     float64 // peak value, ADC units
}
