// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// fitRecoveryDecay fits y(t) = A·exp(-t/τ) + C to the recovery segment
// between the peak and the endpoint and returns τ in seconds. The fit
// is derivative-free (Nelder-Mead over the squared residuals) with a
// hard iteration cap so it always terminates. τ is accepted only within
// [0.5, 200] seconds; anything else, and any solver failure, reports
// ok=false. τ is secondary to the threshold-based parameters, so a
// failed fit never invalidates the rest of the result.
func fitRecoveryDecay(samples []float64, peakIdx, endIdx int, baseline, peakValue float64) (tau float64, ok bool) {
	if endIdx <= peakIdx {
		return 0, false
	}
	segment := samples[peakIdx : endIdx+1]
	if len(segment) < minFitSamples {
		return 0, false
	}

	a0 := peakValue - baseline
	if a0 <= 0 {
		return 0, false
	}
	tau0 := float64(endIdx-peakIdx) / SampleRate / 3

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			a, tc, c := x[0], x[1], x[2]
			if tc == 0 {
				return math.Inf(1)
			}
			var sse float64
			for i, y := range segment {
				t := float64(i) / SampleRate
				r := a*math.Exp(-t/tc) + c - y
				sse += r * r
			}
			return sse
		},
	}

	settings := &optimize.Settings{MajorIterations: tauMaxIterations}
	result, err := optimize.Minimize(problem, []float64{a0, tau0, baseline}, settings, &optimize.NelderMead{})
	if err != nil || result == nil {
		return 0, false
	}

	tau = math.Abs(result.X[1])
	if math.IsNaN(tau) || tau < tauMin || tau > tauMax {
		return 0, false
	}
	return round1(tau), true
}
