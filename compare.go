// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg

import "math"

// BilateralAsymmetry compares the same parameter measured on the left
// and right limb:
//
//	asymmetry = |left - right| / max(left, right) × 100
//
// The returned map holds the asymmetry percentage for "To", "Vo" and,
// when both sides carry a valid fit, "Tau". Parameters that are not
// positive on both sides are omitted.
func BilateralAsymmetry(left, right *PPGParameters) map[string]float64 {
	out := make(map[string]float64)
	put := func(name string, l, r float64) {
		if l > 0 && r > 0 {
			out[name] = round1(math.Abs(l-r) / math.Max(l, r) * 100)
		}
	}
	put("To", left.To, right.To)
	put("Vo", left.Vo, right.Vo)
	if left.TauValid && right.TauValid {
		put("Tau", left.Tau, right.Tau)
	}
	return out
}

// TourniquetEffect reports the percentage change of To and Vo caused by
// applying a tourniquet. A positive To change means the refilling time
// increased, i.e. the tourniquet improved the measurement.
func TourniquetEffect(without, with *PPGParameters) map[string]float64 {
	out := make(map[string]float64)
	if without.To > 0 {
		out["To"] = round1((with.To - without.To) / without.To * 100)
	}
	if without.Vo > 0 {
		out["Vo"] = round1((with.Vo - without.Vo) / without.Vo * 100)
	}
	return out
}

// Zone is the diagnostic region a (To, Vo) point falls into.
type Zone string

const (
	ZoneNormal     Zone = "normal"
	ZoneBorderline Zone = "borderline"
	ZoneAbnormal   Zone = "abnormal"
)

// DiagnosticZone classifies a (To, Vo) point against the reference
// instrument's zone boundaries: refilling faster than 20 s or a pump
// power of 2% or less is abnormal, 20-25 s is borderline, and beyond
// that a sliding Vo limit separates borderline from normal.
func DiagnosticZone(to, vo float64) Zone {
	if to <= 20 || vo <= 2 {
		return ZoneAbnormal
	}
	if to <= 25 {
		return ZoneBorderline
	}
	if to > 24 {
		voLimit := 4 - (to-24)*2/26
		if vo <= voLimit {
			return ZoneBorderline
		}
	}
	return ZoneNormal
}
