// SPDX-License-Identifier: MPL-2.0
/*
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package dppg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openvasc/dppg"
)

func TestBilateralAsymmetry(t *testing.T) {
	left := &dppg.PPGParameters{To: 30, Vo: 6, Tau: 10, TauValid: true}
	right := &dppg.PPGParameters{To: 20, Vo: 4, Tau: 8, TauValid: true}

	asym := dppg.BilateralAsymmetry(left, right)
	assert.InDelta(t, 33.3, asym["To"], 0.05)
	assert.InDelta(t, 33.3, asym["Vo"], 0.05)
	assert.InDelta(t, 20.0, asym["Tau"], 0.05)
}

func TestBilateralAsymmetryOmitsInvalidTau(t *testing.T) {
	left := &dppg.PPGParameters{To: 30, Vo: 6, Tau: 10, TauValid: true}
	right := &dppg.PPGParameters{To: 30, Vo: 6}

	asym := dppg.BilateralAsymmetry(left, right)
	assert.Contains(t, asym, "To")
	assert.NotContains(t, asym, "Tau")
}

func TestTourniquetEffect(t *testing.T) {
	without := &dppg.PPGParameters{To: 20, Vo: 5}
	with := &dppg.PPGParameters{To: 30, Vo: 4}

	effect := dppg.TourniquetEffect(without, with)
	assert.InDelta(t, 50.0, effect["To"], 0.05)
	assert.InDelta(t, -20.0, effect["Vo"], 0.05)
}

func TestDiagnosticZone(t *testing.T) {
	for _, tt := range []struct {
		to, vo float64
		want   dppg.Zone
	}{
		{to: 30, vo: 5, want: dppg.ZoneNormal},
		{to: 15, vo: 5, want: dppg.ZoneAbnormal},
		{to: 30, vo: 1.5, want: dppg.ZoneAbnormal},
		{to: 22, vo: 5, want: dppg.ZoneBorderline},
		{to: 30, vo: 3.2, want: dppg.ZoneBorderline}, // under the sliding Vo limit
		{to: 50, vo: 4, want: dppg.ZoneNormal},
	} {
		assert.Equalf(t, tt.want, dppg.DiagnosticZone(tt.to, tt.vo),
			"To=%.1f Vo=%.1f", tt.to, tt.vo)
	}
}
