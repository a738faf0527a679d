// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package model

import (
	"math"
)

// Two independent circular Gaussians: the first of width sigma1 at (x0,y0)
// with unit peak, the second of width sigma2 at (x1,y1) with relative
// amplitude f2, over a uniform background f0. The two components are
// interchangeable; the fit engine canonicalizes the output so the component
// with the smaller x position is reported first.
//
// Parameters: sigma1, sigma2, x0, y0, x1, y1, f2, f0.
// Bounds: sigma in [fov/128, fov/4], centers in +-fov/3, f2 in [1e-3,1e3]
// (inverted on canonicalization swap), f0 in [0,1]
type dualGaussTemplate struct{}

func (t *dualGaussTemplate) Kind() Kind { return DualGauss }

func (t *dualGaussTemplate) Names() []string {
	return []string{"sigma1", "sigma2", "x0", "y0", "x1", "y1", "f2", "f0"}
}

func (t *dualGaussTemplate) Bounds(fovX, fovY float32) (lower, upper, guess []float64) {
	fov := boundsFov(fovX, fovY)
	lower = []float64{fov / 128, fov / 128, -fov / 3, -fov / 3, -fov / 3, -fov / 3, 1e-3, 0}
	upper = []float64{fov / 4, fov / 4, fov / 3, fov / 3, fov / 3, fov / 3, 1e3, 1}
	guess = []float64{fov / 16, fov / 16, -fov / 16, 0, fov / 16, 0, 1, epsBound}
	return lower, upper, guess
}

func (t *dualGaussTemplate) Eval(params []float64) func(x, y float64) float64 {
	sigma1, sigma2 := params[0], params[1]
	x0, y0, x1, y1 := params[2], params[3], params[4], params[5]
	f2, f0 := params[6], params[7]

	twoSigma1Sq := 2 * sigma1 * sigma1
	twoSigma2Sq := 2 * sigma2 * sigma2

	return func(x, y float64) float64 {
		dx0, dy0 := x-x0, y-y0
		dx1, dy1 := x-x1, y-y1
		g1 := math.Exp(-(dx0*dx0 + dy0*dy0) / twoSigma1Sq)
		g2 := math.Exp(-(dx1*dx1 + dy1*dy1) / twoSigma2Sq)
		return g1 + f2*g2 + f0
	}
}
