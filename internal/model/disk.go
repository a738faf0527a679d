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

// A flat-topped disk of radius r0 whose edge falls off as a Gaussian of
// width sigma, stretched into an ellipse by tau, rotated by xitau, shifted
// to (x0,y0), over a uniform background f0.
//
// Parameters: r0, sigma, tau, xitau, x0, y0, f0.
// Bounds: r0 in [fov/64, fov/2.5], sigma in [fov/128, fov/8], tau in [0,1),
// xitau in [0,pi), x0/y0 in +-fov/4, f0 in [0,1]
type diskTemplate struct{}

func (t *diskTemplate) Kind() Kind { return Disk }

func (t *diskTemplate) Names() []string {
	return []string{"r0", "sigma", "tau", "xitau", "x0", "y0", "f0"}
}

func (t *diskTemplate) Bounds(fovX, fovY float32) (lower, upper, guess []float64) {
	fov := boundsFov(fovX, fovY)
	lower = []float64{fov / 64, fov / 128, epsBound, 0, -fov / 4, -fov / 4, 0}
	upper = []float64{fov / 2.5, fov / 8, 1 - epsBound, math.Pi - epsBound, fov / 4, fov / 4, 1}
	guess = []float64{fov / 6, fov / 24, 0.1, math.Pi / 2, 0, 0, epsBound}
	return lower, upper, guess
}

func (t *diskTemplate) Eval(params []float64) func(x, y float64) float64 {
	r0, sigma, tau, xitau := params[0], params[1], params[2], params[3]
	x0, y0, f0 := params[4], params[5], params[6]

	cosR, sinR := math.Cos(xitau), math.Sin(xitau)
	twoSigmaSq := 2 * sigma * sigma
	stretch := 1 / (1 + tau)

	return func(x, y float64) float64 {
		xr, yr := x-x0, y-y0
		xp := cosR*xr + sinR*yr
		yp := (-sinR*xr + cosR*yr) * stretch
		rho := math.Hypot(xp, yp)

		if rho <= r0 {
			return 1 + f0
		}
		d := rho - r0
		return math.Exp(-d*d/twoSigmaSq) + f0
	}
}
