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
	"fmt"
	"math"
)

// A ring of radius r0 with a radial Gaussian profile of width sigma and an
// azimuthal cosine expansion of order N:
//
//	I(rho,az) = exp(-(rho-r0)^2/(2 sigma^2)) * (1 + sum_n s_n cos(n az - xi_n)) + f0
//
// The ring is stretched into an ellipse with radii (r0, r0*(1+tau)) rotated
// by xitau, and shifted to (x0,y0). Azimuth follows the image convention
// az = atan2(-x, y) about the ring center.
//
// Parameters: r0, sigma, s_1..s_N, xi_1..xi_N, tau, xitau, x0, y0, f0.
// Bounds: r0 in [fov/64, fov/3], sigma in [fov/128, fov/8], s_n in [0,1),
// xi_n in [0,2pi), tau in [0,1), xitau in [0,pi), x0/y0 in +-fov/4,
// f0 in [0,1], with fov the smaller field of view extent
type ringTemplate struct {
	order int
}

func (t *ringTemplate) Kind() Kind { return Ring }

func (t *ringTemplate) Names() []string {
	names := make([]string, 0, 7+2*t.order)
	names = append(names, "r0", "sigma")
	for n := 1; n <= t.order; n++ {
		names = append(names, fmt.Sprintf("s_%d", n))
	}
	for n := 1; n <= t.order; n++ {
		names = append(names, fmt.Sprintf("xi_%d", n))
	}
	names = append(names, "tau", "xitau", "x0", "y0", "f0")
	return names
}

const epsBound = 1e-3 // keeps open interval bounds away from their limits

func (t *ringTemplate) Bounds(fovX, fovY float32) (lower, upper, guess []float64) {
	fov := boundsFov(fovX, fovY)
	dim := 7 + 2*t.order
	lower = make([]float64, 0, dim)
	upper = make([]float64, 0, dim)
	guess = make([]float64, 0, dim)

	append3 := func(lo, hi, g float64) {
		lower, upper, guess = append(lower, lo), append(upper, hi), append(guess, g)
	}
	append3(fov/64, fov/3, fov/6)    // r0
	append3(fov/128, fov/8, fov/24)  // sigma
	for n := 1; n <= t.order; n++ {  // s_n
		append3(epsBound, 1-epsBound, 0.2)
	}
	for n := 1; n <= t.order; n++ { // xi_n
		append3(0, 2*math.Pi-epsBound, math.Pi)
	}
	append3(epsBound, 1-epsBound, 0.1)     // tau
	append3(0, math.Pi-epsBound, math.Pi/2) // xitau
	append3(-fov/4, fov/4, 0)               // x0
	append3(-fov/4, fov/4, 0)               // y0
	append3(0, 1, epsBound)                 // f0
	return lower, upper, guess
}

func (t *ringTemplate) Eval(params []float64) func(x, y float64) float64 {
	r0, sigma := params[0], params[1]
	s := params[2 : 2+t.order]
	xi := params[2+t.order : 2+2*t.order]
	tau, xitau := params[2+2*t.order], params[3+2*t.order]
	x0, y0, f0 := params[4+2*t.order], params[5+2*t.order], params[6+2*t.order]

	cosR, sinR := math.Cos(xitau), math.Sin(xitau)
	twoSigmaSq := 2 * sigma * sigma
	stretch := 1 / (1 + tau)

	return func(x, y float64) float64 {
		xr, yr := x-x0, y-y0
		// rotate into the ellipse frame and undo the stretch
		xp := cosR*xr + sinR*yr
		yp := (-sinR*xr + cosR*yr) * stretch
		rho := math.Hypot(xp, yp)

		d := rho - r0
		g := math.Exp(-d * d / twoSigmaSq)

		az := math.Atan2(-xr, yr)
		a := 1.0
		for n, sn := range s {
			a += sn * math.Cos(float64(n+1)*az-xi[n])
		}
		if a < 0 { // higher orders can push the expansion negative
			a = 0
		}
		return g*a + f0
	}
}
