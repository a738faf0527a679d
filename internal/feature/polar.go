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

// Package feature extracts polarimetric observables from centered Stokes
// cubes and assembles them, together with template fit parameters, into
// fixed-schema statistics records.
package feature

import (
	"math"
	"math/cmplx"

	"github.com/mlnoga/ringstat/internal/fits"
)

// Azimuthal decomposition coefficients of the complex linear polarization
// P = Q + iU over a centered annulus rmin <= r <= rmax (uas). For each
// requested mode m,
//
//	beta_m = sum P * exp(-i m theta) / sum I
//
// with both sums over the annulus pixels and theta the image azimuth
// convention. Fails for intensity-only images
func LPModes(f *fits.Image, modes []int, rmin, rmax float64) ([]complex128, error) {
	if err := f.RequirePolarized("lpmodes"); err != nil {
		return nil, err
	}
	q, u := f.ChanData(fits.ChanQ), f.ChanData(fits.ChanU)
	sample := func(i int32) complex128 {
		return complex(float64(q[i]), float64(u[i]))
	}
	return annulusModes(f, modes, rmin, rmax, sample)
}

// Azimuthal decomposition coefficients of the circular polarization V over
// a centered annulus, normalized by the annulus intensity like LPModes.
// Fails for intensity-only images
func CPModes(f *fits.Image, modes []int, rmin, rmax float64) ([]complex128, error) {
	if err := f.RequirePolarized("cpmodes"); err != nil {
		return nil, err
	}
	v := f.ChanData(fits.ChanV)
	sample := func(i int32) complex128 {
		return complex(float64(v[i]), 0)
	}
	return annulusModes(f, modes, rmin, rmax, sample)
}

func annulusModes(f *fits.Image, modes []int, rmin, rmax float64, sample func(i int32) complex128) ([]complex128, error) {
	data := f.ChanData(fits.ChanI)
	width := f.Naxisn[0]

	sums := make([]complex128, len(modes))
	sumI := float64(0)
	for iy := int32(0); iy < f.Naxisn[1]; iy++ {
		for ix := int32(0); ix < width; ix++ {
			x, y := f.PixelCoords(ix, iy)
			r := math.Hypot(x, y)
			if r < rmin || r > rmax {
				continue
			}
			i := iy*width + ix
			theta := fits.Theta(x, y)
			p := sample(i)
			for k, m := range modes {
				sums[k] += p * cmplx.Exp(complex(0, -float64(m)*theta))
			}
			sumI += float64(data[i])
		}
	}
	if sumI == 0 {
		return sums, nil // degenerate annulus, coefficients stay zero
	}
	for k := range sums {
		sums[k] /= complex(sumI, 0)
	}
	return sums, nil
}

// Net fractional linear polarization |sum Q + i sum U| / sum I
func MNet(f *fits.Image) (float64, error) {
	if err := f.RequirePolarized("mnet"); err != nil {
		return 0, err
	}
	qt, ut, it := f.Flux(fits.ChanQ), f.Flux(fits.ChanU), f.Flux(fits.ChanI)
	if it == 0 {
		return 0, nil
	}
	return math.Hypot(qt, ut) / it, nil
}

// Average fractional linear polarization sum |Q + iU| / sum I, i.e. the
// image-averaged polarized flux regardless of EVPA cancellation
func MAvg(f *fits.Image) (float64, error) {
	if err := f.RequirePolarized("mavg"); err != nil {
		return 0, err
	}
	q, u := f.ChanData(fits.ChanQ), f.ChanData(fits.ChanU)
	sumP := float64(0)
	for i := range q {
		sumP += math.Hypot(float64(q[i]), float64(u[i]))
	}
	it := f.Flux(fits.ChanI)
	if it == 0 {
		return 0, nil
	}
	return sumP / it, nil
}

// Net fractional circular polarization sum V / sum I, signed
func VNet(f *fits.Image) (float64, error) {
	if err := f.RequirePolarized("vnet"); err != nil {
		return 0, err
	}
	it := f.Flux(fits.ChanI)
	if it == 0 {
		return 0, nil
	}
	return f.Flux(fits.ChanV) / it, nil
}

// Average fractional circular polarization sum |V| / sum I
func VAvg(f *fits.Image) (float64, error) {
	if err := f.RequirePolarized("vavg"); err != nil {
		return 0, err
	}
	sumV := float64(0)
	for _, v := range f.ChanData(fits.ChanV) {
		sumV += math.Abs(float64(v))
	}
	it := f.Flux(fits.ChanI)
	if it == 0 {
		return 0, nil
	}
	return sumV / it, nil
}

// Net electric vector position angle 0.5 * atan2(sum U, sum Q), in radians
func NetEVPA(f *fits.Image) (float64, error) {
	if err := f.RequirePolarized("netevpa"); err != nil {
		return 0, err
	}
	return 0.5 * math.Atan2(f.Flux(fits.ChanU), f.Flux(fits.ChanQ)), nil
}
