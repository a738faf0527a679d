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

package metric

import (
	"math"
	"math/cmplx"

	"github.com/mlnoga/ringstat/internal/fits"
)

// Normalized cross correlation of one channel between two aligned images,
// in [-1,1]. b is sampled bilinearly at a's pixel centers, so the images may
// live on different grids
func ImageNxCorr(a, b *fits.Image, c int32) float64 {
	width := a.Naxisn[0]
	data := a.ChanData(c)
	dot, normASq, normBSq := float64(0), float64(0), float64(0)
	for iy := int32(0); iy < a.Naxisn[1]; iy++ {
		for ix := int32(0); ix < width; ix++ {
			va := float64(data[iy*width+ix])
			x, y := a.PixelCoords(ix, iy)
			vb := b.At(c, x, y)
			dot += va * vb
			normASq += va * va
			normBSq += vb * vb
		}
	}
	denom := math.Sqrt(normASq * normBSq)
	if denom <= 0 {
		return 0
	}
	return dot / denom
}

// Normalized cross correlation of the complex linear polarization P = Q + iU
// between two aligned polarized images. Returns the real part of the
// normalized inner product, in [-1,1]
func ImageNxCorrLP(a, b *fits.Image) float64 {
	width := a.Naxisn[0]
	aq, au := a.ChanData(fits.ChanQ), a.ChanData(fits.ChanU)
	dot := complex(0, 0)
	normASq, normBSq := float64(0), float64(0)
	for iy := int32(0); iy < a.Naxisn[1]; iy++ {
		for ix := int32(0); ix < width; ix++ {
			pa := complex(float64(aq[iy*width+ix]), float64(au[iy*width+ix]))
			x, y := a.PixelCoords(ix, iy)
			pb := complex(b.At(fits.ChanQ, x, y), b.At(fits.ChanU, x, y))
			dot += pa * cmplx.Conj(pb)
			normASq += real(pa)*real(pa) + imag(pa)*imag(pa)
			normBSq += real(pb)*real(pb) + imag(pb)*imag(pb)
		}
	}
	denom := math.Sqrt(normASq * normBSq)
	if denom <= 0 {
		return 0
	}
	return real(dot) / denom
}
