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
	"fmt"
	"math"

	"github.com/mlnoga/ringstat/internal/fits"
)

// A divergence kind selects the scalar objective comparing a candidate model
// image to a reference image. Lower is better; the optimizer minimizes
type Kind int

const (
	LeastSquares Kind = iota // sum of squared pixel differences, flux-normalized
	NxCorr                   // 1 - normalized cross correlation, scale invariant
)

func (k Kind) String() string {
	switch k {
	case LeastSquares:
		return "lsq"
	case NxCorr:
		return "nxcorr"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Parses a divergence kind from its command line name
func ParseKind(s string) (Kind, error) {
	switch s {
	case "lsq":
		return LeastSquares, nil
	case "nxcorr":
		return NxCorr, nil
	}
	return 0, fmt.Errorf("unknown divergence %q", s)
}

// A candidate model, sampled at arbitrary physical positions in uas.
// Template renderings and interpolated images both satisfy this
type Sampler func(x, y float64) float64

// A scalar objective over candidate samplers
type Objective func(candidate Sampler) float64

// Builds the objective for the given kind against a reference image. The
// reference is floored at zero; candidates are sampled at the reference
// pixel centers before comparison, so they may live on any grid.
//
// Least squares compares flux-normalized images, keeping the objective
// meaningful for templates with unit peak brightness. NxCorr is inherently
// scale invariant
func New(kind Kind, ref *fits.Image) Objective {
	width := ref.Naxisn[0]
	n := int(ref.Pixels)
	refVals := make([]float64, n)
	xs := make([]float64, n)
	ys := make([]float64, n)

	refSum, refNormSq := float64(0), float64(0)
	data := ref.ChanData(fits.ChanI)
	for iy := int32(0); iy < ref.Naxisn[1]; iy++ {
		for ix := int32(0); ix < width; ix++ {
			i := int(iy*width + ix)
			v := float64(data[i])
			if v < 0 {
				v = 0
			}
			refVals[i] = v
			xs[i], ys[i] = ref.PixelCoords(ix, iy)
			refSum += v
			refNormSq += v * v
		}
	}

	switch kind {
	case NxCorr:
		refNorm := math.Sqrt(refNormSq)
		return func(candidate Sampler) float64 {
			dot, candNormSq := float64(0), float64(0)
			for i := 0; i < n; i++ {
				c := candidate(xs[i], ys[i])
				dot += c * refVals[i]
				candNormSq += c * c
			}
			denom := refNorm * math.Sqrt(candNormSq)
			if denom <= 0 {
				return 1
			}
			return 1 - dot/denom
		}

	default: // LeastSquares
		refScale := float64(1)
		if refSum > 0 {
			refScale = 1 / refSum
		}
		return func(candidate Sampler) float64 {
			candSum := float64(0)
			cand := make([]float64, n)
			for i := 0; i < n; i++ {
				c := candidate(xs[i], ys[i])
				cand[i] = c
				candSum += c
			}
			candScale := float64(1)
			if candSum > 0 {
				candScale = 1 / candSum
			}
			sumSq := float64(0)
			for i := 0; i < n; i++ {
				d := cand[i]*candScale - refVals[i]*refScale
				sumSq += d * d
			}
			return sumSq
		}
	}
}
