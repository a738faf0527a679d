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

// Package model provides the parametric image templates fitted to
// reconstructed images: a ring with an azimuthal cosine expansion, a
// Gaussian-edged disk, and a pair of circular Gaussians. Each template maps
// a bounded parameter vector to a deterministic brightness function over
// physical coordinates in uas.
package model

import (
	"fmt"

	"github.com/mlnoga/ringstat/internal/fits"
)

// The closed set of template kinds, selected explicitly by the caller
type Kind int

const (
	Ring Kind = iota // ring with azimuthal cosine expansion of order N
	Disk             // Gaussian-edged elliptical disk
	DualGauss        // two circular Gaussians plus background
)

func (k Kind) String() string {
	switch k {
	case Ring:
		return "ring"
	case Disk:
		return "disk"
	case DualGauss:
		return "dualgauss"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Parses a template kind from its command line name
func ParseKind(s string) (Kind, error) {
	switch s {
	case "ring":
		return Ring, nil
	case "disk":
		return Disk, nil
	case "dualgauss":
		return DualGauss, nil
	}
	return 0, fmt.Errorf("unknown template %q", s)
}

// A parametric image template. Bounds and initial guess are parallel to
// Names(), in physical units (uas for positions and radii, dimensionless for
// shape ratios). Eval must be deterministic and side effect free
type Template interface {
	Kind() Kind
	Names() []string
	Bounds(fovX, fovY float32) (lower, upper, guess []float64)
	Eval(params []float64) func(x, y float64) float64
}

// Creates the template of the given kind. order is the azimuthal expansion
// order for ring templates and ignored otherwise
func New(kind Kind, order int) (Template, error) {
	switch kind {
	case Ring:
		if order < 1 {
			return nil, fmt.Errorf("ring template requires order >= 1, have %d", order)
		}
		return &ringTemplate{order: order}, nil
	case Disk:
		return &diskTemplate{}, nil
	case DualGauss:
		return &dualGaussTemplate{}, nil
	}
	return nil, fmt.Errorf("unknown template kind %d", int(kind))
}

// Returns the index of the named parameter, or -1
func ParamIndex(t Template, name string) int {
	for i, n := range t.Names() {
		if n == name {
			return i
		}
	}
	return -1
}

// An initial guess falls outside the declared parameter box
type BoundsViolationError struct {
	Name         string
	Lower, Upper float64
	Value        float64
}

func (e *BoundsViolationError) Error() string {
	return fmt.Sprintf("parameter %s=%g outside bounds [%g,%g]", e.Name, e.Value, e.Lower, e.Upper)
}

// Checks lower <= value <= upper componentwise, returning a
// BoundsViolationError for the first violation found
func ValidateBounds(names []string, lower, upper, values []float64) error {
	for i, v := range values {
		if v < lower[i] || v > upper[i] {
			return &BoundsViolationError{Name: names[i], Lower: lower[i], Upper: upper[i], Value: v}
		}
	}
	return nil
}

// Renders the template with the given parameters onto the geometry of the
// reference image, producing a single channel image
func RenderOnto(t Template, params []float64, ref *fits.Image) *fits.Image {
	eval := t.Eval(params)
	res := fits.NewImageFromNaxisn(ref.Naxisn, 1, ref.FovX, ref.FovY, nil)
	width := res.Naxisn[0]
	data := res.ChanData(fits.ChanI)
	for iy := int32(0); iy < res.Naxisn[1]; iy++ {
		for ix := int32(0); ix < width; ix++ {
			x, y := res.PixelCoords(ix, iy)
			data[iy*width+ix] = float32(eval(x, y))
		}
	}
	return res
}

// Effective field of view used to scale bound tables
func boundsFov(fovX, fovY float32) float64 {
	if fovX < fovY {
		return float64(fovX)
	}
	return float64(fovY)
}
