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

package fits

import (
	"math"
)

// Pixel-level operations on images. All transforms allocate a fresh image;
// inputs are never mutated, so shared reference images stay valid across
// concurrent fits.

// Bilinearly samples the given channel at physical position (x,y) in uas.
// Positions outside the field of view evaluate to zero
func (f *Image) At(c int32, x, y float64) float64 {
	dx, dy := f.PixelSpacing()
	fx := (x+float64(f.FovX)*0.5)/dx - 0.5
	fy := (y+float64(f.FovY)*0.5)/dy - 0.5

	// flooring keeps the weights in [0,1); neighbors outside the image
	// contribute zero, so samples fade to zero at the edge instead of
	// extrapolating
	ix, iy := int32(math.Floor(fx)), int32(math.Floor(fy))
	wx, wy := fx-float64(ix), fy-float64(iy)

	v00 := f.atPixel(c, ix, iy)
	v10 := f.atPixel(c, ix+1, iy)
	v01 := f.atPixel(c, ix, iy+1)
	v11 := f.atPixel(c, ix+1, iy+1)

	return (v00*(1-wx)+v10*wx)*(1-wy) + (v01*(1-wx)+v11*wx)*wy
}

func (f *Image) atPixel(c, ix, iy int32) float64 {
	if ix < 0 || ix >= f.Naxisn[0] || iy < 0 || iy >= f.Naxisn[1] {
		return 0
	}
	return float64(f.Data[c*f.Pixels+iy*f.Naxisn[0]+ix])
}

// Translates the image content by (dx,dy) uas, so that a feature at physical
// position (px,py) moves to (px+dx, py+dy). All channels are resampled
// bilinearly; regions shifted in from outside the field of view are zero
func (f *Image) Shift(dx, dy float64) *Image {
	res := NewImageFromImage(f)
	width := f.Naxisn[0]
	for c := int32(0); c < f.Channels; c++ {
		dest := res.ChanData(c)
		for iy := int32(0); iy < f.Naxisn[1]; iy++ {
			for ix := int32(0); ix < width; ix++ {
				x, y := f.PixelCoords(ix, iy)
				dest[iy*width+ix] = float32(f.At(c, x-dx, y-dy))
			}
		}
	}
	return res
}

// Crops the image to a centered square window of the given physical side
// length, keeping the pixels whose centers fall inside the window
func (f *Image) Crop(side float64) *Image {
	dx, dy := f.PixelSpacing()
	half := side * 0.5

	loX, hiX := cropRange(f.Naxisn[0], dx, float64(f.FovX), half)
	loY, hiY := cropRange(f.Naxisn[1], dy, float64(f.FovY), half)

	naxisn := []int32{hiX - loX, hiY - loY}
	res := NewImageFromNaxisn(naxisn, f.Channels, float32(float64(naxisn[0])*dx), float32(float64(naxisn[1])*dy), nil)
	res.ID, res.FileName, res.Header = f.ID, f.FileName, f.Header

	width := f.Naxisn[0]
	for c := int32(0); c < f.Channels; c++ {
		src, dest := f.ChanData(c), res.ChanData(c)
		for iy := loY; iy < hiY; iy++ {
			copy(dest[(iy-loY)*naxisn[0]:(iy-loY+1)*naxisn[0]], src[iy*width+loX:iy*width+hiX])
		}
	}
	return res
}

// Index range [lo,hi) of pixels whose centers lie within +-half of the axis center
func cropRange(n int32, spacing, fov, half float64) (lo, hi int32) {
	lo, hi = n, 0
	for i := int32(0); i < n; i++ {
		x := (float64(i)+0.5)*spacing - fov*0.5
		if x >= -half && x <= half {
			if i < lo {
				lo = i
			}
			if i+1 > hi {
				hi = i + 1
			}
		}
	}
	if lo >= hi { // window smaller than one pixel, keep the central one
		lo, hi = n/2, n/2+1
	}
	return lo, hi
}

// Returns a copy of the image with all negative pixel values clamped to zero
func (f *Image) Floor0() *Image {
	res := NewImageFromImage(f)
	for i, v := range f.Data {
		if v > 0 {
			res.Data[i] = v
		}
	}
	return res
}

// Resamples the image bilinearly onto the given target grid
func (f *Image) Regrid(g Grid) *Image {
	res := NewImageFromNaxisn([]int32{g.Nx, g.Ny}, f.Channels, g.FovX, g.FovY, nil)
	res.ID, res.FileName, res.Header = f.ID, f.FileName, f.Header
	for c := int32(0); c < f.Channels; c++ {
		dest := res.ChanData(c)
		for iy := int32(0); iy < g.Ny; iy++ {
			for ix := int32(0); ix < g.Nx; ix++ {
				x, y := res.PixelCoords(ix, iy)
				dest[iy*g.Nx+ix] = float32(f.At(c, x, y))
			}
		}
	}
	return res
}
