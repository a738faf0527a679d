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
	"fmt"
	"math"
	"strings"
)

// Stokes channel indices into the planar data array
const (
	ChanI = 0
	ChanQ = 1
	ChanU = 2
	ChanV = 3
)

// A FITS image holding a scalar intensity map or a four-channel Stokes cube
// over a physical field of view. Pixel values are stored as planar float32
// channels, channel c occupying Data[c*Pixels : (c+1)*Pixels].
//
// Coordinates are physical, in microarcseconds (uas), with the origin at the
// image center. Pixel (ix,iy) has its center at
//
//	x = (ix+0.5)*FovX/W - FovX/2,   y = (iy+0.5)*FovY/H - FovY/2
//
// and the azimuth convention used throughout is theta = atan2(-x, y).
//
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0
	FileName string // Original file name, if any, for log output

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i]
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i]

	Naxisn   []int32 // Spatial axis dimensions, most quickly varying first (X,Y)
	Channels int32   // Number of polarization channels, 1 (intensity) or 4 (I,Q,U,V)
	Pixels   int32   // Number of pixels per channel. Product of Naxisn[]

	FovX float32 // Field of view along X in uas
	FovY float32 // Field of view along Y in uas

	Data []float32 // The image data, planar by channel
}

// An immutable target sampling for regridding: field of view in uas and pixel
// counts per axis. The zero value means "do not regrid".
type Grid struct {
	Nx, Ny     int32
	FovX, FovY float32
}

// Reports whether the grid is the zero value, i.e. regridding is disabled
func (g Grid) IsZero() bool {
	return g.Nx == 0 && g.Ny == 0
}

// An operation was applied to an image whose polarization shape does not
// match, e.g. Stokes V extraction from an intensity-only image
type InvalidImageError struct {
	Op       string
	Channels int32
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("%s: invalid image with %d channels", e.Op, e.Channels)
}

// Creates an image initialized with an empty header
func NewImage() *Image {
	return &Image{
		Header:   NewHeader(),
		Bscale:   1,
		Channels: 1,
	}
}

// Creates an image with given spatial dimensions, channel count and field of
// view. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, channels int32, fovX, fovY float32, data []float32) *Image {
	pixels := int32(1)
	for _, naxis := range naxisn {
		pixels *= naxis
	}
	if data == nil {
		data = make([]float32, pixels*channels)
	}
	return &Image{
		Header:   NewHeader(),
		Bitpix:   -32,
		Bzero:    0,
		Bscale:   1,
		Naxisn:   append([]int32(nil), naxisn...), // clone slice
		Channels: channels,
		Pixels:   pixels,
		FovX:     fovX,
		FovY:     fovY,
		Data:     data,
	}
}

// Creates an image with the same geometry as the given one. A new data array
// is allocated; ID, file name and header are carried over
func NewImageFromImage(img *Image) *Image {
	res := NewImageFromNaxisn(img.Naxisn, img.Channels, img.FovX, img.FovY, nil)
	res.ID, res.FileName, res.Header = img.ID, img.FileName, img.Header
	return res
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	if f.Channels > 1 {
		fmt.Fprintf(&b, "x%d", f.Channels)
	}
	return b.String()
}

// Reports whether the image carries a full Stokes cube
func (f *Image) IsPolarized() bool {
	return f.Channels == 4
}

// Returns an InvalidImageError unless the image carries a full Stokes cube
func (f *Image) RequirePolarized(op string) error {
	if !f.IsPolarized() {
		return &InvalidImageError{Op: op, Channels: f.Channels}
	}
	return nil
}

// Returns the data slice for the given channel
func (f *Image) ChanData(c int32) []float32 {
	return f.Data[c*f.Pixels : (c+1)*f.Pixels]
}

// Returns the Stokes I plane as a standalone single-channel image.
// The data slice is shared with the receiver, not copied
func (f *Image) StokesI() *Image {
	if f.Channels == 1 {
		return f
	}
	res := NewImageFromNaxisn(f.Naxisn, 1, f.FovX, f.FovY, f.ChanData(ChanI))
	res.ID, res.FileName, res.Header = f.ID, f.FileName, f.Header
	return res
}

// Pixel spacing along X and Y in uas
func (f *Image) PixelSpacing() (dx, dy float64) {
	return float64(f.FovX) / float64(f.Naxisn[0]), float64(f.FovY) / float64(f.Naxisn[1])
}

// Physical coordinates of the center of pixel (ix,iy), in uas from the image center
func (f *Image) PixelCoords(ix, iy int32) (x, y float64) {
	dx, dy := f.PixelSpacing()
	x = (float64(ix)+0.5)*dx - float64(f.FovX)*0.5
	y = (float64(iy)+0.5)*dy - float64(f.FovY)*0.5
	return x, y
}

// Azimuth angle of physical position (x,y) in the image convention
func Theta(x, y float64) float64 {
	return math.Atan2(-x, y)
}

// Sum of pixel values in the given channel
func (f *Image) Flux(c int32) float64 {
	sum := float64(0)
	for _, v := range f.ChanData(c) {
		sum += float64(v)
	}
	return sum
}

// Sum of pixel values in the given channel within a centered square window
// of the given physical side length
func (f *Image) FluxWindow(c int32, side float64) float64 {
	data := f.ChanData(c)
	half := side * 0.5
	sum := float64(0)
	width := f.Naxisn[0]
	for iy := int32(0); iy < f.Naxisn[1]; iy++ {
		for ix := int32(0); ix < width; ix++ {
			x, y := f.PixelCoords(ix, iy)
			if x >= -half && x <= half && y >= -half && y <= half {
				sum += float64(data[iy*width+ix])
			}
		}
	}
	return sum
}

// Center of mass of the Stokes I plane, with negative pixels floored at zero.
// Returns the origin for images without positive flux
func (f *Image) Centroid() (x, y float64) {
	data := f.ChanData(ChanI)
	width := f.Naxisn[0]
	sum, sumX, sumY := float64(0), float64(0), float64(0)
	for iy := int32(0); iy < f.Naxisn[1]; iy++ {
		for ix := int32(0); ix < width; ix++ {
			v := float64(data[iy*width+ix])
			if v <= 0 {
				continue
			}
			px, py := f.PixelCoords(ix, iy)
			sum += v
			sumX += v * px
			sumY += v * py
		}
	}
	if sum <= 0 {
		return 0, 0
	}
	return sumX / sum, sumY / sum
}

// Equal tells whether a and b contain the same elements.
// A nil argument is equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
