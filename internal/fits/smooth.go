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

// Returns a normalized 1D Gaussian kernel for the given sigma in pixels,
// sized to +-2 sigma
func GaussianKernel1D(sigma float32) []float32 {
	kernelSize := int(math.Ceil(float64(sigma))*4) | 1 // make it odd
	kernel := make([]float32, kernelSize)
	twoSigmaSq := 2.0 * float64(sigma) * float64(sigma)
	sum := float32(0)
	for i := range kernel {
		x := float64(i - kernelSize/2)
		k := float32(math.Exp(-x * x / twoSigmaSq))
		kernel[i] = k
		sum += k
	}
	factor := 1.0 / sum
	for i, k := range kernel {
		kernel[i] = k * factor
	}
	return kernel
}

// Convolves the image with a circular Gaussian kernel of the given width in
// uas, using two separable 1D passes per channel. Kernel widths below a
// quarter pixel return an unmodified copy
func (f *Image) Smooth(sigma float64) *Image {
	dx, dy := f.PixelSpacing()
	res := NewImageFromImage(f)

	sigmaX, sigmaY := float32(sigma/dx), float32(sigma/dy)
	if sigmaX < 0.25 && sigmaY < 0.25 {
		copy(res.Data, f.Data)
		return res
	}

	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	tmp := make([]float32, f.Pixels)
	kernelX := GaussianKernel1D(sigmaX)
	kernelY := GaussianKernel1D(sigmaY)

	for c := int32(0); c < f.Channels; c++ {
		src, dest := f.ChanData(c), res.ChanData(c)
		convolveRows(tmp, src, width, height, kernelX)
		convolveCols(dest, tmp, width, height, kernelY)
	}
	return res
}

// Convolves each row with the given kernel, zero padding at the boundaries
func convolveRows(dest, src []float32, width, height int, kernel []float32) {
	half := len(kernel) / 2
	for y := 0; y < height; y++ {
		row := src[y*width : (y+1)*width]
		out := dest[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			sum := float32(0)
			for k, kv := range kernel {
				xx := x + k - half
				if xx >= 0 && xx < width {
					sum += kv * row[xx]
				}
			}
			out[x] = sum
		}
	}
}

// Convolves each column with the given kernel, zero padding at the boundaries
func convolveCols(dest, src []float32, width, height int, kernel []float32) {
	half := len(kernel) / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum := float32(0)
			for k, kv := range kernel {
				yy := y + k - half
				if yy >= 0 && yy < height {
					sum += kv * src[yy*width+x]
				}
			}
			dest[y*width+x] = sum
		}
	}
}
