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
	"bytes"
	"io"
	"math"
	"testing"
)

// Builds a single-channel test image with a Gaussian blob at (cx,cy) uas
func makeBlob(n int32, fov float32, cx, cy, sigma float64) *Image {
	img := NewImageFromNaxisn([]int32{n, n}, 1, fov, fov, nil)
	data := img.ChanData(ChanI)
	for iy := int32(0); iy < n; iy++ {
		for ix := int32(0); ix < n; ix++ {
			x, y := img.PixelCoords(ix, iy)
			d2 := (x-cx)*(x-cx) + (y-cy)*(y-cy)
			data[iy*n+ix] = float32(math.Exp(-d2 / (2 * sigma * sigma)))
		}
	}
	return img
}

func TestPixelCoords(t *testing.T) {
	img := NewImageFromNaxisn([]int32{64, 64}, 1, 128, 128, nil)
	x, y := img.PixelCoords(31, 31)
	if math.Abs(x+1) > 1e-9 || math.Abs(y+1) > 1e-9 {
		t.Errorf("pixel (31,31) center=(%f,%f); want (-1,-1)", x, y)
	}
	x, y = img.PixelCoords(0, 63)
	if math.Abs(x+63) > 1e-9 || math.Abs(y-63) > 1e-9 {
		t.Errorf("pixel (0,63) center=(%f,%f); want (-63,63)", x, y)
	}
}

func TestTheta(t *testing.T) {
	epsilon := 1e-9
	if th := Theta(0, 1); math.Abs(th) > epsilon {
		t.Errorf("theta(0,1)=%f; want 0", th)
	}
	if th := Theta(-1, 0); math.Abs(th-math.Pi/2) > epsilon {
		t.Errorf("theta(-1,0)=%f; want pi/2", th)
	}
	if th := Theta(1, 0); math.Abs(th+math.Pi/2) > epsilon {
		t.Errorf("theta(1,0)=%f; want -pi/2", th)
	}
}

func TestCentroid(t *testing.T) {
	img := makeBlob(64, 128, 10, -5, 6)
	x, y := img.Centroid()
	if math.Abs(x-10) > 0.5 || math.Abs(y+5) > 0.5 {
		t.Errorf("centroid=(%f,%f); want (10,-5)", x, y)
	}
}

func TestAtInterpolation(t *testing.T) {
	img := makeBlob(64, 128, 0, 0, 8)
	// exact at a pixel center
	x, y := img.PixelCoords(20, 40)
	want := float64(img.ChanData(ChanI)[40*64+20])
	if got := img.At(ChanI, x, y); math.Abs(got-want) > 1e-6 {
		t.Errorf("at pixel center got %f; want %f", got, want)
	}
	// zero far outside the field of view
	if got := img.At(ChanI, 1000, 1000); got != 0 {
		t.Errorf("outside fov got %f; want 0", got)
	}
}

func TestAtOutsideFadesToZero(t *testing.T) {
	ones := NewImageFromNaxisn([]int32{8, 8}, 1, 16, 16, nil)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	// beyond the left/bottom edge samples must be zero, never extrapolated
	for _, p := range [][2]float64{{-12, 0}, {0, -12}, {-9.5, -9.5}, {12, 0}} {
		if got := ones.At(ChanI, p[0], p[1]); got != 0 {
			t.Errorf("at (%f,%f) got %f; want 0", p[0], p[1], got)
		}
	}
	// everywhere, samples of a non-negative image stay in [0,1]
	for x := -20.0; x <= 20; x += 0.75 {
		for y := -20.0; y <= 20; y += 0.75 {
			if got := ones.At(ChanI, x, y); got < 0 || got > 1 {
				t.Fatalf("at (%f,%f) got %f; want within [0,1]", x, y, got)
			}
		}
	}
}

func TestShiftFillsFromOutsideWithZero(t *testing.T) {
	ones := NewImageFromNaxisn([]int32{8, 8}, 1, 16, 16, nil)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	shifted := ones.Shift(6, 0)
	for i, v := range shifted.Data {
		if v < 0 || v > 1 {
			t.Fatalf("shifted[%d]=%f; want within [0,1]", i, v)
		}
	}
	// the leftmost columns now sample from outside the field of view
	if v := shifted.Data[0]; v != 0 {
		t.Errorf("left border=%f after shift; want 0", v)
	}
}

func TestShiftMovesCentroid(t *testing.T) {
	img := makeBlob(64, 128, 0, 0, 6)
	shifted := img.Shift(5, 3)
	x, y := shifted.Centroid()
	if math.Abs(x-5) > 0.5 || math.Abs(y-3) > 0.5 {
		t.Errorf("shifted centroid=(%f,%f); want (5,3)", x, y)
	}
	// input must not be mutated
	x, y = img.Centroid()
	if math.Abs(x) > 0.5 || math.Abs(y) > 0.5 {
		t.Errorf("input centroid=(%f,%f) after shift; want (0,0)", x, y)
	}
}

func TestCropMatchesFluxWindow(t *testing.T) {
	img := makeBlob(64, 128, 3, -2, 10)
	side := 60.0
	cropped := img.Crop(side)
	want := img.FluxWindow(ChanI, side)
	if got := cropped.Flux(ChanI); math.Abs(got-want) > 1e-3 {
		t.Errorf("cropped flux=%f; want %f", got, want)
	}
	if cropped.Naxisn[0] != 30 || cropped.Naxisn[1] != 30 {
		t.Errorf("cropped dimensions=%s; want 30x30", cropped.DimensionsToString())
	}
}

func TestFloor0(t *testing.T) {
	img := NewImageFromNaxisn([]int32{2, 2}, 1, 4, 4, []float32{-1, 0, 0.5, 2})
	floored := img.Floor0()
	want := []float32{0, 0, 0.5, 2}
	for i, v := range floored.Data {
		if v != want[i] {
			t.Errorf("floored[%d]=%f; want %f", i, v, want[i])
		}
	}
	if img.Data[0] != -1 {
		t.Errorf("input mutated: data[0]=%f; want -1", img.Data[0])
	}
}

func TestSmoothPreservesFlux(t *testing.T) {
	img := makeBlob(64, 128, 0, 0, 5)
	smoothed := img.Smooth(4)
	fluxIn, fluxOut := img.Flux(ChanI), smoothed.Flux(ChanI)
	if math.Abs(fluxOut-fluxIn)/fluxIn > 0.01 {
		t.Errorf("smoothed flux=%f; want %f", fluxOut, fluxIn)
	}
	peakIn := float64(img.ChanData(ChanI)[32*64+32])
	peakOut := float64(smoothed.ChanData(ChanI)[32*64+32])
	if peakOut >= peakIn {
		t.Errorf("smoothed peak=%f not below input peak %f", peakOut, peakIn)
	}
}

func TestRegridPreservesCentroid(t *testing.T) {
	img := makeBlob(64, 128, 8, -4, 8)
	regridded := img.Regrid(Grid{Nx: 32, Ny: 32, FovX: 128, FovY: 128})
	x, y := regridded.Centroid()
	if math.Abs(x-8) > 2 || math.Abs(y+4) > 2 {
		t.Errorf("regridded centroid=(%f,%f); want (8,-4)", x, y)
	}
}

func TestStokesISharesData(t *testing.T) {
	img := NewImageFromNaxisn([]int32{4, 4}, 4, 8, 8, nil)
	img.ChanData(ChanI)[0] = 42
	stokesI := img.StokesI()
	if stokesI.Channels != 1 || stokesI.Pixels != 16 {
		t.Errorf("stokes I has %d channels %d pixels; want 1, 16", stokesI.Channels, stokesI.Pixels)
	}
	if stokesI.Data[0] != 42 {
		t.Errorf("stokes I data[0]=%f; want 42", stokesI.Data[0])
	}
}

func TestRequirePolarized(t *testing.T) {
	mono := NewImageFromNaxisn([]int32{4, 4}, 1, 8, 8, nil)
	if err := mono.RequirePolarized("test"); err == nil {
		t.Errorf("single channel image passed RequirePolarized")
	}
	cube := NewImageFromNaxisn([]int32{4, 4}, 4, 8, 8, nil)
	if err := cube.RequirePolarized("test"); err != nil {
		t.Errorf("stokes cube failed RequirePolarized: %s", err.Error())
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	img := makeBlob(16, 64, 2, -3, 5)
	cube := NewImageFromNaxisn(img.Naxisn, 4, img.FovX, img.FovY, nil)
	for c := int32(0); c < 4; c++ {
		dest := cube.ChanData(c)
		for i, v := range img.ChanData(ChanI) {
			dest[i] = v * float32(c+1)
		}
	}

	buf := bytes.Buffer{}
	if err := cube.Write(&buf); err != nil {
		t.Fatalf("write: %s", err.Error())
	}

	back := NewImage()
	if err := back.Read(&buf, io.Discard); err != nil {
		t.Fatalf("read: %s", err.Error())
	}
	if !EqualInt32Slice(back.Naxisn, cube.Naxisn) {
		t.Errorf("naxisn=%v; want %v", back.Naxisn, cube.Naxisn)
	}
	if back.Channels != 4 {
		t.Errorf("channels=%d; want 4", back.Channels)
	}
	if math.Abs(float64(back.FovX-cube.FovX))/float64(cube.FovX) > 1e-6 {
		t.Errorf("fovX=%f; want %f", back.FovX, cube.FovX)
	}
	for i, v := range back.Data {
		if v != cube.Data[i] {
			t.Fatalf("data[%d]=%f; want %f", i, v, cube.Data[i])
		}
	}
}
