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
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Write a grayscale image of the given channel to JPG, scaled to [min,max]
// with the given gamma
func (f *Image) WriteMonoJPGToFile(fileName string, c int32, min, max, gamma float32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteMonoJPG(writer, c, min, max, gamma, quality)
}

// Write a grayscale image of the given channel to JPG, scaled to [min,max]
// with the given gamma
func (f *Image) WriteMonoJPG(writer io.Writer, c int32, min, max, gamma float32, quality int) error {
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	data := f.ChanData(c)
	img := image.NewGray(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := data[yoffset+x]
			gray = (gray - min) * scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray(x, height-1-y, color.Gray{uint8(gray * 255)})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Write a polarization preview to JPG: hue encodes the electric vector
// position angle, value encodes total intensity, saturation the local linear
// polarization fraction. Requires a full Stokes cube
func (f *Image) WriteEVPAJPGToFile(fileName string, quality int) error {
	if err := f.RequirePolarized("WriteEVPAJPG"); err != nil {
		return err
	}
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteEVPAJPG(writer, quality)
}

func (f *Image) WriteEVPAJPG(writer io.Writer, quality int) error {
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	di, dq, du := f.ChanData(ChanI), f.ChanData(ChanQ), f.ChanData(ChanU)

	maxI := float32(0)
	for _, v := range di {
		if v > maxI {
			maxI = v
		}
	}
	if maxI <= 0 {
		maxI = 1
	}

	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			i, q, u := float64(di[yoffset+x]), float64(dq[yoffset+x]), float64(du[yoffset+x])
			val := i / float64(maxI)
			if math.IsNaN(val) || val < 0 {
				val = 0
			}
			if val > 1 {
				val = 1
			}
			sat, hue := 0.0, 0.0
			if i > 0 {
				p := math.Sqrt(q*q+u*u) / i
				if p > 1 {
					p = 1
				}
				sat = p
				evpa := 0.5 * math.Atan2(u, q) // in [-pi/2, pi/2]
				hue = (evpa + math.Pi/2) / math.Pi * 360.0
			}
			cr, cg, cb := colorful.Hsv(hue, sat, val).RGB255()
			img.SetRGBA(x, height-1-y, color.RGBA{cr, cg, cb, 255})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
