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
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

const degToUas float32 = 3.6e9 // 1 degree = 3.6e9 microarcseconds

func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID = id
	return i, i.ReadFile(fileName, logWriter)
}

// Read FITS data from the file with the given name. Decompresses gzip if .gz
// or .gzip suffix is present
func (f *Image) ReadFile(fileName string, logWriter io.Writer) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	f.FileName = fileName
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".gz" || lExt == ".gzip" {
		r, err = gzip.NewReader(file)
		if err != nil {
			return err
		}
	}
	return f.Read(r, logWriter)
}

func (f *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := f.Header.Ints[key]; ok {
		delete(f.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", f.ID, key)
}

func (f *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := f.Header.Ints[key]; ok {
		delete(f.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := f.Header.Floats[key]; ok {
		delete(f.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", f.ID, key)
}

// Reads a FITS image from the given reader: header, axis and world coordinate
// checks, then the data unit. Spatial axes become Naxisn, any third or fourth
// axis must describe one or four polarization planes
func (f *Image) Read(r io.Reader, logWriter io.Writer) (err error) {
	err = f.Header.read(r, f.ID, logWriter)
	if err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !f.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", f.ID)
	}
	delete(f.Header.Bools, "SIMPLE")

	if f.Bitpix, err = f.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = f.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	if naxis < 2 || naxis > 4 {
		return fmt.Errorf("%d: Unsupported NAXIS value %d", f.ID, naxis)
	}

	axes := make([]int32, naxis)
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		if axes[i-1], err = f.PopHeaderInt32(name); err != nil {
			return err
		}
	}
	f.Naxisn = axes[:2]
	f.Pixels = axes[0] * axes[1]
	f.Channels = 1
	for _, n := range axes[2:] {
		f.Channels *= n
	}
	if f.Channels != 1 && f.Channels != 4 {
		return &InvalidImageError{Op: fmt.Sprintf("%d: read", f.ID), Channels: f.Channels}
	}

	// check key optional fields for value scaling and world coordinates
	if f.Bzero, err = f.PopHeaderInt32OrFloat("BZERO"); err != nil {
		f.Bzero = 0
	}
	if f.Bscale, err = f.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		f.Bscale = 1
	}

	// pixel scale CDELTn is in degrees per pixel; convert the field of view to uas
	if cdelt1, err := f.PopHeaderInt32OrFloat("CDELT1"); err == nil {
		f.FovX = float32(math.Abs(float64(cdelt1))) * degToUas * float32(f.Naxisn[0])
	} else {
		fmt.Fprintf(logWriter, "%d: Warning: no CDELT1 in header, assuming 1 uas/pixel\n", f.ID)
		f.FovX = float32(f.Naxisn[0])
	}
	if cdelt2, err := f.PopHeaderInt32OrFloat("CDELT2"); err == nil {
		f.FovY = float32(math.Abs(float64(cdelt2))) * degToUas * float32(f.Naxisn[1])
	} else {
		f.FovY = float32(f.Naxisn[1])
	}

	return f.readData(r)
}

// Read image data from the reader, convert to float32 and apply Bzero/Bscale.
// All FITS data types are big-endian per the standard
func (f *Image) readData(r io.Reader) (err error) {
	bytesPerValue := int(f.Bitpix)
	if bytesPerValue < 0 {
		bytesPerValue = -bytesPerValue
	}
	bytesPerValue >>= 3
	if bytesPerValue < 1 || bytesPerValue > 8 {
		return fmt.Errorf("%d: Unknown BITPIX value %d", f.ID, f.Bitpix)
	}

	values := int(f.Pixels) * int(f.Channels)
	raw := make([]byte, values*bytesPerValue)
	if _, err = io.ReadFull(r, raw); err != nil {
		return fmt.Errorf("%d: %s", f.ID, err.Error())
	}

	f.Data = make([]float32, values)
	for i := 0; i < values; i++ {
		b := raw[i*bytesPerValue:]
		var v float32
		switch f.Bitpix {
		case 8:
			v = float32(b[0])
		case 16:
			v = float32(int16(uint16(b[0])<<8 | uint16(b[1])))
		case 32:
			v = float32(int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])))
		case 64:
			v = float32(int64(be64(b)))
		case -32:
			v = math.Float32frombits(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
		case -64:
			v = float32(math.Float64frombits(be64(b)))
		default:
			return fmt.Errorf("%d: Unknown BITPIX value %d", f.ID, f.Bitpix)
		}
		f.Data[i] = v*f.Bscale + f.Bzero
	}
	f.Bzero, f.Bscale = 0, 1 // reflect that data values incorporate these now
	return nil
}

func be64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil || bytesRead != fitsBlockSize {
			return fmt.Errorf("%d: %s", id, err.Error())
		}
		h.Length += int32(bytesRead)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning:Cannot parse '%s', ignoring\n", id, string(line))
			} else {
				subNames := reParser.SubexpNames()
				h.readLine(subNames, subValues, id, lineNo, logWriter)
			}
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] != nil && len(subNames[i]) == 1 {
			switch c := subNames[i][0]; c {
			case byte('E'): // end line
				h.End = true
			case byte('H'): // history line
				h.History = append(h.History, string(subValues[i]))
			case byte('C'): // comment line
				h.Comments = append(h.Comments, string(subValues[i]))
			case byte('k'): // key
				key = string(subValues[i])
			case byte('b'): // boolean
				if len(subValues[i]) > 0 {
					v := subValues[i][0]
					h.Bools[key] = v == byte('t') || v == byte('T')
				}
			case byte('i'): // int
				val, err := strconv.ParseInt(string(subValues[i]), 10, 64)
				if err == nil {
					h.Ints[key] = int32(val)
				}
			case byte('f'): // float
				val, err := strconv.ParseFloat(string(subValues[i]), 64)
				if err == nil {
					h.Floats[key] = float32(val)
				}
			case byte('s'): // string
				h.Strings[key] = string(subValues[i])
			case byte('d'): // date
				h.Dates[key] = string(subValues[i])
			case byte('c'): // comment
				// ignore value comments
			default:
				fmt.Fprintf(logWriter, "%d:%d:Warning:Unknown token '%s'\n", id, lineNo, string(c))
			}
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	hist := "HISTORY"
	rest := ".*"
	histLine := hist + white + "(?P<H>" + rest + ")"

	commKey := "COMMENT"
	commLine := commKey + white + "(?P<C>" + rest + ")"

	end := "(?P<E>END)"
	endLine := end + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri := "'(?P<s>[^']*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
