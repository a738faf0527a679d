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

package feature

import (
	"fmt"
	"math"
	"strconv"

	"github.com/mlnoga/ringstat/internal/model"
)

// An ordered collection of named scalar statistics. The schema is fixed
// before any image is processed, so batches of records share identical
// column sets and can be written as one table. Unset values are NaN
type Record struct {
	FileName string
	Names    []string
	Values   []float64
}

// Creates a record over the given schema with all values unset
func NewRecord(fileName string, names []string) *Record {
	values := make([]float64, len(names))
	for i := range values {
		values[i] = math.NaN()
	}
	return &Record{FileName: fileName, Names: names, Values: values}
}

// Sets the named value. Names outside the schema are an error, keeping
// schema and record contents in lockstep
func (r *Record) Set(name string, value float64) error {
	for i, n := range r.Names {
		if n == name {
			r.Values[i] = value
			return nil
		}
	}
	return fmt.Errorf("statistic %q not in record schema", name)
}

// Returns the named value, or NaN if absent
func (r *Record) Get(name string) float64 {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i]
		}
	}
	return math.NaN()
}

// CSV header row for records over this schema: file name column first
func CSVHeader(names []string) []string {
	return append([]string{"filename"}, names...)
}

// CSV data row for this record, values formatted with full float64 precision
func (r *Record) CSVRow() []string {
	row := make([]string, 0, len(r.Values)+1)
	row = append(row, r.FileName)
	for _, v := range r.Values {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

// The fixed column schema of a summary run: template parameters for the
// given kind and expansion order, fit diagnostics, flux and polarization
// aggregates, and the real/imaginary parts of the requested azimuthal modes
func NewSummarySchema(kind model.Kind, order int, lpModes, cpModes []int) ([]string, error) {
	tmpl, err := model.New(kind, order)
	if err != nil {
		return nil, err
	}
	names := append([]string(nil), tmpl.Names()...)
	names = append(names, "divergence", "converged", "degenerate")
	names = append(names, "itot", "qtot", "utot", "vtot")
	names = append(names, "mnet", "mavg", "vnet", "vavg", "netevpa")
	for _, m := range lpModes {
		names = append(names, fmt.Sprintf("re_beta_lp_%d", m), fmt.Sprintf("im_beta_lp_%d", m))
	}
	for _, m := range cpModes {
		names = append(names, fmt.Sprintf("re_beta_cp_%d", m), fmt.Sprintf("im_beta_cp_%d", m))
	}
	return names, nil
}
