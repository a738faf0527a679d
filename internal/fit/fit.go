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

// Package fit drives the global optimizer over a template and divergence
// pair: centering and morphology fits of a single image, and shift+blur
// matching between two images of differing effective resolution.
package fit

import (
	"fmt"
	"io"
	"math"

	"github.com/mlnoga/ringstat/internal/fits"
	"github.com/mlnoga/ringstat/internal/metric"
	"github.com/mlnoga/ringstat/internal/model"
)

// Configuration for a fit run, passed explicitly into each entry point
type Config struct {
	Divergence metric.Kind // objective to minimize
	Grid       fits.Grid   // coarse fitting grid; zero value fits at native resolution
	MaxEvals   int         // optimizer evaluation budget; 0 selects 10000
	Tol        float64     // optimizer improvement tolerance; 0 selects 1e-5
	Seed       uint32      // optimizer RNG seed; 0 draws a random seed
	Log        io.Writer   // progress and warnings; nil discards
}

func (c Config) log() io.Writer {
	if c.Log == nil {
		return io.Discard
	}
	return c.Log
}

// The reference image carries no positive flux after flooring, so the
// divergence objective is uninformative. Soft condition: fits proceed and
// flag it in their diagnostics
type DegenerateImageError struct {
	ID int
}

func (e *DegenerateImageError) Error() string {
	return fmt.Sprintf("%d: image has no positive flux, fit objective is degenerate", e.ID)
}

// Best-fit parameters as a named vector, with the template for re-rendering
type Params struct {
	Template model.Template
	Names    []string
	X        []float64
}

// Returns the named parameter value, or NaN if absent
func (p *Params) Get(name string) float64 {
	for i, n := range p.Names {
		if n == name {
			return p.X[i]
		}
	}
	return math.NaN()
}

// Returns the parameters as a name to value mapping
func (p *Params) Map() map[string]float64 {
	m := make(map[string]float64, len(p.Names))
	for i, n := range p.Names {
		m[n] = p.X[i]
	}
	return m
}

// Re-renders the best-fit model on the geometry of the reference image
func (p *Params) Render(ref *fits.Image) *fits.Image {
	return model.RenderOnto(p.Template, p.X, ref)
}

// Diagnostics of a fit run. Degenerate and non-converged fits still return
// their best parameters; callers judge quality via Value
type Diag struct {
	Value      float64 // achieved objective value
	Evals      int     // objective evaluations used
	Converged  bool    // tolerance criterion was met within the budget
	Degenerate bool    // reference image had no positive flux
}
