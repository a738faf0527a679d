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

package fit

import (
	"fmt"

	"github.com/mlnoga/ringstat/internal/fits"
	"github.com/mlnoga/ringstat/internal/metric"
	"github.com/mlnoga/ringstat/internal/model"
	"github.com/mlnoga/ringstat/internal/opt"
)

// Fits the given template to the Stokes I channel of the image and recenters
// the image on the fitted template position. Returns the full-resolution
// image shifted by (-x0,-y0), the best-fit parameters and run diagnostics.
//
// The fit optionally runs on a coarser grid (cfg.Grid) for speed; the shift
// is always applied to the original image, all channels included
func CenterTemplate(img *fits.Image, kind model.Kind, order int, cfg Config) (shifted *fits.Image, params *Params, diag Diag, err error) {
	logWriter := cfg.log()

	work := img.StokesI()
	if !cfg.Grid.IsZero() {
		work = work.Regrid(cfg.Grid)
	}
	work = work.Floor0()

	// degenerate reference images make the objective uninformative; flag and
	// continue, the optimizer will settle on an arbitrary in-bounds point
	if maxValue(work.ChanData(fits.ChanI)) <= 0 {
		diag.Degenerate = true
		degErr := &DegenerateImageError{ID: img.ID}
		fmt.Fprintf(logWriter, "%d: Warning: %s\n", img.ID, degErr.Error())
	}

	tmpl, err := model.New(kind, order)
	if err != nil {
		return nil, nil, diag, err
	}
	names := tmpl.Names()
	lower, upper, guess := tmpl.Bounds(img.FovX, img.FovY)

	seedCentroidGuess(tmpl, lower, upper, guess, work)

	if err := model.ValidateBounds(names, lower, upper, guess); err != nil {
		return nil, nil, diag, err
	}

	objective := metric.New(cfg.Divergence, work)
	fn := func(p []float64) float64 {
		return objective(tmpl.Eval(p))
	}

	res, err := opt.Minimize(fn, lower, upper, guess, opt.Settings{
		MaxEvals: cfg.MaxEvals, Tol: cfg.Tol, Seed: cfg.Seed,
	})
	if err != nil {
		return nil, nil, diag, err
	}
	diag.Value, diag.Evals, diag.Converged = res.Value, res.Evals, res.Converged
	if !res.Converged {
		fmt.Fprintf(logWriter, "%d: Warning: optimizer exhausted %d evaluations without converging, best %s=%.6g\n",
			img.ID, res.Evals, cfg.Divergence, res.Value)
	}

	params = &Params{Template: tmpl, Names: names, X: res.X}
	if kind == model.DualGauss {
		canonicalizeDualGauss(params)
	}

	x0, y0 := params.Get("x0"), params.Get("y0")
	fmt.Fprintf(logWriter, "%d: Fitted %s template with %s=%.6g at center (%.3g, %.3g) uas in %d evaluations\n",
		img.ID, kind, cfg.Divergence, res.Value, x0, y0, res.Evals)

	shifted = img.Shift(-x0, -y0)
	return shifted, params, diag, nil
}

// Replaces the default center guess with the image centroid, clamped into
// the declared bounds. Dual Gaussian components are seeded on either side of
// the centroid to break their exchange symmetry
func seedCentroidGuess(tmpl model.Template, lower, upper, guess []float64, work *fits.Image) {
	cx, cy := work.Centroid()
	delta := float64(work.FovX) / 32

	set := func(name string, v float64) {
		if i := model.ParamIndex(tmpl, name); i >= 0 {
			if v < lower[i] {
				v = lower[i]
			}
			if v > upper[i] {
				v = upper[i]
			}
			guess[i] = v
		}
	}
	if tmpl.Kind() == model.DualGauss {
		set("x0", cx-delta)
		set("y0", cy)
		set("x1", cx+delta)
		set("y1", cy)
	} else {
		set("x0", cx)
		set("y0", cy)
	}
}

// Removes the label-swap symmetry of the two Gaussian components: the
// component with the smaller x position is always reported first. On swap,
// widths and centers are exchanged and the relative amplitude inverted
func canonicalizeDualGauss(p *Params) {
	ix0, ix1 := paramIndex(p.Names, "x0"), paramIndex(p.Names, "x1")
	if p.X[ix0] <= p.X[ix1] {
		return
	}
	iy0, iy1 := paramIndex(p.Names, "y0"), paramIndex(p.Names, "y1")
	is1, is2 := paramIndex(p.Names, "sigma1"), paramIndex(p.Names, "sigma2")
	if2 := paramIndex(p.Names, "f2")

	p.X[is1], p.X[is2] = p.X[is2], p.X[is1]
	p.X[ix0], p.X[ix1] = p.X[ix1], p.X[ix0]
	p.X[iy0], p.X[iy1] = p.X[iy1], p.X[iy0]
	if p.X[if2] != 0 {
		p.X[if2] = 1 / p.X[if2]
	}
}

func paramIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func maxValue(data []float32) float32 {
	max := float32(0)
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	return max
}
