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
	"github.com/mlnoga/ringstat/internal/opt"
)

// Bounds for the shift and blur search: shifts in uas, blur in uas of
// Gaussian standard deviation
const (
	matchShiftBound = 20
	matchSigmaMin   = 0.01
	matchSigmaMax   = 30
	matchSigmaGuess = 5
)

// Matches the input image onto the target by fitting a shift (x,y) and a
// Gaussian blur sigma that maximize agreement of the Stokes I channels.
// Returns the input image smoothed and shifted by the best-fit transform
// (all channels), the transform parameters plus cross correlation
// diagnostics, and run diagnostics.
//
// Blurring is applied before shifting. The returned parameter map carries
// x, y, sigma and nxcorr_i; for polarized inputs also nxcorr_lp and nxcorr_v,
// all measured between the target and the transformed input
func MatchCenterAndRes(target, input *fits.Image, cfg Config) (transformed *fits.Image, params map[string]float64, diag Diag, err error) {
	logWriter := cfg.log()

	ref := target.StokesI()
	if !cfg.Grid.IsZero() {
		ref = ref.Regrid(cfg.Grid)
	}
	ref = ref.Floor0()
	if maxValue(ref.ChanData(fits.ChanI)) <= 0 {
		diag.Degenerate = true
		degErr := &DegenerateImageError{ID: target.ID}
		fmt.Fprintf(logWriter, "%d: Warning: %s\n", target.ID, degErr.Error())
	}

	inputI := input.StokesI()

	// re-smoothing on every evaluation dominates the cost; the population
	// optimizer revisits sigma values rarely enough that caching only the
	// most recent blur already pays off
	var cachedSigma float64 = -1
	var cached *fits.Image
	smoothed := func(sigma float64) *fits.Image {
		if sigma != cachedSigma {
			cached = inputI.Smooth(sigma)
			cachedSigma = sigma
		}
		return cached
	}

	objective := metric.New(cfg.Divergence, ref)
	fn := func(p []float64) float64 {
		dx, dy, sigma := p[0], p[1], p[2]
		img := smoothed(sigma)
		return objective(func(x, y float64) float64 {
			return img.At(fits.ChanI, x-dx, y-dy)
		})
	}

	tcx, tcy := ref.Centroid()
	icx, icy := inputI.Centroid()
	lower := []float64{-matchShiftBound, -matchShiftBound, matchSigmaMin}
	upper := []float64{matchShiftBound, matchShiftBound, matchSigmaMax}
	guess := clampSlice([]float64{tcx - icx, tcy - icy, matchSigmaGuess}, lower, upper)

	res, err := opt.Minimize(fn, lower, upper, guess, opt.Settings{
		MaxEvals: cfg.MaxEvals, Tol: cfg.Tol, Seed: cfg.Seed,
	})
	if err != nil {
		return nil, nil, diag, err
	}
	diag.Value, diag.Evals, diag.Converged = res.Value, res.Evals, res.Converged
	if !res.Converged {
		fmt.Fprintf(logWriter, "%d: Warning: optimizer exhausted %d evaluations without converging, best %s=%.6g\n",
			input.ID, res.Evals, cfg.Divergence, res.Value)
	}

	dx, dy, sigma := res.X[0], res.X[1], res.X[2]
	transformed = input.Smooth(sigma).Shift(dx, dy)

	params = map[string]float64{
		"x":        dx,
		"y":        dy,
		"sigma":    sigma,
		"nxcorr_i": metric.ImageNxCorr(target, transformed, fits.ChanI),
	}
	if target.IsPolarized() && transformed.IsPolarized() {
		params["nxcorr_lp"] = metric.ImageNxCorrLP(target, transformed)
		params["nxcorr_v"] = metric.ImageNxCorr(target, transformed, fits.ChanV)
	}

	fmt.Fprintf(logWriter, "%d: Matched onto %d with shift (%.3g, %.3g) uas, blur sigma %.3g uas, %s=%.6g in %d evaluations\n",
		input.ID, target.ID, dx, dy, sigma, cfg.Divergence, res.Value, res.Evals)

	return transformed, params, diag, nil
}

func clampSlice(x, lower, upper []float64) []float64 {
	for i := range x {
		if x[i] < lower[i] {
			x[i] = lower[i]
		}
		if x[i] > upper[i] {
			x[i] = upper[i]
		}
	}
	return x
}
