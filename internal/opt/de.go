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

// Package opt provides the box-constrained global minimizer driving all
// template fits: a population-based differential evolution search within
// the declared parameter box, refined by a Nelder-Mead polish.
package opt

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"
)

// Settings for a minimization run. The zero value selects defaults
type Settings struct {
	MaxEvals int     // objective evaluation budget; default 10000
	Tol      float64 // early stop when the best value improves less than this; default 1e-5
	Seed     uint32  // RNG seed; 0 draws a random seed
	PopSize  int     // population size; 0 selects 10*dim, at least 20
}

// Result of a minimization run
type Result struct {
	X         []float64 // best parameter vector found, within bounds
	Value     float64   // objective value at X
	Evals     int       // objective evaluations used
	Converged bool      // true if the tolerance criterion stopped the search
}

const (
	deWeight    = 0.7 // differential weight F
	deCrossover = 0.9 // crossover probability CR
	deStallGens = 20  // generations below tolerance before stopping
)

// Minimizes the objective over the box [lower,upper] starting from the given
// guess, which is injected into the initial population. The search is
// derivative free; each component of the parameter vector is treated as an
// independently bounded scalar
func Minimize(fn func([]float64) float64, lower, upper, guess []float64, s Settings) (Result, error) {
	dim := len(lower)
	if len(upper) != dim || len(guess) != dim {
		return Result{}, fmt.Errorf("bounds/guess dimension mismatch: %d/%d/%d", len(lower), len(upper), len(guess))
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return Result{}, fmt.Errorf("invalid bounds for parameter %d: [%g,%g]", i, lower[i], upper[i])
		}
	}
	if s.MaxEvals <= 0 {
		s.MaxEvals = 10000
	}
	if s.Tol <= 0 {
		s.Tol = 1e-5
	}
	if s.PopSize <= 0 {
		s.PopSize = 10 * dim
		if s.PopSize < 20 {
			s.PopSize = 20
		}
	}
	if s.Seed == 0 {
		s.Seed = fastrand.Uint32() | 1
	}

	var rng fastrand.RNG
	rng.Seed(s.Seed)
	uniform := func() float64 {
		return float64(rng.Uint32()) * (1.0 / (1 << 32))
	}

	// initialize population: the guess plus uniform random points in the box
	pop := make([][]float64, s.PopSize)
	cost := make([]float64, s.PopSize)
	pop[0] = clampToBounds(append([]float64(nil), guess...), lower, upper)
	for i := 1; i < s.PopSize; i++ {
		x := make([]float64, dim)
		for j := range x {
			x[j] = lower[j] + uniform()*(upper[j]-lower[j])
		}
		pop[i] = x
	}

	evals := 0
	bestIdx := 0
	for i := range pop {
		cost[i] = fn(pop[i])
		evals++
		if cost[i] < cost[bestIdx] {
			bestIdx = i
		}
	}

	best := append([]float64(nil), pop[bestIdx]...)
	bestCost := cost[bestIdx]
	converged := false
	stall := 0
	trial := make([]float64, dim)

	for evals+s.PopSize <= s.MaxEvals && !converged {
		prevBest := bestCost
		for i := 0; i < s.PopSize; i++ {
			// pick three distinct donors != i
			a, b, c := i, i, i
			for a == i {
				a = int(rng.Uint32n(uint32(s.PopSize)))
			}
			for b == i || b == a {
				b = int(rng.Uint32n(uint32(s.PopSize)))
			}
			for c == i || c == a || c == b {
				c = int(rng.Uint32n(uint32(s.PopSize)))
			}

			jrand := int(rng.Uint32n(uint32(dim)))
			for j := 0; j < dim; j++ {
				if j == jrand || uniform() < deCrossover {
					trial[j] = pop[a][j] + deWeight*(pop[b][j]-pop[c][j])
					if trial[j] < lower[j] {
						trial[j] = lower[j]
					}
					if trial[j] > upper[j] {
						trial[j] = upper[j]
					}
				} else {
					trial[j] = pop[i][j]
				}
			}

			trialCost := fn(trial)
			evals++
			if trialCost <= cost[i] {
				copy(pop[i], trial)
				cost[i] = trialCost
				if trialCost < bestCost {
					bestCost = trialCost
					copy(best, trial)
				}
			}
		}

		if prevBest-bestCost < s.Tol {
			stall++
			if stall >= deStallGens {
				converged = true
			}
		} else {
			stall = 0
		}
	}

	// local refinement of the best point found, within the leftover budget
	if remaining := s.MaxEvals - evals; remaining > 0 {
		counted := func(x []float64) float64 {
			evals++
			return fn(x)
		}
		if px, pv, err := polish(counted, best, lower, upper, remaining); err == nil && pv < bestCost {
			best, bestCost = px, pv
		}
	}

	return Result{X: best, Value: bestCost, Evals: evals, Converged: converged}, nil
}

func clampToBounds(x, lower, upper []float64) []float64 {
	for i := range x {
		if x[i] < lower[i] {
			x[i] = lower[i]
		}
		if x[i] > upper[i] {
			x[i] = upper[i]
		}
		if math.IsNaN(x[i]) {
			x[i] = lower[i]
		}
	}
	return x
}
