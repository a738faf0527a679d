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

package opt

import (
	"gonum.org/v1/gonum/optimize"
)

// Refines the given point with a derivative-free Nelder-Mead descent,
// stopping after at most maxEvals objective evaluations. The objective is
// evaluated on bound-clamped parameters, so the returned point stays inside
// the box
func polish(fn func([]float64) float64, x0, lower, upper []float64, maxEvals int) (x []float64, value float64, err error) {
	clamped := make([]float64, len(x0))
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			copy(clamped, p)
			clampToBounds(clamped, lower, upper)
			return fn(clamped)
		},
	}
	settings := &optimize.Settings{FuncEvaluations: maxEvals}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, 0, err
	}
	x = clampToBounds(append([]float64(nil), result.X...), lower, upper)
	return x, result.F, nil
}
