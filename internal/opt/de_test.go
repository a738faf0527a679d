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
	"math"
	"testing"
)

func sphere(center []float64) func([]float64) float64 {
	return func(x []float64) float64 {
		sum := float64(0)
		for i, v := range x {
			d := v - center[i]
			sum += d * d
		}
		return sum
	}
}

func TestMinimizeSphere(t *testing.T) {
	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}
	guess := []float64{5, -5, 5}
	center := []float64{1, 2, -3}

	res, err := Minimize(sphere(center), lower, upper, guess, Settings{Seed: 42})
	if err != nil {
		t.Fatalf("minimize: %s", err.Error())
	}
	for i, v := range res.X {
		if math.Abs(v-center[i]) > 1e-2 {
			t.Errorf("x[%d]=%f; want %f", i, v, center[i])
		}
	}
	if res.Value > 1e-3 {
		t.Errorf("value=%g; want ~0", res.Value)
	}
	if res.Evals <= 0 {
		t.Errorf("evals=%d; want >0", res.Evals)
	}
}

func TestMinimizeRespectsBounds(t *testing.T) {
	// optimum lies outside the box, the result must sit on its boundary
	lower := []float64{0, 0}
	upper := []float64{1, 1}
	guess := []float64{0.5, 0.5}
	center := []float64{2, -1}

	res, err := Minimize(sphere(center), lower, upper, guess, Settings{Seed: 7})
	if err != nil {
		t.Fatalf("minimize: %s", err.Error())
	}
	for i, v := range res.X {
		if v < lower[i] || v > upper[i] {
			t.Errorf("x[%d]=%f outside [%f,%f]", i, v, lower[i], upper[i])
		}
	}
	if math.Abs(res.X[0]-1) > 1e-2 || math.Abs(res.X[1]) > 1e-2 {
		t.Errorf("x=%v; want (1,0)", res.X)
	}
}

func TestMinimizeDeterministicWithSeed(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}
	guess := []float64{0, 0}
	fn := func(x []float64) float64 {
		// Rastrigin-like, multimodal
		return 20 + x[0]*x[0] - 10*math.Cos(2*math.Pi*x[0]) + x[1]*x[1] - 10*math.Cos(2*math.Pi*x[1])
	}

	a, err := Minimize(fn, lower, upper, guess, Settings{Seed: 123, MaxEvals: 2000})
	if err != nil {
		t.Fatalf("minimize: %s", err.Error())
	}
	b, err := Minimize(fn, lower, upper, guess, Settings{Seed: 123, MaxEvals: 2000})
	if err != nil {
		t.Fatalf("minimize: %s", err.Error())
	}
	if a.Value != b.Value || a.Evals != b.Evals {
		t.Errorf("same seed gave value %g/%d evals vs %g/%d", a.Value, a.Evals, b.Value, b.Evals)
	}
	for i := range a.X {
		if a.X[i] != b.X[i] {
			t.Errorf("same seed gave x[%d]=%f vs %f", i, a.X[i], b.X[i])
		}
	}
}

func TestMinimizeBudget(t *testing.T) {
	evals := 0
	fn := func(x []float64) float64 {
		evals++
		return x[0] * x[0]
	}
	res, err := Minimize(fn, []float64{-1}, []float64{1}, []float64{0.5}, Settings{MaxEvals: 500, Seed: 1})
	if err != nil {
		t.Fatalf("minimize: %s", err.Error())
	}
	if res.Evals != evals {
		t.Errorf("reported %d evals; objective saw %d", res.Evals, evals)
	}
	// the polish checks its limit between iterations, so allow a few extra
	if res.Evals > 500+10 {
		t.Errorf("evals=%d exceeds budget of 500", res.Evals)
	}
}

func TestMinimizeValidation(t *testing.T) {
	fn := func(x []float64) float64 { return 0 }
	if _, err := Minimize(fn, []float64{0, 0}, []float64{1}, []float64{0.5}, Settings{}); err == nil {
		t.Errorf("dimension mismatch accepted")
	}
	if _, err := Minimize(fn, []float64{2}, []float64{1}, []float64{0.5}, Settings{}); err == nil {
		t.Errorf("inverted bounds accepted")
	}
}
