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

package model

import (
	"math"
	"testing"

	"github.com/mlnoga/ringstat/internal/fits"
)

func allTemplates(t *testing.T) []Template {
	res := []Template{}
	for _, order := range []int{1, 2, 4} {
		tmpl, err := New(Ring, order)
		if err != nil {
			t.Fatalf("ring order %d: %s", order, err.Error())
		}
		res = append(res, tmpl)
	}
	for _, kind := range []Kind{Disk, DualGauss} {
		tmpl, err := New(kind, 1)
		if err != nil {
			t.Fatalf("%s: %s", kind, err.Error())
		}
		res = append(res, tmpl)
	}
	return res
}

func TestBoundsConsistency(t *testing.T) {
	for _, tmpl := range allTemplates(t) {
		names := tmpl.Names()
		lower, upper, guess := tmpl.Bounds(128, 128)
		if len(lower) != len(names) || len(upper) != len(names) || len(guess) != len(names) {
			t.Errorf("%s: bounds lengths %d/%d/%d; want %d", tmpl.Kind(), len(lower), len(upper), len(guess), len(names))
			continue
		}
		for i, name := range names {
			if lower[i] > upper[i] {
				t.Errorf("%s %s: lower %f > upper %f", tmpl.Kind(), name, lower[i], upper[i])
			}
			if guess[i] < lower[i] || guess[i] > upper[i] {
				t.Errorf("%s %s: guess %f outside [%f,%f]", tmpl.Kind(), name, guess[i], lower[i], upper[i])
			}
		}
		if err := ValidateBounds(names, lower, upper, guess); err != nil {
			t.Errorf("%s: guess fails validation: %s", tmpl.Kind(), err.Error())
		}
	}
}

func TestRingParamCount(t *testing.T) {
	// r0, sigma, order s_n and xi_n pairs, tau, xitau, x0, y0, f0
	for _, order := range []int{1, 2, 4} {
		tmpl, _ := New(Ring, order)
		if got, want := len(tmpl.Names()), 7+2*order; got != want {
			t.Errorf("ring order %d has %d parameters; want %d", order, got, want)
		}
	}
	if _, err := New(Ring, 0); err == nil {
		t.Errorf("ring order 0 accepted")
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, name := range []string{"ring", "disk", "dualgauss"} {
		k, err := ParseKind(name)
		if err != nil {
			t.Errorf("ParseKind(%q): %s", name, err.Error())
		}
		if k.String() != name {
			t.Errorf("ParseKind(%q).String()=%q", name, k.String())
		}
	}
	if _, err := ParseKind("mring"); err == nil {
		t.Errorf("ParseKind accepted unknown template")
	}
}

func TestParamIndex(t *testing.T) {
	tmpl, _ := New(Ring, 2)
	if i := ParamIndex(tmpl, "s_2"); i < 0 {
		t.Errorf("s_2 not found in ring order 2")
	}
	if i := ParamIndex(tmpl, "s_3"); i >= 0 {
		t.Errorf("s_3 found in ring order 2 at %d", i)
	}
}

func TestValidateBounds(t *testing.T) {
	names := []string{"a", "b"}
	lower, upper := []float64{0, 0}, []float64{1, 1}
	if err := ValidateBounds(names, lower, upper, []float64{0.5, 0.5}); err != nil {
		t.Errorf("in-bounds values rejected: %s", err.Error())
	}
	err := ValidateBounds(names, lower, upper, []float64{0.5, 1.5})
	if err == nil {
		t.Fatalf("out-of-bounds value accepted")
	}
	bve, ok := err.(*BoundsViolationError)
	if !ok {
		t.Fatalf("error type %T; want *BoundsViolationError", err)
	}
	if bve.Name != "b" || bve.Value != 1.5 {
		t.Errorf("violation %s=%f; want b=1.5", bve.Name, bve.Value)
	}
}

func TestRingEval(t *testing.T) {
	tmpl, _ := New(Ring, 1)
	names := tmpl.Names()
	params := make([]float64, len(names))
	set := func(name string, v float64) { params[ParamIndex(tmpl, name)] = v }
	set("r0", 20)
	set("sigma", 4)
	set("s_1", 0.3)
	set("xi_1", 0)
	set("tau", 0)
	set("xitau", 0)
	set("f0", 0.001)

	eval := tmpl.Eval(params)
	// on-ring brightness peaks at azimuth 0, i.e. straight up
	top, bottom := eval(0, 20), eval(0, -20)
	if math.Abs(top-1.301) > 1e-6 {
		t.Errorf("ring brightness at azimuth 0 = %f; want 1.301", top)
	}
	if math.Abs(bottom-0.701) > 1e-6 {
		t.Errorf("ring brightness at azimuth pi = %f; want 0.701", bottom)
	}
	// off-ring brightness decays towards the floor
	if far := eval(0, 60); far > 0.01 {
		t.Errorf("ring brightness far off ring = %f; want near floor", far)
	}
	// brightness never goes negative even for large contrasts
	set("s_1", 0.95)
	eval = tmpl.Eval(params)
	for az := 0.0; az < 2*math.Pi; az += 0.1 {
		if v := eval(-20*math.Sin(az), 20*math.Cos(az)); v < 0 {
			t.Errorf("negative ring brightness %f at azimuth %f", v, az)
		}
	}
}

func TestDiskEval(t *testing.T) {
	tmpl, _ := New(Disk, 1)
	params := make([]float64, len(tmpl.Names()))
	set := func(name string, v float64) { params[ParamIndex(tmpl, name)] = v }
	set("r0", 25)
	set("sigma", 3)
	set("f0", 0.001)

	eval := tmpl.Eval(params)
	if inside := eval(5, -5); math.Abs(inside-1.001) > 1e-6 {
		t.Errorf("disk interior brightness=%f; want 1.001", inside)
	}
	edge, far := eval(0, 26), eval(0, 60)
	if edge <= far || edge >= 1.001 {
		t.Errorf("disk edge brightness=%f not between far %f and interior", edge, far)
	}
}

func TestDualGaussEval(t *testing.T) {
	tmpl, _ := New(DualGauss, 1)
	params := make([]float64, len(tmpl.Names()))
	set := func(name string, v float64) { params[ParamIndex(tmpl, name)] = v }
	set("sigma1", 5)
	set("sigma2", 5)
	set("x0", -10)
	set("y0", 0)
	set("x1", 10)
	set("y1", 0)
	set("f2", 0.5)

	eval := tmpl.Eval(params)
	if got := eval(-10, 0); math.Abs(got-1) > 0.01 {
		t.Errorf("first component peak=%f; want ~1", got)
	}
	if got := eval(10, 0); math.Abs(got-0.5) > 0.01 {
		t.Errorf("second component peak=%f; want ~0.5", got)
	}
}

func TestRenderOnto(t *testing.T) {
	ref := fits.NewImageFromNaxisn([]int32{32, 32}, 4, 128, 128, nil)
	tmpl, _ := New(Ring, 1)
	_, _, guess := tmpl.Bounds(ref.FovX, ref.FovY)
	img := RenderOnto(tmpl, guess, ref)
	if img.Channels != 1 || !fits.EqualInt32Slice(img.Naxisn, ref.Naxisn) {
		t.Errorf("rendered %s with %d channels; want 32x32 with 1", img.DimensionsToString(), img.Channels)
	}
	if img.Flux(fits.ChanI) <= 0 {
		t.Errorf("rendered flux=%f; want >0", img.Flux(fits.ChanI))
	}
}
