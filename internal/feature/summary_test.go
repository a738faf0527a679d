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
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/mlnoga/ringstat/internal/fit"
	"github.com/mlnoga/ringstat/internal/fits"
	"github.com/mlnoga/ringstat/internal/metric"
	"github.com/mlnoga/ringstat/internal/model"
)

func TestSummarySchema(t *testing.T) {
	schema, err := NewSummarySchema(model.Ring, 2, []int{1, 2}, []int{1})
	if err != nil {
		t.Fatalf("schema: %s", err.Error())
	}
	for _, want := range []string{
		"r0", "sigma", "s_2", "xi_2", "x0", "y0", "f0",
		"divergence", "converged", "degenerate",
		"itot", "qtot", "utot", "vtot",
		"mnet", "mavg", "vnet", "vavg", "netevpa",
		"re_beta_lp_1", "im_beta_lp_2", "re_beta_cp_1",
	} {
		found := false
		for _, name := range schema {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("schema missing column %q", want)
		}
	}
	if strings.Join(schema, ",") == "" {
		t.Errorf("empty schema")
	}
}

func TestRecordSetAndCSV(t *testing.T) {
	rec := NewRecord("a.fits", []string{"x", "y"})
	if err := rec.Set("y", 2.5); err != nil {
		t.Fatalf("set: %s", err.Error())
	}
	if err := rec.Set("z", 1); err == nil {
		t.Errorf("set accepted name outside schema")
	}
	if !math.IsNaN(rec.Get("x")) {
		t.Errorf("unset value=%f; want NaN", rec.Get("x"))
	}

	header := CSVHeader(rec.Names)
	row := rec.CSVRow()
	if len(header) != 3 || len(row) != 3 {
		t.Errorf("header/row lengths %d/%d; want 3/3", len(header), len(row))
	}
	if header[0] != "filename" || row[0] != "a.fits" {
		t.Errorf("first column %q/%q; want filename/a.fits", header[0], row[0])
	}
	if row[2] != "2.5" {
		t.Errorf("row[2]=%q; want 2.5", row[2])
	}
}

// Builds a polarized ring cube suitable for a full summary run
func makeSummaryInput(t *testing.T, n int32, fov float32, x0, y0 float64) *fits.Image {
	tmpl, err := model.New(model.Ring, 1)
	if err != nil {
		t.Fatalf("new ring: %s", err.Error())
	}
	params := make([]float64, len(tmpl.Names()))
	set := func(name string, v float64) { params[model.ParamIndex(tmpl, name)] = v }
	set("r0", 20)
	set("sigma", 4)
	set("s_1", 0.2)
	set("xi_1", 0.5)
	set("tau", 0.05)
	set("xitau", 0.5)
	set("x0", x0)
	set("y0", y0)
	set("f0", 0.001)
	eval := tmpl.Eval(params)

	img := fits.NewImageFromNaxisn([]int32{n, n}, 4, fov, fov, nil)
	di := img.ChanData(fits.ChanI)
	dq := img.ChanData(fits.ChanQ)
	du := img.ChanData(fits.ChanU)
	dv := img.ChanData(fits.ChanV)
	for iy := int32(0); iy < n; iy++ {
		for ix := int32(0); ix < n; ix++ {
			x, y := img.PixelCoords(ix, iy)
			v := float32(eval(x, y))
			i := iy*n + ix
			di[i] = v
			dq[i] = 0.2 * v
			du[i] = 0.1 * v
			dv[i] = -0.05 * v
		}
	}
	img.FileName = "synthetic.fits"
	return img
}

func TestSummaryParams(t *testing.T) {
	if testing.Short() {
		t.Skip("optimizer run in short mode")
	}
	cfg := SummaryConfig{
		Kind: model.Ring,
		Fit:  fit.Config{Divergence: metric.NxCorr, MaxEvals: 8000, Seed: 42},
	}
	schema, err := cfg.Schema()
	if err != nil {
		t.Fatalf("schema: %s", err.Error())
	}

	img := makeSummaryInput(t, 48, 128, 2, -1)
	rec, diag, err := SummaryParams(img, schema, cfg)
	if err != nil {
		t.Fatalf("summary: %s", err.Error())
	}
	if diag.Degenerate {
		t.Errorf("synthetic input flagged as degenerate")
	}

	// every schema column gets a value
	for i, name := range rec.Names {
		if math.IsNaN(rec.Values[i]) {
			t.Errorf("column %q unset", name)
		}
	}
	if itot := rec.Get("itot"); itot <= 0 {
		t.Errorf("itot=%f; want >0", itot)
	}
	// uniform polarization fractions survive the aggregates
	if mnet := rec.Get("mnet"); math.Abs(mnet-math.Hypot(0.2, 0.1)) > 0.01 {
		t.Errorf("mnet=%f; want %f", mnet, math.Hypot(0.2, 0.1))
	}
	if vnet := rec.Get("vnet"); math.Abs(vnet+0.05) > 0.01 {
		t.Errorf("vnet=%f; want -0.05", vnet)
	}
	if evpa := rec.Get("netevpa"); math.Abs(evpa-0.5*math.Atan2(0.1, 0.2)) > 1e-6 {
		t.Errorf("netevpa=%f; want %f", evpa, 0.5*math.Atan2(0.1, 0.2))
	}
}

// A pure azimuthal mode-1 polarization pattern on an off-center ring must
// survive the recentering fit: LPModes on the recentered cube recovers the
// injected coefficient
func TestModeRecoveryAfterRecentering(t *testing.T) {
	if testing.Short() {
		t.Skip("optimizer run in short mode")
	}
	const p0, phi = 0.3, 0.8
	const cx, cy = 3.0, -2.0

	tmpl, err := model.New(model.Ring, 1)
	if err != nil {
		t.Fatalf("new ring: %s", err.Error())
	}
	params := make([]float64, len(tmpl.Names()))
	set := func(name string, v float64) { params[model.ParamIndex(tmpl, name)] = v }
	set("r0", 20)
	set("sigma", 4)
	set("s_1", 0.2)
	set("xi_1", 0.5)
	set("tau", 0.05)
	set("xitau", 0.5)
	set("x0", cx)
	set("y0", cy)
	set("f0", 0.001)
	eval := tmpl.Eval(params)

	n := int32(64)
	img := fits.NewImageFromNaxisn([]int32{n, n}, 4, 128, 128, nil)
	di, dq, du := img.ChanData(fits.ChanI), img.ChanData(fits.ChanQ), img.ChanData(fits.ChanU)
	for iy := int32(0); iy < n; iy++ {
		for ix := int32(0); ix < n; ix++ {
			x, y := img.PixelCoords(ix, iy)
			v := eval(x, y)
			theta := fits.Theta(x-cx, y-cy) // azimuth about the ring center
			i := iy*n + ix
			di[i] = float32(v)
			dq[i] = float32(p0 * v * math.Cos(theta+phi))
			du[i] = float32(p0 * v * math.Sin(theta+phi))
		}
	}

	cfg := fit.Config{Divergence: metric.NxCorr, MaxEvals: 30000, Seed: 42}
	shifted, _, diag, err := fit.CenterTemplate(img, model.Ring, 1, cfg)
	if err != nil {
		t.Fatalf("center: %s", err.Error())
	}
	if diag.Degenerate {
		t.Errorf("synthetic ring flagged as degenerate")
	}

	beta, err := LPModes(shifted, []int{1}, 5, 40)
	if err != nil {
		t.Fatalf("lpmodes: %s", err.Error())
	}
	amp := math.Hypot(real(beta[0]), imag(beta[0]))
	if math.Abs(amp-p0)/p0 > 0.1 {
		t.Errorf("mode 1 amplitude=%f; want %f within 10%%", amp, p0)
	}
	phase := math.Atan2(imag(beta[0]), real(beta[0]))
	if math.Abs(phase-phi) > 0.2 {
		t.Errorf("mode 1 phase=%f; want %f", phase, phi)
	}
}

func TestSummaryRequiresPolarized(t *testing.T) {
	cfg := SummaryConfig{Kind: model.Ring}
	schema, _ := cfg.Schema()
	mono := fits.NewImageFromNaxisn([]int32{16, 16}, 1, 64, 64, nil)
	if _, _, err := SummaryParams(mono, schema, cfg); err == nil {
		t.Errorf("summary accepted intensity-only image")
	}
}

func TestRunSummaryBatchIsolatesFailures(t *testing.T) {
	cfg := SummaryConfig{Kind: model.Ring, Fit: fit.Config{MaxEvals: 100}}
	buf := bytes.Buffer{}
	results, err := RunSummaryBatch([]string{"does-not-exist-1.fits", "does-not-exist-2.fits"},
		0, cfg, 2, true, &buf, io.Discard)
	if err != nil {
		t.Fatalf("batch: %s", err.Error())
	}
	if len(results) != 2 {
		t.Fatalf("got %d results; want 2", len(results))
	}
	for i, r := range results {
		if r.Err == nil {
			t.Errorf("result %d has no error for missing file", i)
		}
	}
	// header row only, no data rows
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "filename,") {
		t.Errorf("unexpected batch output %q", buf.String())
	}
}
