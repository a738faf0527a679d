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

	"github.com/mlnoga/ringstat/internal/fit"
	"github.com/mlnoga/ringstat/internal/fits"
	"github.com/mlnoga/ringstat/internal/model"
)

// Configuration for summary statistics extraction. The zero value selects
// ring template defaults
type SummaryConfig struct {
	Kind    model.Kind // template to fit for centering and morphology
	Order   int        // azimuthal expansion order for ring templates; 0 selects 1
	LPModes []int      // linear polarization modes to decompose; nil selects [1,2]
	CPModes []int      // circular polarization modes to decompose; nil selects [1]

	RMin float64 // inner annulus radius for mode decomposition in uas
	RMax float64 // outer annulus radius in uas; 0 selects half the field of view

	CentralFluxDiameter float64 // central flux window side in uas; 0 selects 60

	Fit fit.Config // optimizer and divergence settings for the template fit
}

func (c SummaryConfig) order() int {
	if c.Order <= 0 {
		return 1
	}
	return c.Order
}

func (c SummaryConfig) lpModes() []int {
	if c.LPModes == nil {
		return []int{1, 2}
	}
	return c.LPModes
}

func (c SummaryConfig) cpModes() []int {
	if c.CPModes == nil {
		return []int{1}
	}
	return c.CPModes
}

func (c SummaryConfig) rMax(f *fits.Image) float64 {
	if c.RMax > 0 {
		return c.RMax
	}
	fov := float64(f.FovX)
	if float64(f.FovY) < fov {
		fov = float64(f.FovY)
	}
	return fov * 0.5 // out to the window edge
}

func (c SummaryConfig) centralFluxDiameter() float64 {
	if c.CentralFluxDiameter <= 0 {
		return 60
	}
	return c.CentralFluxDiameter
}

// The schema of records produced by SummaryParams under this configuration
func (c SummaryConfig) Schema() ([]string, error) {
	return NewSummarySchema(c.Kind, c.order(), c.lpModes(), c.cpModes())
}

// Extracts the full summary statistics record from a polarized image:
// fits the configured template to Stokes I, recenters the cube on the fit,
// crops to the central flux window, and measures flux totals, polarization
// aggregates and azimuthal modes on that centered window. The net EVPA is
// translation invariant and measured on the original image
func SummaryParams(img *fits.Image, schema []string, cfg SummaryConfig) (*Record, fit.Diag, error) {
	var diag fit.Diag
	if err := img.RequirePolarized("summary"); err != nil {
		return nil, diag, err
	}

	shifted, params, diag, err := fit.CenterTemplate(img, cfg.Kind, cfg.order(), cfg.Fit)
	if err != nil {
		return nil, diag, err
	}
	window := shifted.Crop(cfg.centralFluxDiameter())

	rec := NewRecord(img.FileName, schema)
	for name, v := range params.Map() {
		if err := rec.Set(name, v); err != nil {
			return nil, diag, err
		}
	}
	rec.Set("divergence", diag.Value)
	rec.Set("converged", boolToFloat(diag.Converged))
	rec.Set("degenerate", boolToFloat(diag.Degenerate))

	rec.Set("itot", window.Flux(fits.ChanI))
	rec.Set("qtot", window.Flux(fits.ChanQ))
	rec.Set("utot", window.Flux(fits.ChanU))
	rec.Set("vtot", window.Flux(fits.ChanV))

	if err := setAggregate(rec, "mnet", window, MNet); err != nil {
		return nil, diag, err
	}
	if err := setAggregate(rec, "mavg", window, MAvg); err != nil {
		return nil, diag, err
	}
	if err := setAggregate(rec, "vnet", window, VNet); err != nil {
		return nil, diag, err
	}
	if err := setAggregate(rec, "vavg", window, VAvg); err != nil {
		return nil, diag, err
	}
	if err := setAggregate(rec, "netevpa", img, NetEVPA); err != nil {
		return nil, diag, err
	}

	rMax := cfg.rMax(window)
	lp, err := LPModes(window, cfg.lpModes(), cfg.RMin, rMax)
	if err != nil {
		return nil, diag, err
	}
	cp, err := CPModes(window, cfg.cpModes(), cfg.RMin, rMax)
	if err != nil {
		return nil, diag, err
	}
	if err := setModes(rec, "lp", cfg.lpModes(), lp); err != nil {
		return nil, diag, err
	}
	if err := setModes(rec, "cp", cfg.cpModes(), cp); err != nil {
		return nil, diag, err
	}

	return rec, diag, nil
}

func setAggregate(rec *Record, name string, f *fits.Image, agg func(*fits.Image) (float64, error)) error {
	v, err := agg(f)
	if err != nil {
		return err
	}
	return rec.Set(name, v)
}

func setModes(rec *Record, pol string, modes []int, beta []complex128) error {
	for k, m := range modes {
		if err := rec.Set(fmt.Sprintf("re_beta_%s_%d", pol, m), real(beta[k])); err != nil {
			return err
		}
		if err := rec.Set(fmt.Sprintf("im_beta_%s_%d", pol, m), imag(beta[k])); err != nil {
			return err
		}
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
