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

package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/ringstat/internal/feature"
	"github.com/mlnoga/ringstat/internal/fit"
	"github.com/mlnoga/ringstat/internal/fits"
	"github.com/mlnoga/ringstat/internal/metric"
	"github.com/mlnoga/ringstat/internal/model"
)

func Serve() {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/summary", postSummary)
			v1.POST("/match", postMatch)
		}
	}
	r.Run() // listen and serve on 0.0.0.0:8080
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Expands glob patterns into a sorted, deduplicated file list
func globFilePatterns(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	fileNames := []string{}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				fileNames = append(fileNames, m)
			}
		}
	}
	sort.Strings(fileNames)
	if len(fileNames) == 0 {
		return nil, fmt.Errorf("no files match the given patterns")
	}
	return fileNames, nil
}

type postSummaryArgs struct {
	FilePatterns []string `json:"filePatterns"`
	Template     string   `json:"template"`     // ring, disk or dualgauss; default ring
	Order        int      `json:"order"`        // ring expansion order
	LPModes      []int    `json:"lpModes"`      // default [1,2]
	CPModes      []int    `json:"cpModes"`      // default [1]
	Divergence   string   `json:"divergence"`   // nxcorr or lsq; default nxcorr
	MaxEvals     int      `json:"maxEvals"`     // optimizer budget per image
	Seed         uint32   `json:"seed"`         // 0 draws random seeds
	RMin         float64  `json:"rMin"`         // mode annulus inner radius, uas
	RMax         float64  `json:"rMax"`         // mode annulus outer radius, uas
	FluxDiameter float64  `json:"fluxDiameter"` // central flux window, uas
}

func postSummary(c *gin.Context) {
	logWriter := c.Writer
	var args postSummaryArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind, div, err := parseKinds(args.Template, args.Divergence)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	fileNames, err := globFilePatterns(args.FilePatterns)
	if err != nil {
		fmt.Fprintf(logWriter, "Error globbing filenames: %s\n", err.Error())
		return
	}

	cfg := feature.SummaryConfig{
		Kind:                kind,
		Order:               args.Order,
		LPModes:             args.LPModes,
		CPModes:             args.CPModes,
		RMin:                args.RMin,
		RMax:                args.RMax,
		CentralFluxDiameter: args.FluxDiameter,
		Fit: fit.Config{
			Divergence: div,
			MaxEvals:   args.MaxEvals,
			Seed:       args.Seed,
			Log:        logWriter,
		},
	}

	_, err = feature.RunSummaryBatch(fileNames, 0, cfg, runtime.NumCPU(), true, logWriter, logWriter)
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	}
	logWriter.(http.Flusher).Flush()
}

type postMatchArgs struct {
	Target       string   `json:"target"`
	FilePatterns []string `json:"filePatterns"`
	Divergence   string   `json:"divergence"`
	MaxEvals     int      `json:"maxEvals"`
	Seed         uint32   `json:"seed"`
}

func postMatch(c *gin.Context) {
	logWriter := c.Writer
	var args postMatchArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, div, err := parseKinds("", args.Divergence)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	target, err := fits.NewImageFromFile(args.Target, 0, logWriter)
	if err != nil {
		fmt.Fprintf(logWriter, "Error loading target: %s\n", err.Error())
		return
	}

	fileNames, err := globFilePatterns(args.FilePatterns)
	if err != nil {
		fmt.Fprintf(logWriter, "Error globbing filenames: %s\n", err.Error())
		return
	}

	cfg := fit.Config{Divergence: div, MaxEvals: args.MaxEvals, Seed: args.Seed, Log: logWriter}
	for i, fileName := range fileNames {
		input, err := fits.NewImageFromFile(fileName, i+1, logWriter)
		if err != nil {
			fmt.Fprintf(logWriter, "%d: Error loading %s: %s\n", i+1, fileName, err.Error())
			continue
		}
		_, params, _, err := fit.MatchCenterAndRes(target, input, cfg)
		if err != nil {
			fmt.Fprintf(logWriter, "%d: error: %s\n", i+1, err.Error())
			continue
		}
		m, _ := json.Marshal(params)
		fmt.Fprintf(logWriter, "%d: %s: %s\n", i+1, fileName, string(m))
	}
	logWriter.(http.Flusher).Flush()
}

func parseKinds(template, divergence string) (model.Kind, metric.Kind, error) {
	kind := model.Ring
	if template != "" {
		k, err := model.ParseKind(template)
		if err != nil {
			return 0, 0, err
		}
		kind = k
	}
	div := metric.NxCorr
	if divergence != "" {
		d, err := metric.ParseKind(divergence)
		if err != nil {
			return 0, 0, err
		}
		div = d
	}
	return kind, div, nil
}
