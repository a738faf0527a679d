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

package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/ringstat/internal/feature"
	"github.com/mlnoga/ringstat/internal/fit"
	"github.com/mlnoga/ringstat/internal/fits"
	"github.com/mlnoga/ringstat/internal/metric"
	"github.com/mlnoga/ringstat/internal/model"
	"github.com/mlnoga/ringstat/internal/rest"
)

const version = "0.1.0"

var totalMiBs = memory.TotalMemory() / 1024 / 1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "summary_ringparams.csv", "save summary statistics to `file`, appending to existing results")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")

var template = flag.String("template", "ring", "template to fit, one of ring, disk, dualgauss")
var order = flag.Int("order", 1, "azimuthal expansion order for ring templates")
var div = flag.String("div", "nxcorr", "divergence to minimize, one of nxcorr, lsq")
var maxIters = flag.Int("maxIters", 30000, "objective evaluation budget per fit")
var seed = flag.Uint("seed", 0, "optimizer random seed, 0=draw randomly")

var gridSize = flag.Int("gridSize", 0, "fit on a coarse NxN grid of this size in pixels, 0=fit at native resolution")
var gridFov = flag.Float64("gridFov", 0, "field of view of the coarse fitting grid in uas, required with gridSize")

var lpModesFlag = flag.String("lpmodes", "1,2", "comma-separated linear polarization modes to decompose")
var cpModesFlag = flag.String("cpmodes", "1", "comma-separated circular polarization modes to decompose")
var rMin = flag.Float64("rmin", 0, "inner radius of the mode decomposition annulus in uas")
var rMax = flag.Float64("rmax", 0, "outer radius of the mode decomposition annulus in uas, 0=half the field of view")
var fluxDiameter = flag.Float64("fluxDiameter", 60, "side of the central flux window in uas")

var target = flag.String("target", "", "match inputs against this reference `file`")
var save = flag.String("save", "", "save transformed frames with given filename pattern, e.g. `matched%04d.fits`")
var jpg = flag.String("jpg", "", "save 8bit intensity previews with given filename pattern, e.g. `preview%04d.jpg`")
var evpaJpg = flag.String("evpaJpg", "", "save polarization angle previews with given filename pattern, e.g. `evpa%04d.jpg`")
var tiff = flag.String("tiff", "", "save 16bit intensity exports with given filename pattern, e.g. `export%04d.tiff`")

func main() {
	logWriter := io.Writer(os.Stdout)
	debug.SetGCPercent(10)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `Ringstat Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (summary|center|match|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  summary Fit a template to each input and append one row of summary statistics per image to the output table
  center  Fit a template to each input and save the image recentered on the fit
  match   Fit shift and blur matching each input onto the -target image
  serve   Provide the above as REST endpoints on port 8080
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if *out != "" {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		err := LogAlsoToFile(*log)
		if err != nil {
			LogFatalf("Unable to open logfile '%s'\n", *log)
		}
		logWriter = LogWriter()
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	var err error
	switch args[0] {
	case "summary":
		err = cmdSummary(args[1:], logWriter)

	case "center":
		err = cmdCenter(args[1:], logWriter)

	case "match":
		err = cmdMatch(args[1:], logWriter)

	case "serve":
		rest.Serve()

	case "legal":
		cmdLegal()

	case "version":
		fmt.Fprintf(logWriter, "Version %s on %s with %d physical %d logical cores, AVX2 %t\n",
			version, cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2())

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	now := time.Now()
	elapsed := now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
	LogSync()
}

// Shared fit settings from the command line flags
func fitConfigFromFlags(logWriter io.Writer) (fit.Config, error) {
	d, err := metric.ParseKind(*div)
	if err != nil {
		return fit.Config{}, err
	}
	cfg := fit.Config{
		Divergence: d,
		MaxEvals:   *maxIters,
		Seed:       uint32(*seed),
		Log:        logWriter,
	}
	if *gridSize > 0 {
		if *gridFov <= 0 {
			return fit.Config{}, fmt.Errorf("-gridSize requires -gridFov")
		}
		cfg.Grid = fits.Grid{
			Nx: int32(*gridSize), Ny: int32(*gridSize),
			FovX: float32(*gridFov), FovY: float32(*gridFov),
		}
	}
	return cfg, nil
}

// Extract summary statistics from all input images and append them to the
// output table, skipping images already present in it
func cmdSummary(args []string, logWriter io.Writer) error {
	fileNames, err := globFilePatterns(args)
	if err != nil {
		return err
	}

	fitCfg, err := fitConfigFromFlags(logWriter)
	if err != nil {
		return err
	}
	kind, err := model.ParseKind(*template)
	if err != nil {
		return err
	}
	lpModes, err := parseIntList(*lpModesFlag)
	if err != nil {
		return fmt.Errorf("invalid -lpmodes: %w", err)
	}
	cpModes, err := parseIntList(*cpModesFlag)
	if err != nil {
		return fmt.Errorf("invalid -cpmodes: %w", err)
	}
	cfg := feature.SummaryConfig{
		Kind:                kind,
		Order:               *order,
		LPModes:             lpModes,
		CPModes:             cpModes,
		RMin:                *rMin,
		RMax:                *rMax,
		CentralFluxDiameter: *fluxDiameter,
		Fit:                 fitCfg,
	}

	// resume an interrupted run by skipping files already in the output table
	processed, haveTable, err := loadProcessedFileNames(*out)
	if err != nil {
		return err
	}
	remaining := []string{}
	for _, f := range fileNames {
		if !processed[f] {
			remaining = append(remaining, f)
		}
	}
	if skipped := len(fileNames) - len(remaining); skipped > 0 {
		fmt.Fprintf(logWriter, "Skipping %d of %d input files already present in %s\n", skipped, len(fileNames), *out)
	}
	if len(remaining) == 0 {
		fmt.Fprintf(logWriter, "Nothing to do\n")
		return nil
	}

	outFile, err := os.OpenFile(*out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	defer outFile.Close()

	// bound parallelism by physical memory: each worker materializes one
	// Stokes cube plus optimizer working copies
	maxThreads := maxBatchThreads(remaining[0])
	fmt.Fprintf(logWriter, "Processing %d files with %d workers within %d MiB physical memory\n",
		len(remaining), maxThreads, totalMiBs)

	results, err := feature.RunSummaryBatch(remaining, len(processed), cfg, maxThreads,
		!haveTable, outFile, logWriter)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed, see log for details", failed, len(results))
	}
	return nil
}

// Fit the configured template to each input and save the recentered image,
// with optional preview exports
func cmdCenter(args []string, logWriter io.Writer) error {
	fileNames, err := globFilePatterns(args)
	if err != nil {
		return err
	}
	fitCfg, err := fitConfigFromFlags(logWriter)
	if err != nil {
		return err
	}
	kind, err := model.ParseKind(*template)
	if err != nil {
		return err
	}

	for i, fileName := range fileNames {
		img, err := fits.NewImageFromFile(fileName, i, logWriter)
		if err != nil {
			return err
		}
		shifted, params, _, err := fit.CenterTemplate(img, kind, *order, fitCfg)
		if err != nil {
			return err
		}
		m, _ := json.Marshal(params.Map())
		fmt.Fprintf(logWriter, "%d: %s: %s\n", i, fileName, string(m))
		if err := saveFrame(shifted, i); err != nil {
			return err
		}
	}
	return nil
}

// Fit shift and blur matching each input onto the target image, and save
// the transformed inputs
func cmdMatch(args []string, logWriter io.Writer) error {
	if *target == "" {
		return fmt.Errorf("match requires -target")
	}
	fileNames, err := globFilePatterns(args)
	if err != nil {
		return err
	}
	fitCfg, err := fitConfigFromFlags(logWriter)
	if err != nil {
		return err
	}

	targetImg, err := fits.NewImageFromFile(*target, 0, logWriter)
	if err != nil {
		return err
	}

	for i, fileName := range fileNames {
		input, err := fits.NewImageFromFile(fileName, i+1, logWriter)
		if err != nil {
			return err
		}
		transformed, params, _, err := fit.MatchCenterAndRes(targetImg, input, fitCfg)
		if err != nil {
			return err
		}
		m, _ := json.Marshal(params)
		fmt.Fprintf(logWriter, "%d: %s: %s\n", i+1, fileName, string(m))
		if err := saveFrame(transformed, i+1); err != nil {
			return err
		}
	}
	return nil
}

// Saves the given frame per the -save, -jpg, -evpaJpg and -tiff patterns
func saveFrame(img *fits.Image, id int) error {
	if *save != "" {
		if err := img.WriteFile(fmt.Sprintf(*save, id)); err != nil {
			return err
		}
	}
	if *jpg != "" {
		max := maxPixel(img.ChanData(fits.ChanI))
		if err := img.WriteMonoJPGToFile(fmt.Sprintf(*jpg, id), fits.ChanI, 0, max, 1.0, 95); err != nil {
			return err
		}
	}
	if *evpaJpg != "" {
		if err := img.WriteEVPAJPGToFile(fmt.Sprintf(*evpaJpg, id), 95); err != nil {
			return err
		}
	}
	if *tiff != "" {
		max := maxPixel(img.ChanData(fits.ChanI))
		if err := img.WriteTIFF16ToFile(fmt.Sprintf(*tiff, id), fits.ChanI, 0, max, 1.0); err != nil {
			return err
		}
	}
	return nil
}

func maxPixel(data []float32) float32 {
	max := float32(0)
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		max = 1
	}
	return max
}

// Bounds worker count by CPUs and by physical memory, estimating the
// working set per image from the first input file
func maxBatchThreads(sampleFileName string) int {
	maxThreads := runtime.NumCPU()
	if info, err := os.Stat(sampleFileName); err == nil && info.Size() > 0 {
		// decoded float32 planes plus fit working copies run ~8x the file size
		perImageMiB := uint64(info.Size())*8/1024/1024 + 1
		if byMemory := int(totalMiBs * 7 / 10 / perImageMiB); byMemory < maxThreads {
			maxThreads = byMemory
		}
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	return maxThreads
}

// File names recorded in the first column of an existing output table
func loadProcessedFileNames(fileName string) (processed map[string]bool, haveTable bool, err error) {
	processed = map[string]bool{}
	f, err := os.Open(fileName)
	if os.IsNotExist(err) {
		return processed, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, false, fmt.Errorf("cannot resume from %s: %w", fileName, err)
	}
	for i, row := range rows {
		if i == 0 || len(row) == 0 { // header
			continue
		}
		processed[row[0]] = true
	}
	return processed, len(rows) > 0, nil
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
		if matches == nil {
			// no metacharacters or no matches, take the name literally
			matches = []string{pattern}
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
		return nil, fmt.Errorf("no input files given")
	}
	return fileNames, nil
}

func parseIntList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	res := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}
