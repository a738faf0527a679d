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
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"github.com/mlnoga/ringstat/internal/fits"
)

// Result of summarizing one image in a batch. Failed images carry their
// error and a nil record; the batch continues past them
type BatchResult struct {
	ID       int
	FileName string
	Record   *Record
	Err      error
}

// Runs summary extraction over the given files with a bounded worker pool
// and writes one CSV row per successful image to out, in input order.
// writeHeader selects whether a header row precedes the data, allowing
// appends to an existing table. Per-image failures are logged and reported
// in the returned results, they do not abort the batch
func RunSummaryBatch(fileNames []string, firstID int, cfg SummaryConfig, maxThreads int,
	writeHeader bool, out io.Writer, logWriter io.Writer) ([]BatchResult, error) {
	schema, err := cfg.Schema()
	if err != nil {
		return nil, err
	}
	if maxThreads < 1 {
		maxThreads = 1
	}

	results := make([]BatchResult, len(fileNames))
	sem := make(chan bool, maxThreads)
	wg := sync.WaitGroup{}
	for i, fileName := range fileNames {
		i, fileName := i, fileName
		id := firstID + i
		sem <- true
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			rec, err := summarizeFile(fileName, id, schema, cfg, logWriter)
			if err != nil {
				fmt.Fprintf(logWriter, "%d: Error processing %s: %s\n", id, fileName, err.Error())
			}
			results[i] = BatchResult{ID: id, FileName: fileName, Record: rec, Err: err}
		}()
	}
	wg.Wait()

	w := csv.NewWriter(out)
	if writeHeader {
		if err := w.Write(CSVHeader(schema)); err != nil {
			return results, err
		}
	}
	for _, res := range results {
		if res.Record == nil {
			continue
		}
		if err := w.Write(res.Record.CSVRow()); err != nil {
			return results, err
		}
	}
	w.Flush()
	return results, w.Error()
}

func summarizeFile(fileName string, id int, schema []string, cfg SummaryConfig, logWriter io.Writer) (*Record, error) {
	img, err := fits.NewImageFromFile(fileName, id, logWriter)
	if err != nil {
		return nil, err
	}
	localCfg := cfg
	localCfg.Fit.Log = logWriter
	rec, _, err := SummaryParams(img, schema, localCfg)
	return rec, err
}
