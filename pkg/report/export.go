package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/srodi/tabmem/pkg/types"
)

// CSVHeader is the first line of every CSV export.
var CSVHeader = []string{"browser", "tabs", "baseline_mb", "total_mb", "per_tab_mb"}

// RunID formats a run start time as an ISO timestamp with ':' and '.'
// replaced, e.g. 2026-10-16T09-30-00-123Z.
func RunID(start time.Time) string {
	iso := start.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(iso)
}

// Paths lists the files written by one export.
type Paths struct {
	JSON string
	CSV  string
}

// Exporter writes result files into a directory of an afero filesystem.
type Exporter struct {
	fs  afero.Fs
	dir string
}

// NewExporter returns an Exporter writing into dir.
func NewExporter(fs afero.Fs, dir string) *Exporter {
	if dir == "" {
		dir = "."
	}
	return &Exporter{fs: fs, dir: dir}
}

// Write stores results as results-<runID>.json and results-<runID>.csv.
func (e *Exporter) Write(runID string, results []types.TrialResult) (Paths, error) {
	return e.write("results-"+runID, results)
}

// WritePartial stores the results gathered before an interrupt.
func (e *Exporter) WritePartial(runID string, results []types.TrialResult) (Paths, error) {
	return e.write("results-"+runID+"-partial", results)
}

func (e *Exporter) write(base string, results []types.TrialResult) (Paths, error) {
	if err := e.fs.MkdirAll(e.dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating output dir: %w", err)
	}
	paths := Paths{
		JSON: filepath.Join(e.dir, base+".json"),
		CSV:  filepath.Join(e.dir, base+".csv"),
	}

	var jsonBuf bytes.Buffer
	if err := EncodeJSON(&jsonBuf, results); err != nil {
		return Paths{}, err
	}
	if err := afero.WriteFile(e.fs, paths.JSON, jsonBuf.Bytes(), 0o644); err != nil {
		return Paths{}, fmt.Errorf("writing %s: %w", paths.JSON, err)
	}

	var csvBuf bytes.Buffer
	if err := EncodeCSV(&csvBuf, results); err != nil {
		return Paths{}, err
	}
	if err := afero.WriteFile(e.fs, paths.CSV, csvBuf.Bytes(), 0o644); err != nil {
		return Paths{}, fmt.Errorf("writing %s: %w", paths.CSV, err)
	}
	return paths, nil
}

// EncodeJSON writes results as an indented JSON array. An empty run yields [].
func EncodeJSON(w io.Writer, results []types.TrialResult) error {
	if results == nil {
		results = []types.TrialResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// EncodeCSV writes the header and one row per result in execution order.
func EncodeCSV(w io.Writer, results []types.TrialResult) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			string(r.Browser),
			strconv.Itoa(r.Tabs),
			formatMB(r.BaselineMB),
			formatMB(r.TotalMB),
			formatMB(r.PerTabMB),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	// No newline after the last row.
	_, err := w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return err
}

func formatMB(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
