package report

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/tabmem/pkg/types"
)

var sampleResults = []types.TrialResult{
	{Browser: types.Chromium, Tabs: 1, BaselineMB: 97.7, TotalMB: 146.5, PerTabMB: 48.8},
	{Browser: types.Firefox, Tabs: 1, BaselineMB: 210, TotalMB: 290.3, PerTabMB: 80.3, Processes: 7},
}

func TestRunID(t *testing.T) {
	start := time.Date(2026, 10, 16, 9, 30, 5, 123_000_000, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2026-10-16T07-30-05-123Z", RunID(start))
}

func TestExporterWritesJSONAndCSV(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := NewExporter(fs, "out")

	paths, err := e.Write("run-1", sampleResults)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "results-run-1.json"), paths.JSON)
	assert.Equal(t, filepath.Join("out", "results-run-1.csv"), paths.CSV)

	csvData, err := afero.ReadFile(fs, paths.CSV)
	require.NoError(t, err)
	assert.Equal(t, "browser,tabs,baseline_mb,total_mb,per_tab_mb\n"+
		"chromium,1,97.7,146.5,48.8\n"+
		"firefox,1,210.0,290.3,80.3", string(csvData))

	jsonData, err := afero.ReadFile(fs, paths.JSON)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(jsonData, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "chromium", decoded[0]["browser"])
	assert.Equal(t, 1.0, decoded[0]["tabs"])
	assert.Equal(t, 97.7, decoded[0]["baseline_mb"])
	assert.Equal(t, 146.5, decoded[0]["total_mb"])
	assert.Equal(t, 48.8, decoded[0]["per_tab_mb"])
	assert.NotContains(t, decoded[0], "processes")
	assert.Equal(t, 7.0, decoded[1]["processes"])
}

func TestExporterPartialAndEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := NewExporter(fs, "")

	paths, err := e.WritePartial("run-2", nil)
	require.NoError(t, err)
	assert.Equal(t, "results-run-2-partial.json", paths.JSON)

	jsonData, err := afero.ReadFile(fs, paths.JSON)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(jsonData))

	csvData, err := afero.ReadFile(fs, paths.CSV)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(CSVHeader, ","), string(csvData))
}

func TestExporterReadOnlyFs(t *testing.T) {
	e := NewExporter(afero.NewReadOnlyFs(afero.NewMemMapFs()), "out")
	_, err := e.Write("run-3", sampleResults)
	assert.Error(t, err)
}
