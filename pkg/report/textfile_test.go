package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabmem.prom")
	require.NoError(t, WriteTextfile(path, sampleResults))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "# TYPE tabmem_total_mb gauge")
	assert.Contains(t, out, `tabmem_baseline_mb{browser="chromium",tabs="1"} 97.7`)
	assert.Contains(t, out, `tabmem_total_mb{browser="firefox",tabs="1"} 290.3`)
	assert.Contains(t, out, `tabmem_per_tab_mb{browser="chromium",tabs="1"} 48.8`)
}
