package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srodi/tabmem/pkg/types"
)

func writeStatus(t *testing.T, mount string, pid int, rssKB uint64) {
	t.Helper()
	dir := filepath.Join(mount, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	status := fmt.Sprintf("Name:\tproc-%d\nTgid:\t%d\nPid:\t%d\nPPid:\t1\nVmRSS:\t%8d kB\nThreads:\t4\n", pid, pid, pid, rssKB)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0o644))
}

func TestTotalResidentKBSumsSet(t *testing.T) {
	mount := t.TempDir()
	writeStatus(t, mount, 100, 60000)
	writeStatus(t, mount, 200, 30000)
	writeStatus(t, mount, 300, 10000)

	s := New(mount)
	got := s.TotalResidentKB(types.NewProcessSet(100, 200, 300))
	assert.Equal(t, types.MemorySampleKB(100000), got)
}

func TestTotalResidentKBEmptySet(t *testing.T) {
	s := New(t.TempDir())
	assert.Equal(t, types.MemorySampleKB(0), s.TotalResidentKB(types.NewProcessSet()))
}

func TestTotalResidentKBSkipsVanishedProcesses(t *testing.T) {
	mount := t.TempDir()
	writeStatus(t, mount, 100, 5000)
	// 200 has a directory but no status file, 300 does not exist at all.
	require.NoError(t, os.MkdirAll(filepath.Join(mount, "200"), 0o755))

	s := New(mount)
	assert.Equal(t, types.MemorySampleKB(5000), s.TotalResidentKB(types.NewProcessSet(100, 200, 300, -1)))
}

func TestTotalResidentKBKernelThreadWithoutRSS(t *testing.T) {
	mount := t.TempDir()
	dir := filepath.Join(mount, "2")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte("Name:\tkthreadd\nPid:\t2\n"), 0o644))

	s := New(mount)
	kb, ok := s.residentKB(2)
	assert.True(t, ok)
	assert.Zero(t, kb)
}

func TestBadMountContributesZero(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, types.MemorySampleKB(0), s.TotalResidentKB(types.NewProcessSet(1, 2)))
	_, err := s.TotalMemoryBytes()
	assert.Error(t, err)
}

func TestTotalMemoryBytes(t *testing.T) {
	mount := t.TempDir()
	meminfo := "MemTotal:       16318412 kB\nMemFree:         1234567 kB\nMemAvailable:    8000000 kB\n"
	require.NoError(t, os.WriteFile(filepath.Join(mount, "meminfo"), []byte(meminfo), 0o644))

	got, err := New(mount).TotalMemoryBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(16318412*1024), got)
}
