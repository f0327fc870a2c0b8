// Package memory sums resident memory over process sets and tracks page faults.
package memory

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/srodi/tabmem/pkg/types"
)

// Sampler reads per-process resident memory from a procfs mount.
type Sampler struct {
	fs  procfs.FS
	err error
}

// New returns a Sampler reading from mountPoint. An empty mountPoint means /proc.
// A bad mount point is not reported here: every read then contributes zero.
func New(mountPoint string) *Sampler {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	return &Sampler{fs: fs, err: err}
}

// TotalResidentKB returns the summed VmRSS of every process in set.
// Processes that exited or cannot be read contribute zero.
func (s *Sampler) TotalResidentKB(set types.ProcessSet) types.MemorySampleKB {
	var total uint64
	for pid := range set {
		if kb, ok := s.residentKB(pid); ok {
			total += kb
		}
	}
	return types.MemorySampleKB(total)
}

// residentKB is the only read path: any failure maps to (0, false), which is
// the expected outcome for helper processes exiting mid-scan.
func (s *Sampler) residentKB(pid types.ProcessID) (uint64, bool) {
	if s.err != nil || pid <= 0 {
		return 0, false
	}
	proc, err := s.fs.Proc(pid)
	if err != nil {
		return 0, false
	}
	status, err := proc.NewStatus()
	if err != nil {
		return 0, false
	}
	return status.VmRSS / 1024, true
}

// TotalMemoryBytes returns the host's total memory in bytes.
func (s *Sampler) TotalMemoryBytes() (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	info, err := s.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("reading meminfo: %w", err)
	}
	if info.MemTotal == nil {
		return 0, fmt.Errorf("MemTotal not found in meminfo")
	}
	return *info.MemTotal * 1024, nil
}
