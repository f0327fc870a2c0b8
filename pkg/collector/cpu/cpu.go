// Package cpu reads CPU time and process names for a browser's process tree.
package cpu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/srodi/tabmem/pkg/types"
)

// Sampler reads cumulative CPU time from a procfs mount.
type Sampler struct {
	mount string
	fs    procfs.FS
	err   error
}

// New returns a Sampler reading from mountPoint. An empty mountPoint means /proc.
func New(mountPoint string) *Sampler {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	return &Sampler{mount: mountPoint, fs: fs, err: err}
}

// TotalSeconds returns user+system CPU seconds consumed so far by the
// processes in set. Unreadable processes contribute zero.
func (s *Sampler) TotalSeconds(set types.ProcessSet) float64 {
	if s.err != nil {
		return 0
	}
	var total float64
	for pid := range set {
		proc, err := s.fs.Proc(pid)
		if err != nil {
			continue
		}
		stat, err := proc.Stat()
		if err != nil {
			continue
		}
		total += stat.CPUTime()
	}
	return total
}

// Composition summarises a process set by command name, e.g. "chrome x5, crashpad x1".
func (s *Sampler) Composition(set types.ProcessSet) string {
	cache := make(map[int]string, set.Len())
	counts := make(map[string]int)
	for _, pid := range set.Sorted() {
		counts[commForPID(s.mount, pid, cache)]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] == counts[names[j]] {
			return names[i] < names[j]
		}
		return counts[names[i]] > counts[names[j]]
	})
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s x%d", name, counts[name])
	}
	return strings.Join(parts, ", ")
}
