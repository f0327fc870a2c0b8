// Package proctree discovers every process spawned, directly or not, by a root process.
package proctree

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/srodi/tabmem/pkg/types"
)

// procReadFile allows tests to stub reading task children files.
var procReadFile = os.ReadFile

// Walker reads process trees from a procfs mount.
type Walker struct {
	mount string
}

// New returns a Walker reading from mountPoint. An empty mountPoint means /proc.
func New(mountPoint string) *Walker {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	return &Walker{mount: mountPoint}
}

// Discover returns root and all of its transitive descendants. Processes
// that exit while the walk is in progress simply contribute no children.
func (w *Walker) Discover(root types.ProcessID) types.ProcessSet {
	childrenOf := w.readChildren
	if !w.childrenFilesSupported(root) {
		index := w.parentIndex()
		childrenOf = func(pid types.ProcessID) []types.ProcessID { return index[pid] }
	}
	return walk(root, childrenOf)
}

// walk collects root and everything reachable through childrenOf. Each pid
// is expanded once, so reparenting races cannot make it loop.
func walk(root types.ProcessID, childrenOf func(types.ProcessID) []types.ProcessID) types.ProcessSet {
	visited := types.NewProcessSet()
	stack := []types.ProcessID{root}
	for len(stack) > 0 {
		pid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited.Has(pid) {
			continue
		}
		visited.Add(pid)
		stack = append(stack, childrenOf(pid)...)
	}
	return visited
}

// childrenFilesSupported reports whether the kernel exposes task children files.
// A vanished root counts as supported so the walk ends with the root alone.
func (w *Walker) childrenFilesSupported(root types.ProcessID) bool {
	pid := strconv.Itoa(root)
	if _, err := os.Stat(filepath.Join(w.mount, pid, "task", pid, "children")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(w.mount, pid)); err != nil {
		return true
	}
	return false
}

// readChildren unions the children files of every task of pid, since a
// multi-threaded parent may fork from any of its threads.
func (w *Walker) readChildren(pid types.ProcessID) []types.ProcessID {
	taskDir := filepath.Join(w.mount, strconv.Itoa(pid), "task")
	tasks, err := os.ReadDir(taskDir)
	if err != nil {
		return nil
	}
	var children []types.ProcessID
	for _, task := range tasks {
		data, err := procReadFile(filepath.Join(taskDir, task.Name(), "children"))
		if err != nil {
			continue
		}
		children = append(children, parsePIDList(string(data))...)
	}
	return children
}

// parentIndex maps every live pid to its children using /proc/<pid>/stat.
func (w *Walker) parentIndex() map[types.ProcessID][]types.ProcessID {
	index := make(map[types.ProcessID][]types.ProcessID)
	fs, err := procfs.NewFS(w.mount)
	if err != nil {
		return index
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return index
	}
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			continue
		}
		index[stat.PPID] = append(index[stat.PPID], p.PID)
	}
	return index
}

func parsePIDList(s string) []types.ProcessID {
	fields := strings.Fields(s)
	pids := make([]types.ProcessID, 0, len(fields))
	for _, f := range fields {
		pid, err := strconv.Atoi(f)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
