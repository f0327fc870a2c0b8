package proctree

import (
	"github.com/shirou/gopsutil/v3/process"

	"github.com/srodi/tabmem/pkg/types"
)

// PortableWalker discovers process trees through gopsutil, for hosts
// without a Linux procfs.
type PortableWalker struct{}

// Discover returns root and all of its transitive descendants.
func (PortableWalker) Discover(root types.ProcessID) types.ProcessSet {
	return walk(root, portableChildren)
}

func portableChildren(pid types.ProcessID) []types.ProcessID {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	// ErrorNoChildren is the common case for renderer leaves.
	children, err := p.Children()
	if err != nil {
		return nil
	}
	ids := make([]types.ProcessID, 0, len(children))
	for _, c := range children {
		ids = append(ids, types.ProcessID(c.Pid))
	}
	return ids
}
