package memory

import (
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/srodi/tabmem/pkg/types"
)

// PortableSampler reads resident memory through gopsutil, for hosts without
// a Linux procfs.
type PortableSampler struct{}

// TotalResidentKB returns the summed RSS of every process in set.
// Processes that exited or cannot be read contribute zero.
func (PortableSampler) TotalResidentKB(set types.ProcessSet) types.MemorySampleKB {
	var total uint64
	for pid := range set {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			continue
		}
		info, err := p.MemoryInfo()
		if err != nil || info == nil {
			continue
		}
		total += info.RSS / 1024
	}
	return types.MemorySampleKB(total)
}

// TotalMemoryBytes returns the host's total memory in bytes.
func (PortableSampler) TotalMemoryBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}
