//go:build linux
// +build linux

package memory

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"golang.org/x/sys/unix"

	"github.com/srodi/tabmem/pkg/types"
)

const (
	maxTrackedProcesses = 16384
	resetSweepRetries   = 3
)

// FaultTracker counts page faults per thread group with a kprobe on
// handle_mm_fault. Counters accumulate until Reset.
type FaultTracker struct {
	faults *ebpf.Map
	prog   *ebpf.Program
	hook   link.Link
}

// NewFaultTracker loads the fault counter and attaches it to handle_mm_fault.
// It needs CAP_BPF (or root) and a kernel with kprobe support.
func NewFaultTracker() (*FaultTracker, error) {
	if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &unix.Rlimit{
		Cur: unix.RLIM_INFINITY,
		Max: unix.RLIM_INFINITY,
	}); err != nil {
		return nil, fmt.Errorf("raising rlimit memlock: %w", err)
	}

	faults, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "tgid_faults",
		Type:       ebpf.Hash,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: maxTrackedProcesses,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fault map: %w", err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "count_faults",
		Type:         ebpf.Kprobe,
		License:      "GPL",
		Instructions: faultCounter(faults.FD()),
	})
	if err != nil {
		faults.Close()
		return nil, fmt.Errorf("loading fault counter: %w", err)
	}

	kp, err := link.Kprobe("handle_mm_fault", prog, nil)
	if err != nil {
		prog.Close()
		faults.Close()
		return nil, fmt.Errorf("attaching handle_mm_fault kprobe failed: %w", err)
	}
	return &FaultTracker{faults: faults, prog: prog, hook: kp}, nil
}

// faultCounter increments faults[current tgid], inserting 1 on first sight.
func faultCounter(mapFD int) asm.Instructions {
	return asm.Instructions{
		asm.FnGetCurrentPidTgid.Call(),
		asm.RSh.Imm(asm.R0, 32),
		asm.StoreMem(asm.RFP, -4, asm.R0, asm.Word),
		asm.StoreImm(asm.RFP, -16, 1, asm.DWord),

		asm.LoadMapPtr(asm.R1, mapFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "insert"),

		asm.LoadMem(asm.R1, asm.R0, 0, asm.DWord),
		asm.Add.Imm(asm.R1, 1),
		asm.StoreMem(asm.R0, 0, asm.R1, asm.DWord),
		asm.Ja.Label("exit"),

		asm.LoadMapPtr(asm.R1, mapFD).WithSymbol("insert"),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, -16),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnMapUpdateElem.Call(),

		asm.Mov.Imm(asm.R0, 0).WithSymbol("exit"),
		asm.Return(),
	}
}

// Faults sums the counters of every process in set. Processes that never
// faulted since the last Reset contribute zero.
func (t *FaultTracker) Faults(set types.ProcessSet) (uint64, error) {
	var total uint64
	for pid := range set {
		key := uint32(pid)
		var count uint64
		if err := t.faults.Lookup(&key, &count); err != nil {
			if errors.Is(err, ebpf.ErrKeyNotExist) {
				continue
			}
			return 0, fmt.Errorf("reading faults for pid %d: %w", pid, err)
		}
		total += count
	}
	return total, nil
}

// Reset clears the counters before the next trial.
func (t *FaultTracker) Reset() error {
	for attempt := 1; attempt <= resetSweepRetries; attempt++ {
		iter := t.faults.Iterate()
		var pid uint32
		var count uint64
		for iter.Next(&pid, &count) {
			if err := t.faults.Delete(&pid); err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
				return fmt.Errorf("clearing pid %d: %w", pid, err)
			}
		}
		if err := iter.Err(); err != nil {
			if errors.Is(err, ebpf.ErrIterationAborted) && attempt < resetSweepRetries {
				continue
			}
			return fmt.Errorf("iterating fault map: %w", err)
		}
		return nil
	}
	return nil
}

// Close detaches the kprobe and releases the BPF resources.
func (t *FaultTracker) Close() error {
	var err error
	if t.hook != nil {
		err = errors.Join(err, t.hook.Close())
	}
	if t.prog != nil {
		err = errors.Join(err, t.prog.Close())
	}
	return errors.Join(err, t.faults.Close())
}
