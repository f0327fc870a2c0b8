//go:build !linux
// +build !linux

package memory

import (
	"errors"

	"github.com/srodi/tabmem/pkg/types"
)

var errUnsupported = errors.New("page fault tracker requires linux")

// FaultTracker is a placeholder on non-Linux platforms.
type FaultTracker struct{}

// NewFaultTracker returns an error because eBPF is only supported on Linux.
func NewFaultTracker() (*FaultTracker, error) {
	return nil, errUnsupported
}

// Faults always fails on unsupported platforms.
func (t *FaultTracker) Faults(set types.ProcessSet) (uint64, error) {
	return 0, errUnsupported
}

// Reset does nothing on unsupported platforms.
func (t *FaultTracker) Reset() error {
	return nil
}

// Close is a no-op stub.
func (t *FaultTracker) Close() error {
	return nil
}
