//go:build !linux

package memory

import (
	"errors"
	"testing"

	"github.com/srodi/tabmem/pkg/types"
)

func TestFaultTrackerStubBehavior(t *testing.T) {
	if _, err := NewFaultTracker(); !errors.Is(err, errUnsupported) {
		t.Fatalf("expected errUnsupported, got %v", err)
	}
	var ft FaultTracker
	if n, err := ft.Faults(types.NewProcessSet(1)); err != errUnsupported || n != 0 {
		t.Fatalf("faults should fail with errUnsupported, got n=%d err=%v", n, err)
	}
	if err := ft.Reset(); err != nil {
		t.Fatalf("reset should no-op, got %v", err)
	}
	if err := ft.Close(); err != nil {
		t.Fatalf("close should no-op, got %v", err)
	}
}
