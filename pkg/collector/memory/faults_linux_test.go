//go:build linux

package memory

import (
	"testing"

	"github.com/cilium/ebpf/asm"
)

func TestFaultCounterProgramShape(t *testing.T) {
	insns := faultCounter(3)
	if len(insns) == 0 {
		t.Fatal("expected instructions")
	}
	last := insns[len(insns)-1]
	if last.OpCode != asm.Return().OpCode {
		t.Fatalf("program must end with exit, got %v", last)
	}
	var insert, exit bool
	for _, ins := range insns {
		switch ins.Symbol() {
		case "insert":
			insert = true
		case "exit":
			exit = true
		}
	}
	if !insert || !exit {
		t.Fatalf("missing jump targets insert=%t exit=%t", insert, exit)
	}
}
