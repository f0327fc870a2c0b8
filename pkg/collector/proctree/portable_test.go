package proctree

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortableWalkerFindsChild(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	self := os.Getpid()
	require.Eventually(t, func() bool {
		return PortableWalker{}.Discover(self).Has(cmd.Process.Pid)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPortableWalkerUnknownRoot(t *testing.T) {
	set := PortableWalker{}.Discover(1 << 30)
	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Has(1<<30))
}
