//go:build linux

package bench

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/srodi/tabmem/pkg/browser"
	"github.com/srodi/tabmem/pkg/lifecycle"
	"github.com/srodi/tabmem/pkg/types"
)

type driverSource map[types.BrowserKind]browser.Driver

func (s driverSource) Driver(kind types.BrowserKind) (browser.Driver, error) {
	d, ok := s[kind]
	if !ok {
		return nil, errors.New("no driver")
	}
	return d, nil
}

// notifyingTracker forwards to the guard and reports each registration.
type notifyingTracker struct {
	*lifecycle.Guard
	registered chan struct{}
}

func (n *notifyingTracker) SetActive(c lifecycle.Closer) {
	n.Guard.SetActive(c)
	select {
	case n.registered <- struct{}{}:
	default:
	}
}

// fakeFirefox writes a script that records its pid and never announces a
// BiDi endpoint, so the launch stays in progress until it is interrupted.
func fakeFirefox(t *testing.T) (bin, pidFile string) {
	t.Helper()
	dir := t.TempDir()
	pidFile = filepath.Join(dir, "pid")
	bin = filepath.Join(dir, "firefox")
	script := fmt.Sprintf("#!/bin/sh\necho $$ > %s.tmp\nmv %s.tmp %s\nexec sleep 30\n", pidFile, pidFile, pidFile)
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, pidFile
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(b)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "browser never started")
	return pid
}

func TestInterruptDuringLaunchKillsBrowser(t *testing.T) {
	bin, pidFile := fakeFirefox(t)
	logger, _ := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alive := make(chan error, 1)
	var pid int
	guard := lifecycle.New(cancel, logger, lifecycle.Options{
		Exit: func(int) { alive <- unix.Kill(pid, 0) },
	})
	tracker := &notifyingTracker{Guard: guard, registered: make(chan struct{}, 1)}

	r := NewRunner(driverSource{types.Firefox: browser.NewBiDiDriver(logger)}, defaultCollectors(), tracker, logger, Options{
		URLs:     testURLs,
		Binaries: map[types.BrowserKind]string{types.Firefox: bin},
	})
	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, types.TrialConfig{Browser: types.Firefox, Tabs: 1})
		done <- err
	}()

	pid = readPID(t, pidFile)
	select {
	case <-tracker.registered:
	case <-time.After(5 * time.Second):
		t.Fatal("spawned browser was never handed to the guard")
	}
	time.Sleep(200 * time.Millisecond)
	guard.Interrupt(unix.SIGINT)

	select {
	case err := <-alive:
		assert.ErrorIs(t, err, unix.ESRCH, "browser still running when the process exits")
	case <-time.After(10 * time.Second):
		t.Fatal("guard never exited")
	}

	select {
	case err := <-done:
		var te *TrialError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, Launching, te.Phase)
	case <-time.After(10 * time.Second):
		t.Fatal("trial did not return after the interrupt")
	}
}

func TestLaunchHandsServerToGuardBeforeReturning(t *testing.T) {
	d := &fakeDriver{pid: 4242}
	logger, _ := test.NewNullLogger()
	var order []string
	r := NewRunner(fakeRegistry{types.Chromium: d}, defaultCollectors(), &recordingTracker{order: &order}, logger, Options{URLs: testURLs})
	r.OnPhase = func(_ types.TrialConfig, p Phase) { order = append(order, p.String()) }

	_, err := r.Run(context.Background(), types.TrialConfig{Browser: types.Chromium, Tabs: 1})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(order), 3)
	assert.Equal(t, []string{"launching", "set-active:*bench.fakeServer", "set-active:*browser.Session"}, order[:3])
	assert.Equal(t, "clear", order[len(order)-2])
}

type recordingTracker struct{ order *[]string }

func (r *recordingTracker) SetActive(c lifecycle.Closer) {
	*r.order = append(*r.order, fmt.Sprintf("set-active:%T", c))
}

func (r *recordingTracker) Clear() { *r.order = append(*r.order, "clear") }
