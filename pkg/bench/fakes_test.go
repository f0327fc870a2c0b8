package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/srodi/tabmem/pkg/browser"
	"github.com/srodi/tabmem/pkg/types"
)

// fakeDriver records every call made through the driver contract.
type fakeDriver struct {
	pid        int
	launchErr  error
	connectErr error
	contextErr error
	openPage   func(ctx context.Context, index int, url string) error

	mu            sync.Mutex
	launches      int
	serverCloses  int
	browserCloses int
	urls          []string
}

func (d *fakeDriver) LaunchServer(ctx context.Context, opts browser.LaunchOptions) (browser.Server, error) {
	d.mu.Lock()
	d.launches++
	err := d.launchErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	srv := &fakeServer{d: d}
	if opts.OnStart != nil {
		opts.OnStart(srv)
	}
	return srv, nil
}

func (d *fakeDriver) Connect(ctx context.Context, srv browser.Server) (browser.Browser, error) {
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	return &fakeBrowser{d: d}, nil
}

func (d *fakeDriver) counts() (launches, serverCloses, browserCloses int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches, d.serverCloses, d.browserCloses
}

type fakeServer struct{ d *fakeDriver }

func (s *fakeServer) PID() int         { return s.d.pid }
func (s *fakeServer) Endpoint() string { return "ws://fake" }
func (s *fakeServer) Close() error {
	s.d.mu.Lock()
	s.d.serverCloses++
	s.d.mu.Unlock()
	return nil
}

type fakeBrowser struct{ d *fakeDriver }

func (b *fakeBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	if b.d.contextErr != nil {
		return nil, b.d.contextErr
	}
	return &fakeContext{d: b.d}, nil
}

func (b *fakeBrowser) Close() error {
	b.d.mu.Lock()
	b.d.browserCloses++
	b.d.mu.Unlock()
	return nil
}

type fakeContext struct{ d *fakeDriver }

func (c *fakeContext) OpenPage(ctx context.Context, url string) error {
	c.d.mu.Lock()
	index := len(c.d.urls)
	c.d.urls = append(c.d.urls, url)
	c.d.mu.Unlock()
	if c.d.openPage != nil {
		return c.d.openPage(ctx, index, url)
	}
	return nil
}

type fakeRegistry map[types.BrowserKind]*fakeDriver

func (r fakeRegistry) Driver(kind types.BrowserKind) (browser.Driver, error) {
	d, ok := r[kind]
	if !ok {
		return nil, errors.New("no driver")
	}
	return d, nil
}

// fakeWalker reports the root and a fixed set of helpers.
type fakeWalker struct{ helpers []types.ProcessID }

func (w fakeWalker) Discover(root types.ProcessID) types.ProcessSet {
	return types.NewProcessSet(append([]types.ProcessID{root}, w.helpers...)...)
}

// fakeMemory returns its samples in order, repeating the last one.
type fakeMemory struct {
	samples []types.MemorySampleKB
	calls   int
}

func (m *fakeMemory) TotalResidentKB(types.ProcessSet) types.MemorySampleKB {
	i := m.calls
	if i >= len(m.samples) {
		i = len(m.samples) - 1
	}
	m.calls++
	return m.samples[i]
}

type fakeCPU float64

func (c fakeCPU) TotalSeconds(types.ProcessSet) float64 { return float64(c) }

func (c fakeCPU) Composition(set types.ProcessSet) string {
	return fmt.Sprintf("browser x%d", set.Len())
}

type fakeFaults struct {
	resets int
	count  uint64
}

func (f *fakeFaults) Reset() error { f.resets++; return nil }

func (f *fakeFaults) Faults(types.ProcessSet) (uint64, error) { return f.count, nil }
