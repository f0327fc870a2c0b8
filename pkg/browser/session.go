// Package browser owns the lifecycle of one launched browser instance and
// defines the narrow driver contract used to control it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/srodi/tabmem/pkg/types"
)

// LaunchOptions configures a browser server launch.
type LaunchOptions struct {
	Headed bool
	// Binary overrides the browser executable. Empty lets the driver find one.
	Binary string
	// OnStart, when set, receives the server as soon as its process exists,
	// before the driver waits for the control endpoint.
	OnStart func(Server)
}

func (o LaunchOptions) started(srv Server) {
	if o.OnStart != nil {
		o.OnStart(srv)
	}
}

// Driver is the automation library behind one browser kind.
type Driver interface {
	LaunchServer(ctx context.Context, opts LaunchOptions) (Server, error)
	Connect(ctx context.Context, srv Server) (Browser, error)
}

// Server is a running browser process tree.
type Server interface {
	PID() int
	Endpoint() string
	Close() error
}

// Browser is a control connection to a Server.
type Browser interface {
	NewContext(ctx context.Context) (Context, error)
	Close() error
}

// Context is an isolated browsing context that can hold many tabs.
type Context interface {
	// OpenPage opens a tab, navigates it to url and returns once the page
	// reached its load event.
	OpenPage(ctx context.Context, url string) error
}

// Session is one launched browser instance. Close is idempotent and may be
// called from the interrupt path while another goroutine is using the session.
type Session struct {
	kind   types.BrowserKind
	driver Driver
	server Server

	mu      sync.Mutex
	browser Browser
	closed  bool
}

// Launch starts a browser server for kind. Failures are reported as *LaunchError.
func Launch(ctx context.Context, driver Driver, kind types.BrowserKind, opts LaunchOptions) (*Session, error) {
	srv, err := driver.LaunchServer(ctx, opts)
	if err != nil {
		return nil, &LaunchError{Browser: kind, Err: err}
	}
	if srv.PID() <= 0 {
		_ = srv.Close()
		return nil, &LaunchError{Browser: kind, Err: fmt.Errorf("driver reported invalid pid %d", srv.PID())}
	}
	return &Session{kind: kind, driver: driver, server: srv}, nil
}

// RootPID returns the pid of the browser's root process.
func (s *Session) RootPID() types.ProcessID { return s.server.PID() }

// Connect opens the control connection. Failures are reported as *ConnectError.
func (s *Session) Connect(ctx context.Context) error {
	b, err := s.driver.Connect(ctx, s.server)
	if err != nil {
		return &ConnectError{Browser: s.kind, Endpoint: s.server.Endpoint(), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = b.Close()
		return &ConnectError{Browser: s.kind, Endpoint: s.server.Endpoint(), Err: errSessionClosed}
	}
	s.browser = b
	return nil
}

// NewContext opens an isolated browsing context on the connected browser.
func (s *Session) NewContext(ctx context.Context) (*Tabs, error) {
	s.mu.Lock()
	b, closed := s.browser, s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return nil, &ConnectError{Browser: s.kind, Endpoint: s.server.Endpoint(), Err: errSessionClosed}
	case b == nil:
		return nil, &ConnectError{Browser: s.kind, Endpoint: s.server.Endpoint(), Err: errNotConnected}
	}

	bc, err := b.NewContext(ctx)
	if err != nil {
		return nil, &ConnectError{Browser: s.kind, Endpoint: s.server.Endpoint(), Err: fmt.Errorf("new context: %w", err)}
	}
	return &Tabs{ctx: bc}, nil
}

// Close terminates the control connection and then the browser server.
// Only the first call does any work.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.browser != nil {
		err = errors.Join(err, s.browser.Close())
		s.browser = nil
	}
	return errors.Join(err, s.server.Close())
}

// Tabs opens pages inside one browsing context.
type Tabs struct {
	ctx    Context
	opened int
}

// Open navigates a new tab to url, waiting at most timeout for the load
// event. index is the tab's position in the trial and is only used for
// error reporting. Failures are reported as *NavigationError.
func (t *Tabs) Open(ctx context.Context, index int, url string, timeout time.Duration) error {
	navCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := t.ctx.OpenPage(navCtx, url); err != nil {
		if ctxErr := navCtx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return &NavigationError{URL: url, Index: index, Err: err}
	}
	t.opened++
	return nil
}

// Opened returns how many tabs loaded successfully.
func (t *Tabs) Opened() int { return t.opened }
