package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// RodDriver drives Chromium-family browsers over CDP with go-rod.
type RodDriver struct {
	logger logrus.FieldLogger
}

// NewRodDriver returns a Chromium driver. When no binary is configured rod
// looks for a local install and downloads one as a last resort.
func NewRodDriver(logger logrus.FieldLogger) *RodDriver {
	return &RodDriver{logger: logger.WithField("driver", "rod")}
}

// LaunchServer starts Chromium with remote debugging enabled. Cancelling
// ctx while the browser starts kills it; leakless, on by default, kills it
// if tabmem itself dies.
func (d *RodDriver) LaunchServer(ctx context.Context, opts LaunchOptions) (Server, error) {
	l := launcher.New().Context(ctx).Headless(!opts.Headed)
	if opts.Binary != "" {
		l = l.Bin(opts.Binary)
	}

	u, err := l.Launch()
	if err != nil {
		// Cleanup blocks until the process exits, so only reap what was started.
		if l.PID() > 0 {
			l.Kill()
			l.Cleanup()
		}
		return nil, err
	}
	srv := &rodServer{l: l, url: u}
	opts.started(srv)
	d.logger.WithFields(logrus.Fields{"pid": l.PID(), "url": u}).Debug("launched chromium")
	return srv, nil
}

// Connect attaches a rod browser to the launched server. ctx bounds the
// websocket dial only: rod ties its event stream to the context it connects
// with, and that stream has to outlive the connect timeout.
func (d *RodDriver) Connect(ctx context.Context, srv Server) (Browser, error) {
	client, err := cdp.StartWithURL(ctx, srv.Endpoint(), nil)
	if err != nil {
		return nil, err
	}
	b := rod.New().Client(client)
	if err := b.Connect(); err != nil {
		return nil, err
	}
	return &rodBrowser{b: b}, nil
}

type rodServer struct {
	l    *launcher.Launcher
	url  string
	once sync.Once
}

func (s *rodServer) PID() int         { return s.l.PID() }
func (s *rodServer) Endpoint() string { return s.url }

// Close kills the whole browser process group and removes its user data dir.
func (s *rodServer) Close() error {
	s.once.Do(func() {
		s.l.Kill()
		s.l.Cleanup()
	})
	return nil
}

type rodBrowser struct {
	b *rod.Browser
}

func (r *rodBrowser) NewContext(ctx context.Context) (Context, error) {
	inc, err := r.b.Context(ctx).Incognito()
	if err != nil {
		return nil, err
	}
	return &rodContext{b: inc}, nil
}

func (r *rodBrowser) Close() error {
	return r.b.Close()
}

type rodContext struct {
	b *rod.Browser
}

// OpenPage creates a blank target and navigates it. The page stays open:
// its memory is what the trial measures.
func (c *rodContext) OpenPage(ctx context.Context, url string) error {
	page, err := c.b.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return fmt.Errorf("create tab: %w", err)
	}
	page = page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}
