// Package lifecycle makes sure an interrupted benchmark never leaves a
// browser process tree behind.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ExitInterrupted is the process exit code after an interrupt.
const ExitInterrupted = 1

// Closer is anything the guard can tear down, normally a browser session.
type Closer interface {
	Close() error
}

// DefaultLateCloseWait bounds how long an interrupt waits for sessions that
// registered after it started.
const DefaultLateCloseWait = 15 * time.Second

// Options configures a Guard.
type Options struct {
	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)
	// Signals to watch. Defaults to SIGINT and SIGTERM.
	Signals []os.Signal
	// LateCloseWait defaults to DefaultLateCloseWait.
	LateCloseWait time.Duration
}

// Guard tracks the single active session and tears it down on interrupt.
// All methods are safe for concurrent use.
type Guard struct {
	cancel        context.CancelFunc
	logger        logrus.FieldLogger
	exit          func(int)
	signals       []os.Signal
	lateCloseWait time.Duration

	mu          sync.Mutex
	active      Closer
	hooks       []func()
	interrupted bool
	lateCloses  sync.WaitGroup
}

// New returns a guard that calls cancel when interrupted.
func New(cancel context.CancelFunc, logger logrus.FieldLogger, opts Options) *Guard {
	g := &Guard{
		cancel:  cancel,
		logger:  logger,
		exit:    opts.Exit,
		signals: opts.Signals,
	}
	if g.exit == nil {
		g.exit = os.Exit
	}
	if len(g.signals) == 0 {
		g.signals = []os.Signal{unix.SIGINT, unix.SIGTERM}
	}
	g.lateCloseWait = opts.LateCloseWait
	if g.lateCloseWait <= 0 {
		g.lateCloseWait = DefaultLateCloseWait
	}
	return g
}

// SetActive registers the session that an interrupt must close. Once an
// interrupt has started, c is closed right away instead.
func (g *Guard) SetActive(c Closer) {
	g.mu.Lock()
	if !g.interrupted {
		g.active = c
		g.mu.Unlock()
		return
	}
	g.lateCloses.Add(1)
	g.mu.Unlock()

	defer g.lateCloses.Done()
	if err := c.Close(); err != nil {
		g.logger.WithError(err).Warn("closing browser started during interrupt")
	}
}

// Clear forgets the active session, normally right after it was closed.
func (g *Guard) Clear() {
	g.mu.Lock()
	g.active = nil
	g.mu.Unlock()
}

// ForceCloseActive closes and forgets the active session, if any.
func (g *Guard) ForceCloseActive() error {
	g.mu.Lock()
	c := g.active
	g.active = nil
	g.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// OnInterrupt registers fn to run during an interrupt, after the active
// session is closed and before the process exits.
func (g *Guard) OnInterrupt(fn func()) {
	g.mu.Lock()
	g.hooks = append(g.hooks, fn)
	g.mu.Unlock()
}

// Interrupted reports whether Interrupt has run.
func (g *Guard) Interrupted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interrupted
}

// Watch installs the signal handler. The first signal starts Interrupt; a
// second one while it is still running exits at once. The returned func
// uninstalls the handler and waits for a running Interrupt.
func (g *Guard) Watch(ctx context.Context) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, g.signals...)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		interrupting := false
		for {
			select {
			case sig := <-sigs:
				if interrupting {
					g.logger.WithField("signal", sig).Error("second signal, exiting without cleanup")
					g.exit(ExitInterrupted)
					return
				}
				interrupting = true
				wg.Add(1)
				go func() {
					defer wg.Done()
					g.Interrupt(sig)
				}()
			case <-ctx.Done():
				if !interrupting {
					return
				}
				// keep listening for a forced exit
				ctx = context.Background()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			wg.Wait()
		})
	}
}

// Interrupt cancels in-flight work, closes the active session, runs the
// interrupt hooks and exits with ExitInterrupted. Only the first call acts.
func (g *Guard) Interrupt(sig os.Signal) {
	g.mu.Lock()
	if g.interrupted {
		g.mu.Unlock()
		return
	}
	g.interrupted = true
	hooks := append([]func(){}, g.hooks...)
	g.mu.Unlock()

	g.logger.WithField("signal", sig).Warn("interrupted, closing active browser")
	if g.cancel != nil {
		g.cancel()
	}
	if err := g.ForceCloseActive(); err != nil {
		g.logger.WithError(err).Warn("closing active browser")
	}
	g.waitLateCloses()
	for _, fn := range hooks {
		fn()
	}
	g.exit(ExitInterrupted)
}

// waitLateCloses waits, up to lateCloseWait, for sessions that registered
// after the interrupt began.
func (g *Guard) waitLateCloses() {
	done := make(chan struct{})
	go func() {
		g.lateCloses.Wait()
		close(done)
	}()
	timer := time.NewTimer(g.lateCloseWait)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		g.logger.Warn("gave up waiting for a browser to close")
	}
}
