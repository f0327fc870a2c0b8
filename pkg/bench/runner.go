// Package bench runs memory trials and schedules them into an experiment.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srodi/tabmem/pkg/browser"
	"github.com/srodi/tabmem/pkg/lifecycle"
	"github.com/srodi/tabmem/pkg/report"
	"github.com/srodi/tabmem/pkg/types"
)

// DriverSource resolves the driver for a browser kind.
type DriverSource interface {
	Driver(kind types.BrowserKind) (browser.Driver, error)
}

// ProcessDiscoverer expands a root pid into its process tree.
type ProcessDiscoverer interface {
	Discover(root types.ProcessID) types.ProcessSet
}

// MemoryReader sums resident memory over a process set.
type MemoryReader interface {
	TotalResidentKB(set types.ProcessSet) types.MemorySampleKB
}

// CPUReader sums consumed CPU time over a process set and names its members.
type CPUReader interface {
	TotalSeconds(set types.ProcessSet) float64
	Composition(set types.ProcessSet) string
}

// FaultCounter counts page faults per process since the last Reset.
type FaultCounter interface {
	Reset() error
	Faults(set types.ProcessSet) (uint64, error)
}

// ActiveTracker is told which session is live so an interrupt can close it.
type ActiveTracker interface {
	SetActive(c lifecycle.Closer)
	Clear()
}

// Collectors are the readers a trial samples with. CPU and Faults are optional.
type Collectors struct {
	Walker ProcessDiscoverer
	Memory MemoryReader
	CPU    CPUReader
	Faults FaultCounter
}

// Options tunes the trial timeline.
type Options struct {
	BaselineSettle    time.Duration
	TabDelay          time.Duration
	StabilizeSettle   time.Duration
	NavigationTimeout time.Duration
	ConnectTimeout    time.Duration

	// URLs rotate across tabs: tab i loads URLs[i mod len(URLs)].
	URLs []string
	// SkipFailedTabs keeps a trial going when a tab fails to load.
	SkipFailedTabs bool

	Headed   bool
	Binaries map[types.BrowserKind]string
}

// TrialError reports the phase in which a trial failed.
type TrialError struct {
	Config types.TrialConfig
	Phase  Phase
	Err    error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("trial %s failed while %s: %v", e.Config, e.Phase, e.Err)
}

func (e *TrialError) Unwrap() error { return e.Err }

// URLFor returns the URL for the tab at index i.
func URLFor(urls []string, i int) string {
	if len(urls) == 0 {
		return "about:blank"
	}
	return urls[i%len(urls)]
}

// Runner executes single trials: launch a browser, sample its idle
// footprint, open tabs, let it settle and sample again.
type Runner struct {
	opts       Options
	drivers    DriverSource
	collectors Collectors
	guard      ActiveTracker
	logger     logrus.FieldLogger

	// OnPhase, when set, observes every phase transition.
	OnPhase func(types.TrialConfig, Phase)
}

// NewRunner returns a Runner. guard may be nil.
func NewRunner(drivers DriverSource, collectors Collectors, guard ActiveTracker, logger logrus.FieldLogger, opts Options) *Runner {
	return &Runner{
		opts:       opts,
		drivers:    drivers,
		collectors: collectors,
		guard:      guard,
		logger:     logger,
	}
}

// Run executes one trial. The browser is always torn down before Run
// returns, whichever phase failed. Errors are *TrialError.
func (r *Runner) Run(ctx context.Context, cfg types.TrialConfig) (result types.TrialResult, err error) {
	t := &trial{
		Runner: r,
		cfg:    cfg,
		log:    r.logger.WithFields(logrus.Fields{"browser": cfg.Browser, "tabs": cfg.Tabs}),
	}
	defer func() {
		t.teardown()
		if err != nil {
			t.enter(Failed)
			return
		}
		t.enter(Done)
	}()
	return t.execute(ctx)
}

// trial is the state of one Run call.
type trial struct {
	*Runner
	cfg     types.TrialConfig
	log     logrus.FieldLogger
	phase   Phase
	session *browser.Session
}

func (t *trial) enter(p Phase) {
	t.phase = p
	t.log.WithField("phase", p).Debug("phase")
	if t.OnPhase != nil {
		t.OnPhase(t.cfg, p)
	}
}

func (t *trial) fail(err error) (types.TrialResult, error) {
	return types.TrialResult{}, &TrialError{Config: t.cfg, Phase: t.phase, Err: err}
}

func (t *trial) execute(ctx context.Context) (types.TrialResult, error) {
	if err := t.cfg.Validate(); err != nil {
		return t.fail(err)
	}

	t.enter(Launching)
	driver, err := t.drivers.Driver(t.cfg.Browser)
	if err != nil {
		return t.fail(err)
	}
	t.session, err = browser.Launch(ctx, driver, t.cfg.Browser, browser.LaunchOptions{
		Headed: t.opts.Headed,
		Binary: t.opts.Binaries[t.cfg.Browser],
		// An interrupt may land before the endpoint is up; the guard must
		// already own the process by then.
		OnStart: func(srv browser.Server) {
			if t.guard != nil {
				t.guard.SetActive(srv)
			}
		},
	})
	if err != nil {
		return t.fail(err)
	}
	if t.guard != nil {
		t.guard.SetActive(t.session)
	}
	if err := t.connect(ctx); err != nil {
		return t.fail(err)
	}
	root := t.session.RootPID()
	t.log.WithField("pid", root).Info("browser launched")

	t.enter(BaselineWait)
	if err := pause(ctx, t.opts.BaselineSettle); err != nil {
		return t.fail(err)
	}
	baseline := t.collectors.Memory.TotalResidentKB(t.collectors.Walker.Discover(root))
	t.log.WithField("baseline_kb", uint64(baseline)).Info("baseline sampled")
	if t.collectors.Faults != nil {
		if err := t.collectors.Faults.Reset(); err != nil {
			t.log.WithError(err).Debug("resetting page fault counters")
		}
	}

	t.enter(OpeningTabs)
	opened, err := t.openTabs(ctx)
	if err != nil {
		return t.fail(err)
	}

	t.enter(Stabilizing)
	if err := pause(ctx, t.opts.StabilizeSettle); err != nil {
		return t.fail(err)
	}

	t.enter(Sampling)
	if err := ctx.Err(); err != nil {
		return t.fail(err)
	}
	set := t.collectors.Walker.Discover(root)
	total := t.collectors.Memory.TotalResidentKB(set)
	result, err := report.Derive(t.cfg.Browser, opened, baseline, total)
	if err != nil {
		return t.fail(err)
	}
	if opened != t.cfg.Tabs {
		result.RequestedTabs = t.cfg.Tabs
	}
	result.Processes = set.Len()
	if t.collectors.CPU != nil {
		result.CPUSeconds = report.Round1(t.collectors.CPU.TotalSeconds(set))
	}
	if t.collectors.Faults != nil {
		faults, err := t.collectors.Faults.Faults(set)
		if err != nil {
			t.log.WithError(err).Debug("reading page faults")
		}
		result.PageFaults = faults
	}
	fields := logrus.Fields{
		"total_kb":   uint64(total),
		"per_tab_mb": result.PerTabMB,
		"processes":  result.Processes,
	}
	if t.collectors.CPU != nil {
		fields["composition"] = t.collectors.CPU.Composition(set)
	}
	t.log.WithFields(fields).Info("trial sampled")
	return result, nil
}

func (t *trial) connect(ctx context.Context) error {
	if t.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.ConnectTimeout)
		defer cancel()
	}
	return t.session.Connect(ctx)
}

// openTabs opens the configured number of tabs one after the other and
// returns how many loaded.
func (t *trial) openTabs(ctx context.Context) (int, error) {
	tabs, err := t.session.NewContext(ctx)
	if err != nil {
		return 0, err
	}
	for i := 0; i < t.cfg.Tabs; i++ {
		url := URLFor(t.opts.URLs, i)
		err := tabs.Open(ctx, i, url, t.opts.NavigationTimeout)
		switch {
		case err == nil:
			t.log.WithFields(logrus.Fields{"tab": i + 1, "url": url}).Debug("tab loaded")
		case t.opts.SkipFailedTabs && ctx.Err() == nil:
			t.log.WithError(err).Warn("skipping tab")
		default:
			return tabs.Opened(), err
		}
		if err := pause(ctx, t.opts.TabDelay); err != nil {
			return tabs.Opened(), err
		}
	}
	if tabs.Opened() == 0 {
		return 0, errors.New("no tab finished loading")
	}
	return tabs.Opened(), nil
}

// teardown closes the session, if one was launched, and forgets it.
func (t *trial) teardown() {
	if t.guard != nil {
		defer t.guard.Clear()
	}
	if t.session == nil {
		return
	}
	t.enter(TearingDown)
	if err := t.session.Close(); err != nil {
		t.log.WithError(err).Warn("closing browser")
	}
}

// pause waits for d or until ctx is done. A non-positive d returns at once.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
