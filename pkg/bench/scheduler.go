package bench

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srodi/tabmem/pkg/types"
)

// TrialRunner runs one trial.
type TrialRunner interface {
	Run(ctx context.Context, cfg types.TrialConfig) (types.TrialResult, error)
}

// Report is the outcome of a schedule.
type Report struct {
	Results  []types.TrialResult
	Failures []types.TrialFailure
	// Interrupted is set when the schedule stopped before its last trial.
	Interrupted bool
}

// Scheduler runs every tab count against every browser, strictly one trial
// at a time.
type Scheduler struct {
	runner   TrialRunner
	browsers []types.BrowserKind
	tabs     []int
	logger   logrus.FieldLogger

	mu       sync.Mutex
	results  []types.TrialResult
	failures []types.TrialFailure
}

// NewScheduler returns a Scheduler over the cross product of tabs and browsers.
func NewScheduler(runner TrialRunner, browsers []types.BrowserKind, tabs []int, logger logrus.FieldLogger) *Scheduler {
	return &Scheduler{runner: runner, browsers: browsers, tabs: tabs, logger: logger}
}

// Trials returns the configurations in execution order: tab counts outer,
// browsers inner.
func (s *Scheduler) Trials() []types.TrialConfig {
	trials := make([]types.TrialConfig, 0, len(s.tabs)*len(s.browsers))
	for _, n := range s.tabs {
		for _, kind := range s.browsers {
			trials = append(trials, types.TrialConfig{Browser: kind, Tabs: n})
		}
	}
	return trials
}

// Run executes the schedule. A failed trial is recorded and the schedule
// moves on; a cancelled ctx stops it before the next trial.
func (s *Scheduler) Run(ctx context.Context) Report {
	trials := s.Trials()
	for i, cfg := range trials {
		if ctx.Err() != nil {
			return s.report(true)
		}
		log := s.logger.WithFields(logrus.Fields{"browser": cfg.Browser, "tabs": cfg.Tabs})
		log.Infof("trial %d/%d", i+1, len(trials))

		res, err := s.runner.Run(ctx, cfg)
		if err != nil {
			if ctx.Err() != nil {
				log.WithError(err).Warn("trial interrupted")
				return s.report(true)
			}
			log.WithError(err).Error("trial failed")
			s.recordFailure(cfg, err)
			continue
		}
		s.mu.Lock()
		s.results = append(s.results, res)
		s.mu.Unlock()
	}
	return s.report(false)
}

// Results returns a copy of the results collected so far. It is safe to
// call while Run is in progress.
func (s *Scheduler) Results() []types.TrialResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.TrialResult(nil), s.results...)
}

func (s *Scheduler) recordFailure(cfg types.TrialConfig, err error) {
	phase := "unknown"
	var te *TrialError
	if errors.As(err, &te) {
		phase = te.Phase.String()
	}
	s.mu.Lock()
	s.failures = append(s.failures, types.TrialFailure{Config: cfg, Phase: phase, Err: err})
	s.mu.Unlock()
}

func (s *Scheduler) report(interrupted bool) Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Report{
		Results:     append([]types.TrialResult(nil), s.results...),
		Failures:    append([]types.TrialFailure(nil), s.failures...),
		Interrupted: interrupted,
	}
}
