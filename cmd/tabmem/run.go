package main

import (
	"context"
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/srodi/tabmem/pkg/bench"
	"github.com/srodi/tabmem/pkg/browser"
	"github.com/srodi/tabmem/pkg/collector/cpu"
	"github.com/srodi/tabmem/pkg/collector/memory"
	"github.com/srodi/tabmem/pkg/collector/proctree"
	"github.com/srodi/tabmem/pkg/config"
	"github.com/srodi/tabmem/pkg/lifecycle"
	"github.com/srodi/tabmem/pkg/report"
	"github.com/srodi/tabmem/pkg/store"
	"github.com/srodi/tabmem/pkg/types"
	"github.com/srodi/tabmem/pkg/ui"
)

type runCommand struct {
	global *globalFlags
	flags  *pflag.FlagSet
	values config.Config
}

func newRunCommand(g *globalFlags) *runCommand {
	rc := &runCommand{global: g, values: config.Default()}
	rc.flags = config.Flags(&rc.values)
	return rc
}

// loadConfig layers defaults, the config file, the environment and the
// flags the user set, then validates the result.
func loadConfig(g *globalFlags, flags *pflag.FlagSet, values config.Config) (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		if err := config.LoadFile(afero.NewOsFs(), g.configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg, nil); err != nil {
		return cfg, err
	}
	if flags != nil {
		config.ApplyFlags(flags, values, &cfg)
	}
	return cfg, cfg.Validate()
}

func (rc *runCommand) runE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(rc.global, cmd.Flags(), rc.values)
	if err != nil {
		return configError(err)
	}
	logger, err := newLogger(rc.global.verbose, rc.global.logFormat)
	if err != nil {
		return configError(err)
	}
	kinds, err := cfg.BrowserKinds()
	if err != nil {
		return configError(err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	guard := lifecycle.New(cancel, logger, lifecycle.Options{})
	stopWatch := guard.Watch(ctx)
	defer stopWatch()

	collectors, sampler := newCollectors(cfg)
	if cfg.PageFaults {
		tracker, err := memory.NewFaultTracker()
		if err != nil {
			logger.WithError(err).Warn("page fault tracking disabled")
		} else {
			defer tracker.Close()
			collectors.Faults = tracker
		}
	}

	runner := bench.NewRunner(browser.DefaultRegistry(logger), collectors, guard, logger, bench.Options{
		BaselineSettle:    cfg.BaselineSettle,
		TabDelay:          cfg.TabDelay,
		StabilizeSettle:   cfg.StabilizeSettle,
		NavigationTimeout: cfg.NavigationTimeout,
		ConnectTimeout:    cfg.ConnectTimeout,
		URLs:              cfg.URLs,
		SkipFailedTabs:    cfg.NavigationPolicy == config.NavigationSkip,
		Headed:            cfg.Headed,
		Binaries: map[types.BrowserKind]string{
			types.Chromium: cfg.Binary(types.Chromium),
			types.Firefox:  cfg.Binary(types.Firefox),
		},
	})
	scheduler := bench.NewScheduler(runner, kinds, cfg.Tabs, logger)

	runID := report.RunID(time.Now())
	exporter := report.NewExporter(afero.NewOsFs(), cfg.OutputDir)
	guard.OnInterrupt(func() {
		paths, err := exporter.WritePartial(runID, scheduler.Results())
		if err != nil {
			logger.WithError(err).Error("writing partial results")
			return
		}
		logger.WithField("json", paths.JSON).Warn("partial results written")
	})

	stdoutColor := term.IsTerminal(int(os.Stdout.Fd()))
	stdout := colorable.NewColorableStdout()
	if _, err := stdout.Write([]byte(ui.Banner(stdoutColor))); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"run": runID, "trials": len(scheduler.Trials())}).Info("starting run")

	result := scheduler.Run(ctx)
	if result.Interrupted || guard.Interrupted() {
		// The guard exits the process once its hooks are done.
		stopWatch()
		return &exitError{code: exitInterrupted, err: errors.New("interrupted")}
	}

	if err := publish(cfg, runID, exporter, result.Results, logger); err != nil {
		return err
	}

	host, err := sampler.TotalMemoryBytes()
	if err != nil {
		logger.WithError(err).Debug("reading host memory")
	}
	return report.WriteSummary(stdout, result.Results, result.Failures, report.SummaryOptions{
		Color:           stdoutColor,
		HostMemoryBytes: host,
	})
}

// hostMemory reports the machine's total memory for the summary header.
type hostMemory interface {
	TotalMemoryBytes() (uint64, error)
}

// newCollectors reads procfs directly on Linux and goes through gopsutil
// elsewhere. CPU time is only collected from procfs.
func newCollectors(cfg config.Config) (bench.Collectors, hostMemory) {
	if runtime.GOOS != "linux" {
		var sampler memory.PortableSampler
		return bench.Collectors{Walker: proctree.PortableWalker{}, Memory: sampler}, sampler
	}
	sampler := memory.New(cfg.ProcMount)
	return bench.Collectors{
		Walker: proctree.New(cfg.ProcMount),
		Memory: sampler,
		CPU:    cpu.New(cfg.ProcMount),
	}, sampler
}

// publish writes the result files and, when configured, the textfile and history.
func publish(cfg config.Config, runID string, exporter *report.Exporter, results []types.TrialResult, logger logrus.FieldLogger) error {
	paths, err := exporter.Write(runID, results)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"json": paths.JSON, "csv": paths.CSV}).Info("results written")

	if cfg.Textfile != "" {
		if err := report.WriteTextfile(cfg.Textfile, results); err != nil {
			logger.WithError(err).Error("writing textfile")
		}
	}
	if cfg.History != "" {
		if err := appendHistory(cfg.History, runID, results); err != nil {
			logger.WithError(err).Error("appending history")
		}
	}
	return nil
}

func appendHistory(path, runID string, results []types.TrialResult) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	return errors.Join(db.Append(context.Background(), runID, results), db.Close())
}
