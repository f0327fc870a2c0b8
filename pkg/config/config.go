// Package config loads benchmark settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/srodi/tabmem/pkg/types"
)

// NavigationPolicy decides what a tab that fails to load does to its trial.
type NavigationPolicy string

const (
	// NavigationAbort fails the whole trial.
	NavigationAbort NavigationPolicy = "abort"
	// NavigationSkip keeps going and reports the tabs that did load.
	NavigationSkip NavigationPolicy = "skip"
)

// DefaultURLs rotate across tabs: a blank page and a few real sites of
// different DOM and script weight.
var DefaultURLs = []string{
	"about:blank",
	"https://www.wikipedia.org/",
	"https://news.ycombinator.com/",
	"https://www.example.com/",
}

// Config holds every benchmark setting.
type Config struct {
	Browsers []string `yaml:"browsers" envconfig:"TABMEM_BROWSERS"`
	Tabs     []int    `yaml:"tabs" envconfig:"TABMEM_TABS"`
	URLs     []string `yaml:"urls" envconfig:"TABMEM_URLS"`
	Headed   bool     `yaml:"headed" envconfig:"TABMEM_HEADED"`

	BaselineSettle    time.Duration `yaml:"baseline_settle" envconfig:"TABMEM_BASELINE_SETTLE"`
	TabDelay          time.Duration `yaml:"tab_delay" envconfig:"TABMEM_TAB_DELAY"`
	StabilizeSettle   time.Duration `yaml:"stabilize_settle" envconfig:"TABMEM_STABILIZE_SETTLE"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" envconfig:"TABMEM_NAVIGATION_TIMEOUT"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" envconfig:"TABMEM_CONNECT_TIMEOUT"`

	NavigationPolicy NavigationPolicy `yaml:"navigation_policy" envconfig:"TABMEM_NAVIGATION_POLICY"`

	OutputDir  string `yaml:"output_dir" envconfig:"TABMEM_OUTPUT_DIR"`
	Textfile   string `yaml:"textfile" envconfig:"TABMEM_TEXTFILE"`
	History    string `yaml:"history" envconfig:"TABMEM_HISTORY"`
	PageFaults bool   `yaml:"page_faults" envconfig:"TABMEM_PAGE_FAULTS"`
	ProcMount  string `yaml:"proc_mount" envconfig:"TABMEM_PROC_MOUNT"`

	ChromiumBin string `yaml:"chromium_bin" envconfig:"TABMEM_CHROMIUM_BIN"`
	FirefoxBin  string `yaml:"firefox_bin" envconfig:"TABMEM_FIREFOX_BIN"`
}

// Default returns the settings of the reference experiment.
func Default() Config {
	return Config{
		Browsers:          []string{string(types.Chromium), string(types.Firefox)},
		Tabs:              []int{1, 5, 10, 20},
		URLs:              append([]string(nil), DefaultURLs...),
		BaselineSettle:    5 * time.Second,
		TabDelay:          time.Second,
		StabilizeSettle:   8 * time.Second,
		NavigationTimeout: 30 * time.Second,
		ConnectTimeout:    30 * time.Second,
		NavigationPolicy:  NavigationAbort,
		OutputDir:         ".",
		ProcMount:         "/proc",
	}
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are errors.
func LoadFile(fs afero.Fs, path string, cfg *Config) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays TABMEM_* variables found through lookup onto cfg, e.g.
// TABMEM_TABS=1,5.
// A nil lookup reads the process environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := envconfig.Process("", cfg, lookup); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	return nil
}

// Validate checks the settings before any browser is launched.
func (c Config) Validate() error {
	var errs []error
	if len(c.Browsers) == 0 {
		errs = append(errs, errors.New("at least one browser is required"))
	}
	for _, b := range c.Browsers {
		if _, err := types.ParseBrowserKind(b); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.Tabs) == 0 {
		errs = append(errs, errors.New("at least one tab count is required"))
	}
	for _, n := range c.Tabs {
		if n < 1 {
			errs = append(errs, fmt.Errorf("tab count must be at least 1, got %d", n))
		}
	}
	if len(c.URLs) == 0 {
		errs = append(errs, errors.New("at least one URL is required"))
	}
	durations := map[string]time.Duration{
		"baseline_settle":    c.BaselineSettle,
		"tab_delay":          c.TabDelay,
		"stabilize_settle":   c.StabilizeSettle,
		"navigation_timeout": c.NavigationTimeout,
		"connect_timeout":    c.ConnectTimeout,
	}
	for _, name := range []string{"baseline_settle", "tab_delay", "stabilize_settle", "navigation_timeout", "connect_timeout"} {
		if durations[name] < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	switch c.NavigationPolicy {
	case NavigationAbort, NavigationSkip:
	default:
		errs = append(errs, fmt.Errorf("unknown navigation_policy %q (want abort or skip)", c.NavigationPolicy))
	}
	return errors.Join(errs...)
}

// BrowserKinds returns the configured browsers in order.
func (c Config) BrowserKinds() ([]types.BrowserKind, error) {
	kinds := make([]types.BrowserKind, 0, len(c.Browsers))
	for _, b := range c.Browsers {
		kind, err := types.ParseBrowserKind(b)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Binary returns the executable override for kind, if any.
func (c Config) Binary(kind types.BrowserKind) string {
	switch kind {
	case types.Chromium:
		return c.ChromiumBin
	case types.Firefox:
		return c.FirefoxBin
	}
	return ""
}

// Flags registers the run flags on a fresh flag set, using d for defaults.
// Values land in d; use ApplyFlags to copy the ones the user set.
func Flags(d *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.StringSliceVar(&d.Browsers, "browsers", d.Browsers, "browsers to benchmark, in order")
	fs.IntSliceVar(&d.Tabs, "tabs", d.Tabs, "tab counts to benchmark, in order")
	fs.StringSliceVar(&d.URLs, "urls", d.URLs, "URLs rotated across tabs")
	fs.BoolVar(&d.Headed, "headed", d.Headed, "show browser windows instead of running headless")
	fs.DurationVar(&d.BaselineSettle, "baseline-settle", d.BaselineSettle, "wait before the idle sample")
	fs.DurationVar(&d.TabDelay, "tab-delay", d.TabDelay, "pause after each tab")
	fs.DurationVar(&d.StabilizeSettle, "stabilize-settle", d.StabilizeSettle, "wait after the last tab before the final sample")
	fs.DurationVar(&d.NavigationTimeout, "navigation-timeout", d.NavigationTimeout, "maximum time for one tab to load")
	fs.DurationVar(&d.ConnectTimeout, "connect-timeout", d.ConnectTimeout, "maximum time to connect to a launched browser")
	fs.StringVar((*string)(&d.NavigationPolicy), "navigation-policy", string(d.NavigationPolicy), "what a failed tab does to its trial: abort or skip")
	fs.StringVarP(&d.OutputDir, "output-dir", "o", d.OutputDir, "directory for results-<run>.json and .csv")
	fs.StringVar(&d.Textfile, "textfile", d.Textfile, "also write results in Prometheus text format to this file")
	fs.StringVar(&d.History, "history", d.History, "append results to this SQLite database")
	fs.BoolVar(&d.PageFaults, "page-faults", d.PageFaults, "count page faults with eBPF (needs root)")
	fs.StringVar(&d.ProcMount, "proc", d.ProcMount, "procfs mount point")
	fs.StringVar(&d.ChromiumBin, "chromium-bin", d.ChromiumBin, "Chromium executable")
	fs.StringVar(&d.FirefoxBin, "firefox-bin", d.FirefoxBin, "Firefox executable")
	return fs
}

// ApplyFlags copies every flag the user set explicitly from src into dst.
func ApplyFlags(fs *pflag.FlagSet, src Config, dst *Config) {
	copies := map[string]func(){
		"browsers":           func() { dst.Browsers = src.Browsers },
		"tabs":               func() { dst.Tabs = src.Tabs },
		"urls":               func() { dst.URLs = src.URLs },
		"headed":             func() { dst.Headed = src.Headed },
		"baseline-settle":    func() { dst.BaselineSettle = src.BaselineSettle },
		"tab-delay":          func() { dst.TabDelay = src.TabDelay },
		"stabilize-settle":   func() { dst.StabilizeSettle = src.StabilizeSettle },
		"navigation-timeout": func() { dst.NavigationTimeout = src.NavigationTimeout },
		"connect-timeout":    func() { dst.ConnectTimeout = src.ConnectTimeout },
		"navigation-policy":  func() { dst.NavigationPolicy = src.NavigationPolicy },
		"output-dir":         func() { dst.OutputDir = src.OutputDir },
		"textfile":           func() { dst.Textfile = src.Textfile },
		"history":            func() { dst.History = src.History },
		"page-faults":        func() { dst.PageFaults = src.PageFaults },
		"proc":               func() { dst.ProcMount = src.ProcMount },
		"chromium-bin":       func() { dst.ChromiumBin = src.ChromiumBin },
		"firefox-bin":        func() { dst.FirefoxBin = src.FirefoxBin },
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := copies[f.Name]; ok {
			apply()
		}
	})
}
