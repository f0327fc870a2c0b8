package types

import (
	"fmt"
	"sort"
	"strings"
)

// ProcessID identifies an OS process. It is only a lookup key into procfs.
type ProcessID = int

// ProcessSet is a deduplicated set of process ids, rebuilt for every sample.
type ProcessSet map[ProcessID]struct{}

// NewProcessSet returns a set holding the given ids.
func NewProcessSet(ids ...ProcessID) ProcessSet {
	set := make(ProcessSet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add inserts id into the set.
func (s ProcessSet) Add(id ProcessID) { s[id] = struct{}{} }

// Has reports whether id is in the set.
func (s ProcessSet) Has(id ProcessID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids in the set.
func (s ProcessSet) Len() int { return len(s) }

// Sorted returns the ids in ascending order.
func (s ProcessSet) Sorted() []ProcessID {
	ids := make([]ProcessID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MemorySampleKB is the resident memory of a process set at one instant, in kilobytes.
type MemorySampleKB uint64

// BrowserKind names a browser family with its own driver.
type BrowserKind string

const (
	Chromium BrowserKind = "chromium"
	Firefox  BrowserKind = "firefox"
)

// BrowserKinds lists every supported kind in default execution order.
var BrowserKinds = []BrowserKind{Chromium, Firefox}

// ParseBrowserKind accepts a kind name case-insensitively.
func ParseBrowserKind(s string) (BrowserKind, error) {
	kind := BrowserKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case Chromium, Firefox:
		return kind, nil
	}
	return "", fmt.Errorf("unknown browser %q (want one of chromium, firefox)", s)
}

func (k BrowserKind) String() string { return string(k) }

// TrialConfig is one unit of work: a browser kind and the number of tabs to open.
type TrialConfig struct {
	Browser BrowserKind
	Tabs    int
}

// Validate rejects unknown browsers and tab counts below one.
func (c TrialConfig) Validate() error {
	if _, err := ParseBrowserKind(string(c.Browser)); err != nil {
		return err
	}
	if c.Tabs < 1 {
		return fmt.Errorf("tab count must be at least 1, got %d", c.Tabs)
	}
	return nil
}

func (c TrialConfig) String() string {
	return fmt.Sprintf("%s/%d", c.Browser, c.Tabs)
}

// TrialResult is the measured outcome of one trial. MB values carry one fraction digit.
type TrialResult struct {
	Browser    BrowserKind `json:"browser"`
	Tabs       int         `json:"tabs"`
	BaselineMB float64     `json:"baseline_mb"`
	TotalMB    float64     `json:"total_mb"`
	PerTabMB   float64     `json:"per_tab_mb"`

	RequestedTabs int     `json:"requested_tabs,omitempty"`
	Processes     int     `json:"processes,omitempty"`
	PageFaults    uint64  `json:"page_faults,omitempty"`
	CPUSeconds    float64 `json:"cpu_seconds,omitempty"`
}

// TrialFailure records a configuration whose trial ended with an error.
type TrialFailure struct {
	Config TrialConfig
	Phase  string
	Err    error
}
