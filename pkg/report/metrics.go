package report

import (
	"fmt"
	"math"

	"github.com/srodi/tabmem/pkg/types"
)

// Round1 rounds half away from zero to one fraction digit.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// KBToMB converts a kilobyte sample to megabytes with one fraction digit.
func KBToMB(kb types.MemorySampleKB) float64 {
	return Round1(float64(kb) / 1024)
}

// Derive builds the result of a trial from its two samples. The per-tab cost
// is computed from the raw kilobyte difference and rounded once, so it is not
// affected by the rounding of the baseline and total figures.
func Derive(kind types.BrowserKind, tabs int, baseline, total types.MemorySampleKB) (types.TrialResult, error) {
	if tabs < 1 {
		return types.TrialResult{}, fmt.Errorf("tab count must be at least 1, got %d", tabs)
	}
	diffKB := float64(total) - float64(baseline)
	return types.TrialResult{
		Browser:    kind,
		Tabs:       tabs,
		BaselineMB: KBToMB(baseline),
		TotalMB:    KBToMB(total),
		PerTabMB:   Round1(diffKB / 1024 / float64(tabs)),
	}, nil
}

// SelectFocusCandidate picks the result with the highest per-tab cost, the
// one an operator will want to look at first.
func SelectFocusCandidate(results []types.TrialResult) *types.TrialResult {
	if len(results) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(results); i++ {
		if results[i].PerTabMB > results[best].PerTabMB {
			best = i
		}
	}
	focus := results[best]
	return &focus
}

// FocusSummary returns a one-line explanation for the focus candidate.
func FocusSummary(row types.TrialResult, results []types.TrialResult) string {
	var peers []types.TrialResult
	for _, r := range results {
		if r.Tabs == row.Tabs && r.Browser != row.Browser {
			peers = append(peers, r)
		}
	}
	if len(peers) == 0 {
		return fmt.Sprintf("%.1f MB per tab at %d tabs, %.1f MB total", row.PerTabMB, row.Tabs, row.TotalMB)
	}
	peer := peers[0]
	for _, p := range peers[1:] {
		if p.PerTabMB < peer.PerTabMB {
			peer = p
		}
	}
	return fmt.Sprintf("%.1f MB per tab at %d tabs vs %.1f MB for %s",
		row.PerTabMB, row.Tabs, peer.PerTabMB, peer.Browser)
}
