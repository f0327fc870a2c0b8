package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/srodi/tabmem/pkg/types"
)

// SummaryOptions controls the console summary.
type SummaryOptions struct {
	Color bool
	// HostMemoryBytes is shown in the header when non-zero.
	HostMemoryBytes uint64
}

// WriteSummary renders the results table, the focus line and any failed trials.
func WriteSummary(w io.Writer, results []types.TrialResult, failures []types.TrialFailure, opts SummaryOptions) error {
	title := color.New(color.Bold, color.FgCyan)
	warn := color.New(color.Bold, color.FgYellow)
	if opts.Color {
		title.EnableColor()
		warn.EnableColor()
	} else {
		title.DisableColor()
		warn.DisableColor()
	}

	var b strings.Builder
	if opts.HostMemoryBytes > 0 {
		fmt.Fprintf(&b, "Host memory: %s\n", humanize.IBytes(opts.HostMemoryBytes))
	}
	if focus := SelectFocusCandidate(results); focus != nil {
		fmt.Fprintf(&b, "%s %s with %d tabs\n", warn.Sprint("[!] Focus:"), focus.Browser, focus.Tabs)
		fmt.Fprintf(&b, "   Reason: %s\n", FocusSummary(*focus, results))
	}

	fmt.Fprintf(&b, "\n%s\n", title.Sprintf("[Results, %d trials]", len(results)))
	if len(results) == 0 {
		fmt.Fprintln(&b, "No trials completed")
	} else {
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BROWSER\tTABS\tBASELINE(MB)\tTOTAL(MB)\tPER TAB(MB)\tPROCS\tCPU(s)\tFAULTS")
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.1f\t%s\t%s\t%s\n",
				r.Browser, r.Tabs, r.BaselineMB, r.TotalMB, r.PerTabMB,
				optionalInt(uint64(r.Processes)), optionalFloat(r.CPUSeconds), optionalInt(r.PageFaults))
		}
		tw.Flush()
	}

	if len(failures) > 0 {
		fmt.Fprintf(&b, "\n%s\n", warn.Sprintf("[Failed trials, %d]", len(failures)))
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BROWSER\tTABS\tPHASE\tERROR")
		for _, f := range failures {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%v\n", f.Config.Browser, f.Config.Tabs, f.Phase, f.Err)
		}
		tw.Flush()
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func optionalInt(v uint64) string {
	if v == 0 {
		return "-"
	}
	return humanize.Comma(int64(v))
}

func optionalFloat(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
