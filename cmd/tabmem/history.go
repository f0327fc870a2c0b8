package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srodi/tabmem/pkg/config"
	"github.com/srodi/tabmem/pkg/report"
	"github.com/srodi/tabmem/pkg/store"
)

func newHistoryCommand(g *globalFlags) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs, or show the results of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, nil, config.Config{})
			if err != nil {
				return configError(err)
			}
			if cmd.Flags().Changed("history") {
				cfg.History = path
			}
			if cfg.History == "" {
				return configError(errors.New("no history database configured (use --history or TABMEM_HISTORY)"))
			}

			db, err := store.Open(cfg.History)
			if err != nil {
				return err
			}
			defer db.Close()

			out := colorable.NewColorableStdout()
			if len(args) == 1 {
				results, err := db.ResultsFor(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(results) == 0 {
					return fmt.Errorf("run %q not found", args[0])
				}
				return report.WriteSummary(out, results, nil, report.SummaryOptions{
					Color: term.IsTerminal(int(os.Stdout.Fd())),
				})
			}

			runs, err := db.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs stored")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tTRIALS\tSTORED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", r.ID, r.Trials, humanize.Time(r.CreatedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "history", "", "SQLite history database")
	return cmd
}
