package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK          = 0
	exitInterrupted = 1
	exitConfig      = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error { return &exitError{code: exitConfig, err: err} }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}

func execute(ctx context.Context, args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.code != exitInterrupted {
			fmt.Fprintf(os.Stderr, "tabmem: %v\n", ee.err)
		}
		return ee.code
	}
	// Usage errors from cobra and runtime failures.
	fmt.Fprintf(os.Stderr, "tabmem: %v\n", err)
	return exitConfig
}

type globalFlags struct {
	configPath string
	verbose    bool
	logFormat  string
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "tabmem",
		Short: "Measure browser memory as tabs are opened",
		Long: `tabmem launches each configured browser, samples the resident memory of
its whole process tree while idle and again after opening N tabs, and
reports the memory cost per tab.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log every phase transition")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format: text or json")

	run := newRunCommand(g)
	root.Flags().AddFlagSet(run.flags)
	root.RunE = run.runE

	root.AddCommand(newHistoryCommand(g), newVersionCommand())
	return root
}
