package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/workflow"
)

// WorkflowOptions holds flags for the workflow commands.
type WorkflowOptions struct {
	*RootOptions
	Incomplete bool
}

// NewWorkflowCommand creates the workflow command and its subcommands.
func NewWorkflowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorkflowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and drive workflow processes",
		Long: `Inspect and drive the workflow processor.

Example:
  statehub workflow list --incomplete
  statehub workflow scan
  statehub workflow cleanup`,
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List process records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProcesses(opts, cmd)
		},
	}
	list.Flags().BoolVar(&opts.Incomplete, "incomplete", false, "only list processes that have not completed")

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Run one restart scan",
		Long: `Resume every incomplete process that is due, wait for the runs to
suspend, and print how many were resumed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return scanProcesses(opts, cmd)
		},
	}

	cleanup := &cobra.Command{
		Use:           "cleanup",
		Short:         "Remove completed process records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cleanupProcesses(opts, cmd)
		},
	}

	cmd.AddCommand(list, scan, cleanup)
	return cmd
}

func listProcesses(opts *WorkflowOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	processes := ir.Array{}
	for _, item := range a.sys.Processor().Store().Items(workflow.SliceName) {
		if done, _ := item.Bool("complete"); done && opts.Incomplete {
			continue
		}
		processes = append(processes, item)
	}
	return formatter.Success(ir.Object{
		"count":     ir.Int(int64(len(processes))),
		"processes": processes,
	})
}

func scanProcesses(opts *WorkflowOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	resumed := a.sys.Processor().Scan(ctx)
	return formatter.Success(ir.Object{
		"resumed": ir.Int(int64(resumed)),
		"seq":     ir.Int(a.conn.Seq()),
	})
}

func cleanupProcesses(opts *WorkflowOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	removed, err := a.sys.Processor().Cleanup(ctx)
	if err != nil {
		formatter.Error(ErrCodeDispatch, err.Error(), nil)
		return WrapExitError(ExitFailure, "cleanup failed", err)
	}
	return formatter.Success(ir.Object{
		"removed": ir.Int(removed),
		"seq":     ir.Int(a.conn.Seq()),
	})
}
