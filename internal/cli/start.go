package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/workflow"
)

// StartOptions holds flags for the start command.
type StartOptions struct {
	*RootOptions
	Context string
	Trigger string
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a workflow process",
		Long: `Create a workflow process from a context object and run it until it
completes or suspends.

A suspended process is picked up by the restart scan of 'statehub run' or
'statehub workflow scan'.

Example:
  statehub start --context '{"order":1,"item":1,"qty":2}' --trigger order`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return startProcess(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "{}", "process context object as JSON")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "cli", "trigger recorded in the process context")

	return cmd
}

func startProcess(opts *StartOptions, cmd *cobra.Command) error {
	update, err := parseObject("context", opts.Context)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	p := a.sys.Processor()

	id, err := p.Handle(ctx, update, ir.String(opts.Trigger))
	if err != nil {
		formatter.Error(ErrCodeDispatch, err.Error(), nil)
		return WrapExitError(ExitFailure, "start failed", err)
	}

	rec, ok := p.Manager().GetValue(workflow.SliceName, "", id)
	if !ok {
		return NewExitError(ExitFailure, "process vanished after start")
	}
	return formatter.Success(ir.Object{
		"_id":     ir.Int(id),
		"process": rec,
	})
}
