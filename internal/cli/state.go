package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	ID   int64
	Path string
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state [store [slice]]",
		Short: "Print restored store state",
		Long: `Restore the stores from the log and print them.

Without arguments every store is printed as {store: {control, slices}}.
With a slice, --id selects one LIST item and --path a dotted path inside
the slice or item.

Example:
  statehub state
  statehub state inventory
  statehub state inventory items --id 1 --path qty`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showState(opts, args, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.ID, "id", 0, "LIST item id (requires a slice)")
	cmd.Flags().StringVar(&opts.Path, "path", "", "dotted path inside the slice or item (requires a slice)")

	return cmd
}

func showState(opts *StateOptions, args []string, cmd *cobra.Command) error {
	if len(args) < 2 && (opts.ID != 0 || opts.Path != "") {
		return NewExitError(ExitCommandError, "--id and --path require a slice")
	}

	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	formatter.VerboseLog("restored %s through seq %d", a.conn.Partition(), a.report.LastSeq)

	if len(args) == 0 {
		return formatter.Success(a.sys.Debug())
	}

	m, ok := a.sys.Manager(args[0])
	if !ok {
		formatter.Error(ErrCodeUnknownStore, fmt.Sprintf("unknown store %q", args[0]), a.sys.Names())
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown store %q", args[0]))
	}
	if len(args) == 1 {
		return formatter.Success(m.Debug())
	}

	var ids []int64
	if cmd.Flags().Changed("id") {
		ids = append(ids, opts.ID)
	}
	v, ok := m.GetValue(args[1], opts.Path, ids...)
	if !ok {
		where := args[0] + "/" + args[1]
		if len(ids) > 0 {
			where += fmt.Sprintf("/%d", opts.ID)
		}
		if opts.Path != "" {
			where += ":" + opts.Path
		}
		formatter.Error(ErrCodeNotFoundID, "no value at "+where, nil)
		return NewExitError(ExitFailure, "no value at "+where)
	}
	return formatter.Success(v)
}
