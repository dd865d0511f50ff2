package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/store"
)

// CheckpointOptions holds flags for the checkpoint commands.
type CheckpointOptions struct {
	*RootOptions
	Keep int
}

// NewCheckpointCommand creates the checkpoint command and its subcommands.
func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckpointOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Write a checkpoint of every store now",
		Long: `Restore the stores from the log and write a checkpoint artifact at the
current sequence. Old checkpoints beyond STATEHUB_CHECKPOINT_KEEP are pruned.

Example:
  statehub checkpoint
  statehub checkpoint list
  statehub checkpoint prune --keep 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeCheckpoint(opts, cmd)
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List checkpoints for the tenant, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCheckpoints(opts, cmd)
		},
	}

	prune := &cobra.Command{
		Use:           "prune",
		Short:         "Delete all but the newest checkpoints",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pruneCheckpoints(opts, cmd)
		},
	}
	prune.Flags().IntVar(&opts.Keep, "keep", 1, "number of checkpoints to keep")

	cmd.AddCommand(list, prune)
	return cmd
}

func checkpointValue(cp store.Checkpoint) ir.Object {
	return ir.Object{
		"tenant":     ir.String(cp.Tenant),
		"name":       ir.String(cp.Name),
		"seq":        ir.Int(cp.Seq),
		"created_at": ir.Int(cp.CreatedAt),
		"digest":     ir.String(cp.Digest),
	}
}

func writeCheckpoint(opts *CheckpointOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	cp, err := a.checkpointer(opts.RootOptions).SnapshotState(ctx)
	if err != nil {
		formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "checkpoint failed", err)
	}
	return formatter.Success(checkpointValue(cp))
}

func listCheckpoints(opts *CheckpointOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openLog(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err := a.tenant(ctx)
	if err != nil {
		return err
	}
	cps, err := a.log.ListCheckpoints(ctx, tenant)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list checkpoints", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	out := make(ir.Array, len(cps))
	for i, cp := range cps {
		out[i] = checkpointValue(cp)
	}
	return formatter.Success(ir.Object{
		"tenant":      ir.String(tenant),
		"checkpoints": out,
	})
}

func pruneCheckpoints(opts *CheckpointOptions, cmd *cobra.Command) error {
	if opts.Keep < 1 {
		return NewExitError(ExitCommandError, "--keep must be at least 1")
	}

	ctx := commandContext(cmd)
	a, err := openLog(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err := a.tenant(ctx)
	if err != nil {
		return err
	}
	n, err := a.log.PruneCheckpoints(ctx, tenant, opts.Keep)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prune checkpoints", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Success(ir.Object{
		"tenant":  ir.String(tenant),
		"removed": ir.Int(n),
	})
}
