package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/recovery"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Replica bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the stores until interrupted",
		Long: `Restore every store from the log and keep it live.

Without --tenant the command waits until a tenant is provisioned, then
watches for rotation: when a newer tenant becomes active it drains and exits
with status 1 so a supervisor restarts it on the new partition.

The primary runs the workflow restart scan and periodic checkpoints.
With --replica the stores only follow the log; nothing is written.

Example:
  statehub run --db ./statehub.db --tenant acme
  statehub run --db ./statehub.db --replica --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Replica, "replica", false, "follow the log read-only")

	return cmd
}

func runServer(opts *RunOptions, cmd *cobra.Command) error {
	a, err := openLog(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	// Use command's context if available (for testing)
	ctx, cancel := withSignals(commandContext(cmd), a.logger)
	defer cancel()

	pinned := a.cfg.Tenant != ""
	if !pinned {
		a.logger.Info("waiting for a tenant")
	}
	if err := a.connect(ctx, opts.RootOptions, true); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	a.logger.Info("stores restored",
		"partition", a.conn.Partition(),
		"checkpoint", a.report.Checkpoint,
		"last_seq", a.report.LastSeq,
		"applied", a.report.Applied,
	)

	if !pinned {
		a.conn.Watch(ctx)
	}

	sub := a.sys.Hub().Subscribe(0)
	defer sub.Close()
	go func() {
		for ev := range sub.C {
			a.logger.Debug("change", "store", ev.Store, "seq", ev.Seq, "head", ev.Head, "slices", ev.Slices)
		}
	}()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan error, 1)
	if opts.Replica {
		go func() {
			done <- recovery.Follow(runCtx, a.conn, a.report.LastSeq, a.sys.Stores(), a.logger)
		}()
	} else {
		a.sys.Processor().Start(runCtx)
		a.checkpointer(opts.RootOptions).Start(runCtx)
	}

	mode := "primary"
	if opts.Replica {
		mode = "replica"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving tenant %s as %s at seq %d.\n", a.conn.Partition(), mode, a.conn.Seq())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	var exitErr error
	followed := false
	select {
	case <-ctx.Done():
	case rot := <-a.conn.Rotations():
		a.logger.Warn("tenant rotated, shutting down", "from", rot.From, "to", rot.To)
		exitErr = NewExitError(ExitFailure, fmt.Sprintf("tenant rotated from %s to %s; restart required", rot.From, rot.To))
	case err := <-done:
		followed = true
		if err != nil {
			exitErr = WrapExitError(ExitFailure, "replica stopped", err)
		}
	}

	stop()
	if opts.Replica && !followed {
		<-done
	}
	a.sys.Processor().Wait()
	a.logger.Info("stopped", "partition", a.conn.Partition(), "seq", a.conn.Seq())
	return exitErr
}
