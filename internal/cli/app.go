package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/config"
	"github.com/roach88/statehub/internal/demo"
	"github.com/roach88/statehub/internal/ir"
	"github.com/roach88/statehub/internal/logconn"
	"github.com/roach88/statehub/internal/recovery"
	"github.com/roach88/statehub/internal/state"
	"github.com/roach88/statehub/internal/store"
	"github.com/roach88/statehub/internal/workflow"
)

// app is everything a command needs to act on one tenant's stores.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	log    *store.Store
	defs   []state.Definition

	conn   *logconn.Conn
	sys    *demo.System
	report recovery.Report
}

// Close releases the database.
func (a *app) Close() {
	if err := a.log.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// openLog loads settings and opens the database without connecting to a
// tenant.
func openLog(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := opts.settings()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	logger.Debug("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB, cfg.StoreOptions()...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return &app{cfg: cfg, logger: logger, log: st}, nil
}

// openApp opens the database, connects to the tenant and restores every
// store from the log.
//
// With wait set and no tenant configured, it blocks until one is
// provisioned. Without wait a missing tenant is a command error.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command, wait bool) (*app, error) {
	a, err := openLog(opts, cmd)
	if err != nil {
		return nil, err
	}
	if err := a.connect(ctx, opts, wait); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context, opts *RootOptions, wait bool) error {
	if err := a.dial(ctx, opts, wait); err != nil {
		return err
	}
	sys, err := a.newSystem()
	if err != nil {
		return err
	}
	a.sys = sys

	rep, err := a.restore(ctx, sys, a.cfg.UseCheckpoint)
	if err != nil {
		return err
	}
	a.report = rep
	return nil
}

// dial loads the store definitions and opens the log connection.
func (a *app) dial(ctx context.Context, opts *RootOptions, wait bool) error {
	if a.cfg.Specs != "" {
		defs, err := LoadDefinitions(a.cfg.Specs)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load specs", err)
		}
		a.defs = defs
		a.logger.Debug("specs loaded", "path", a.cfg.Specs, "stores", len(a.defs))
	}

	if !wait {
		if _, err := a.tenant(ctx); err != nil {
			return err
		}
	}

	conn, err := logconn.InitFromDB(ctx, a.log, a.cfg.ConnOptions(opts.now(), a.logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	a.conn = conn
	return nil
}

// newSystem builds empty stores on the connection.
func (a *app) newSystem() (*demo.System, error) {
	sys, err := demo.NewSystem(a.conn, demo.Options{
		Definitions: a.defs,
		Workflow:    a.cfg.WorkflowConfig(workflow.Config{}),
		Logger:      a.logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build stores", err)
	}
	return sys, nil
}

// restore rebuilds sys from the log.
func (a *app) restore(ctx context.Context, sys *demo.System, useCheckpoint bool) (recovery.Report, error) {
	rep, err := recovery.RestoreState(ctx, a.conn, a.log, sys.Stores(), recovery.RestoreOptions{
		UseCheckpoint: useCheckpoint,
		Logger:        a.logger,
	})
	if err != nil {
		return rep, WrapExitError(ExitCommandError, "failed to restore state", err)
	}
	a.logger.Debug("state restored",
		"partition", a.conn.Partition(),
		"checkpoint", rep.Checkpoint,
		"from_seq", rep.FromSeq,
		"last_seq", rep.LastSeq,
		"applied", rep.Applied,
	)
	return rep, nil
}

// tenant returns the configured tenant, or the active one from the
// tenants table.
func (a *app) tenant(ctx context.Context) (string, error) {
	if a.cfg.Tenant != "" {
		return a.cfg.Tenant, nil
	}
	partition, ok, err := a.log.ActivePartition(ctx)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to read tenants", err)
	}
	if !ok {
		return "", NewExitError(ExitCommandError, "no tenant provisioned; pass --tenant")
	}
	a.cfg.Tenant = partition
	return partition, nil
}

// checkpointer builds a checkpointer over the app's stores.
func (a *app) checkpointer(opts *RootOptions) *recovery.Checkpointer {
	return recovery.NewCheckpointer(a.conn, a.log, a.sys.Stores(), a.cfg.CheckpointOptions(opts.now(), a.logger))
}

// parseObject decodes a JSON flag value into a document.
func parseObject(flag, raw string) (ir.Object, error) {
	if raw == "" {
		return ir.Object{}, nil
	}
	v, err := ir.ParseValue([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --"+flag+" JSON", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, NewExitError(ExitCommandError, "--"+flag+" must be a JSON object")
	}
	return obj, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
