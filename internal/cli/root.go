package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/config"
)

// RootOptions holds global flags for all commands.
//
// DB, Tenant and Specs override the STATEHUB_* environment when set.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	DB     string
	Tenant string
	Specs  string

	// Now overrides the wall clock (for testing). Defaults to time.Now.
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the statehub CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "statehub",
		Short: "statehub - event-sourced stores and durable workflows",
		Long: `Event-sourced state stores over an append-only SQLite log, with a
durable workflow processor, checkpoints and replay.

Settings come from STATEHUB_* environment variables; the global flags
below override them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to SQLite database (STATEHUB_DB)")
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", "", "tenant partition (STATEHUB_TENANT)")
	cmd.PersistentFlags().StringVar(&opts.Specs, "specs", "", "store definitions: CUE directory or compiled JSON (STATEHUB_SPECS)")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewWorkflowCommand(opts))
	cmd.AddCommand(NewCheckpointCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewTenantCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// settings loads the environment and applies flag overrides.
func (o *RootOptions) settings() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.DB != "" {
		cfg.DB = o.DB
	}
	if o.Tenant != "" {
		cfg.Tenant = o.Tenant
	}
	if o.Specs != "" {
		cfg.Specs = o.Specs
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func (o *RootOptions) now() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// newLogger builds the text logger every command writes diagnostics to.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
