package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/ir"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	After  int64
	Limit  int
	Store  string
	Follow bool
}

// LogEntry is one record in the log listing.
type LogEntry struct {
	Seq       int64           `json:"seq"`
	Timestamp int64           `json:"timestamp"`
	Stores    []string        `json:"stores"`
	Batches   json.RawMessage `json:"batches,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List records of the append log",
		Long: `List the tenant's log records in sequence order.

Each record shows which stores it touched. With --verbose (or --format json)
the update batches are included. --follow keeps tailing new records until
interrupted.

Examples:
  statehub log --tenant acme
  statehub log --after 100 --limit 20 --store inventory
  statehub log --follow --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "only records with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum records to list (ignored with --follow)")
	cmd.Flags().StringVar(&opts.Store, "store", "", "only records touching this store")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "keep tailing new records")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, "--limit must be positive")
	}

	ctx := commandContext(cmd)
	a, err := openLog(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Follow {
		return followLog(ctx, a, opts, cmd)
	}

	tenant, err := a.tenant(ctx)
	if err != nil {
		return err
	}
	records, err := a.log.ReadRange(ctx, tenant, opts.After, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}

	entries := []LogEntry{}
	for _, rec := range records {
		if entry, ok := newLogEntry(rec, opts.Store, opts.Verbose || opts.Format == "json"); ok {
			entries = append(entries, entry)
		}
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{
			Status: "ok",
			Data: map[string]any{
				"tenant":  tenant,
				"records": entries,
			},
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Log for tenant: %s\n", tenant)
	fmt.Fprintln(w)
	if len(entries) == 0 {
		fmt.Fprintln(w, "  (no records)")
		return nil
	}
	for _, entry := range entries {
		writeLogEntry(w, entry)
	}
	return nil
}

// followLog tails the log until interrupted, one entry per line.
func followLog(parent context.Context, a *app, opts *LogOptions, cmd *cobra.Command) error {
	ctx, cancel := withSignals(parent, a.logger)
	defer cancel()

	if err := a.dial(ctx, opts.RootOptions, false); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	encoder := json.NewEncoder(w)
	for rec, err := range a.conn.Tail(ctx, opts.After) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			a.logger.Warn("tail read failed", "error", err)
			continue
		}
		entry, ok := newLogEntry(rec, opts.Store, opts.Verbose || opts.Format == "json")
		if !ok {
			continue
		}
		if opts.Format == "json" {
			if err := encoder.Encode(entry); err != nil {
				return err
			}
			continue
		}
		writeLogEntry(w, entry)
	}
	return nil
}

// newLogEntry summarizes rec. It reports false if store is set and rec does
// not touch it.
func newLogEntry(rec ir.LogRecord, store string, withBatches bool) (LogEntry, bool) {
	names := make([]string, 0, len(rec.Batches))
	for name := range rec.Batches {
		names = append(names, name)
	}
	slices.Sort(names)
	if store != "" && !slices.Contains(names, store) {
		return LogEntry{}, false
	}

	entry := LogEntry{Seq: rec.Seq, Timestamp: rec.Timestamp, Stores: names}
	if withBatches {
		if b, err := ir.MarshalCanonical(ir.BatchesValue(rec.Batches)); err == nil {
			entry.Batches = b
		}
	}
	return entry, true
}

func writeLogEntry(w io.Writer, entry LogEntry) {
	ts := time.UnixMilli(entry.Timestamp).UTC().Format(time.RFC3339)
	fmt.Fprintf(w, "  [%d] %s %v\n", entry.Seq, ts, entry.Stores)
	if len(entry.Batches) > 0 {
		fmt.Fprintf(w, "       %s\n", entry.Batches)
	}
}
