package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/engine"
	"github.com/roach88/statehub/internal/ir"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	Payload string
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch <store> <action>",
		Short: "Dispatch an action to a store",
		Long: `Dispatch one action to a store and print the per-slice result.

The stores are restored from the log first; the dispatch appends at most one
record. A reducer reporting failure is advisory: the record is still written
and the command exits 0.

Example:
  statehub dispatch inventory inventory/add --payload '{"name":"bolt","qty":10,"price":25}'
  statehub dispatch orders order/place --payload '{"item":1,"qty":2,"amount":50}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatchAction(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "action payload as JSON")

	return cmd
}

func dispatchAction(opts *DispatchOptions, storeName, actionType string, cmd *cobra.Command) error {
	payload, err := parseObject("payload", opts.Payload)
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
	if _, ok := a.sys.Manager(storeName); !ok {
		formatter.Error(ErrCodeUnknownStore, fmt.Sprintf("unknown store %q", storeName), a.sys.Names())
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown store %q", storeName))
	}

	before := a.conn.Seq()
	res, err := a.sys.Dispatch(ctx, storeName, ir.Action{Type: actionType, Payload: payload})
	if err != nil {
		formatter.Error(ErrCodeDispatch, err.Error(), nil)
		return WrapExitError(ExitFailure, "dispatch failed", err)
	}
	formatter.VerboseLog("dispatched %s to %s (seq %d -> %d)", actionType, storeName, before, a.conn.Seq())

	return formatter.Success(dispatchReport{
		store:   storeName,
		action:  actionType,
		result:  res,
		written: a.conn.Seq() != before,
		seq:     a.conn.Seq(),
	})
}

// dispatchReport is the outcome of one dispatch: the per-slice reducer
// results and where the log stands afterwards.
type dispatchReport struct {
	store   string
	action  string
	result  engine.Result
	written bool
	seq     int64
}

func (r dispatchReport) Value() ir.Value {
	return ir.Object{
		"store":   ir.String(r.store),
		"action":  ir.String(r.action),
		"failed":  ir.Bool(r.result.Failed()),
		"result":  r.result.Value(),
		"written": ir.Bool(r.written),
		"seq":     ir.Int(r.seq),
	}
}

// WriteText prints a header line, then one row per slice that answered:
//
//	inventory/reserve -> inventory  seq 1, nothing written
//	  items  FAILED  item 1: 10 in stock, 99 requested
func (r dispatchReport) WriteText(w io.Writer) error {
	written := "nothing written"
	if r.written {
		written = "written"
	}
	if _, err := fmt.Fprintf(w, "%s -> %s  seq %d, %s\n", r.action, r.store, r.seq, written); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, slice := range slices.Sorted(maps.Keys(r.result)) {
		info := r.result[slice]
		status, detail := "ok", info.Message
		if info.Failed {
			status = "FAILED"
		}
		if detail == "" && info.Data != nil {
			b, err := ir.MarshalCanonical(info.Data)
			if err != nil {
				return err
			}
			detail = string(b)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", slice, status, detail)
	}
	return tw.Flush()
}
