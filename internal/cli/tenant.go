package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/statehub/internal/ir"
)

// NewTenantCommand creates the tenant command and its subcommands.
func NewTenantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Provision and list tenants",
		Long: `Tenants partition the log. Creating a tenant makes it the active one;
a running 'statehub run' without --tenant rotates to it and exits.

Example:
  statehub tenant create acme
  statehub tenant list`,
	}

	create := &cobra.Command{
		Use:           "create [name]",
		Short:         "Register a tenant and make it active",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return createTenant(rootOpts, args, cmd)
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List tenants, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTenants(rootOpts, cmd)
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func createTenant(opts *RootOptions, args []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openLog(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	name := a.cfg.Tenant
	if len(args) == 1 {
		name = args[0]
	}
	if name == "" {
		return NewExitError(ExitCommandError, "tenant name is required")
	}

	createdAt := opts.now()().UnixMilli()
	if err := a.log.CreateTenant(ctx, name, createdAt); err != nil {
		return WrapExitError(ExitCommandError, "failed to create tenant", err)
	}
	a.logger.Info("tenant created", "tenant", name)

	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Success(ir.Object{
		"tenant":     ir.String(name),
		"created_at": ir.Int(createdAt),
		"active":     ir.Bool(true),
	})
}

func listTenants(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openLog(opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	tenants, err := a.log.Tenants(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list tenants", err)
	}
	active, _, err := a.log.ActivePartition(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list tenants", err)
	}

	out := make(ir.Array, len(tenants))
	for i, t := range tenants {
		out[i] = ir.String(t)
	}
	doc := ir.Object{"tenants": out}
	if active != "" {
		doc["active"] = ir.String(active)
	}

	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Success(doc)
}
