package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boneboard-backend/bootstrap"
	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/config"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errNotConfirmed = errors.New("refusing to run without --yes")

type runtimeOpener func() (*bootstrap.Runtime, error)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	actor   string
	timeout time.Duration
	open    runtimeOpener
}

func newRootCmd(open runtimeOpener) *cobra.Command {
	opts := &rootOptions{open: open}
	root := &cobra.Command{
		Use:          "boneboard-admin",
		Short:        "Operator tasks for the BoneBoard listing engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.actor, "actor", "cli", "Operator name recorded in audit rows and lifecycle events")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(
		newMigrateCmd(opts),
		newSweepCmd(opts),
		newReconcileCmd(opts),
		newRepairCmd(opts),
		newPurgeCmd(opts),
		newDeleteProjectCmd(opts),
		newOrphansCmd(opts),
		newQuoteCmd(),
	)
	return root
}

// withRuntime opens storage, runs fn under the configured timeout and closes
// storage again.
func (o *rootOptions) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
	rt, err := o.open()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	return fn(ctx, rt)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if err := database.AutoMigrate(rt.DB.WithContext(ctx)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed jobs and close finished campaigns once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				res, err := rt.Scheduler.RunOnce(ctx)
				if err != nil {
					return err
				}
				if res == nil {
					return errors.New("a sweep is already running")
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <campaign-id>",
		Short: "Compare a campaign's stored total with its contributions",
		Long: `Compare a campaign's stored total with the sum of its contribution rows.
Nothing is written. The command exits non-zero on a mismatch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				rec, err := rt.Ledger.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, rec); err != nil {
					return err
				}
				return rec.Err()
			})
		},
	}
}

func newRepairCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <campaign-id>",
		Short: "Rewrite a campaign's total and funded flag from its contributions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				res, err := rt.Ledger.Repair(ctx, id, opts.actor)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge-contributions <campaign-id>",
		Short: "Delete every contribution of a campaign and reset its total",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return errNotConfirmed
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				n, err := rt.Ledger.PurgeContributions(ctx, id, opts.actor)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"campaign_id": id, "deleted": n})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the purge")
	return cmd
}

func newDeleteProjectCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-project <project-id>",
		Short: "Delete a project with its jobs, campaigns, contributions and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return errNotConfirmed
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				res, err := rt.Cascade.DeleteProject(ctx, id, opts.actor)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the delete")
	return cmd
}

func newOrphansCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "Report rows whose parent no longer exists",
		Long:  `Report rows whose parent no longer exists. The command exits non-zero when any are found.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				report, err := rt.Cascade.Orphans(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, report); err != nil {
					return err
				}
				if !report.Clean() {
					return errors.New("orphaned rows found")
				}
				return nil
			})
		},
	}
}

func newQuoteCmd() *cobra.Command {
	var (
		kind     string
		months   int
		currency string
		featured bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a listing with the configured rate table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := pricing.ParseKind(kind)
			if err != nil {
				return err
			}
			cur, err := domain.ParseCurrency(currency)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rates, err := pricing.FromConfig(cfg.Pricing)
			if err != nil {
				return err
			}
			price, err := pricing.NewEngine(rates).Quote(k, months, cur, featured)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"kind":     k,
				"months":   months,
				"featured": featured,
				"price":    price,
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "project", "Listing kind: project, job or funding")
	cmd.Flags().IntVar(&months, "months", 1, "Listing duration in months")
	cmd.Flags().StringVar(&currency, "currency", string(domain.CurrencyPrimary), "Currency: BONE or ADA")
	cmd.Flags().BoolVar(&featured, "featured", false, "Featured placement")
	return cmd
}
