package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"chatstate/internal/chat/state"
)

func (a *app) rateLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage per-client rate limit entries",
	}

	var yes, dryRun bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete every rate limit entry (scans the whole keyspace)",
		Args:  cobra.NoArgs,
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			if dryRun {
				n, err := st.RateLimits.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "would delete %d rate limit entries\n", n)
				return nil
			}
			if !yes {
				return errors.New("refusing to delete rate limits without --yes")
			}
			n, err := st.RateLimits.DeleteAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rate limit entries\n", n)
			return nil
		}),
	}
	reset.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	reset.Flags().BoolVar(&dryRun, "dry-run", false, "Only count the entries that would be deleted")

	show := &cobra.Command{
		Use:   "show <clientId>",
		Short: "Show the rate limit entry of a client",
		Args:  cobra.ExactArgs(1),
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			limit, err := st.RateLimits.FindByClientID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if limit == nil {
				return fmt.Errorf("no rate limit for client %s", args[0])
			}
			return a.render(cmd.OutOrStdout(), limit)
		}),
	}

	cmd.AddCommand(reset, show)
	return cmd
}
