package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatstate/internal/chat/state"
)

func (a *app) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or remove user sessions",
	}

	show := &cobra.Command{
		Use:   "show <userId>",
		Short: "Show a live session of the user (reaps expired index entries)",
		Args:  cobra.ExactArgs(1),
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			sess, err := st.Sessions.FindByUserID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("no live session for user %s", args[0])
			}
			return a.render(cmd.OutOrStdout(), sess)
		}),
	}

	purge := &cobra.Command{
		Use:   "purge <userId>",
		Short: "Delete every session of the user and its index",
		Args:  cobra.ExactArgs(1),
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			if err := st.Sessions.DeleteByUserID(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged sessions of user %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(show, purge)
	return cmd
}
