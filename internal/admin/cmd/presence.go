package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatstate/internal/chat/state"
)

func (a *app) presenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Inspect or clear room presence of a user",
	}

	list := &cobra.Command{
		Use:   "list <userId>",
		Short: "List rooms the user is in",
		Args:  cobra.ExactArgs(1),
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			rooms, err := st.Presence.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), rooms)
		}),
	}

	clear := &cobra.Command{
		Use:   "clear <userId>",
		Short: "Remove the user from every room",
		Args:  cobra.ExactArgs(1),
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			if err := st.Presence.RemoveAllRooms(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared rooms of user %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(list, clear)
	return cmd
}
