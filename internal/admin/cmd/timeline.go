package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"chatstate/internal/chat/model"
	"chatstate/internal/chat/state"
)

func (a *app) timelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Read room message timelines",
	}

	var req model.PageRequest
	recent := &cobra.Command{
		Use:   "recent <roomId>",
		Short: "Show the most recent messages of a room, page 0 is the newest",
		Args:  cobra.ExactArgs(1),
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			page, err := st.Timeline.FindRecentByRoomID(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), page)
		}),
	}
	recent.Flags().IntVar(&req.Page, "page", 0, "Page number from the newest end")
	recent.Flags().IntVar(&req.Size, "size", 20, "Page size")

	var window time.Duration
	count := &cobra.Command{
		Use:   "count <roomId>...",
		Short: "Count messages newer than --since in each room",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			counts, err := st.Timeline.CountMessagesByRoomIDs(cmd.Context(), args, time.Now().Add(-window))
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), counts)
		}),
	}
	count.Flags().DurationVar(&window, "since", 24*time.Hour, "Count messages newer than this long ago")

	cmd.AddCommand(recent, count)
	return cmd
}
