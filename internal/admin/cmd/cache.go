package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatstate/internal/chat/state"
	"chatstate/internal/core/store"
)

// cacheEntry cache get 的输出
type cacheEntry struct {
	Key  string `json:"key" yaml:"key"`
	Type string `json:"type" yaml:"type"`
	Size int    `json:"size" yaml:"size"`
	Raw  string `json:"raw" yaml:"raw"`
}

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the shared near-cache",
	}

	size := &cobra.Command{
		Use:   "size",
		Short: "Show the global number of near-cache entries",
		Args:  cobra.NoArgs,
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			n, err := st.Cache.Size(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		}),
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the type tag and stored envelope of a key",
		Args:  cobra.ExactArgs(1),
		RunE: a.withState(func(cmd *cobra.Command, args []string, st *state.State) error {
			raw, ok, err := st.Cache.GetRaw(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key %s not found", args[0])
			}
			typ, err := store.PeekType(raw)
			if err != nil {
				return fmt.Errorf("key %s: %w", args[0], err)
			}
			return a.render(cmd.OutOrStdout(), cacheEntry{Key: args[0], Type: typ, Size: len(raw), Raw: string(raw)})
		}),
	}

	cmd.AddCommand(size, get)
	return cmd
}
