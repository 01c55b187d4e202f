package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the processed id set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, cleanup, err := openStateStore(cmd.Context(), cfg.State, ctx.logger)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer cleanup()

			set, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend: %s\n", cfg.State.Backend)
			fmt.Fprintf(out, "processed ids: %d\n", set.Len())
			if cfg.State.MaxIDs > 0 {
				fmt.Fprintf(out, "retention: newest %d\n", cfg.State.MaxIDs)
			}
			recent := set.Tail(limit)
			if len(recent) == 0 {
				return nil
			}
			fmt.Fprintf(out, "most recent %d:\n", len(recent))
			for i := len(recent) - 1; i >= 0; i-- {
				fmt.Fprintf(out, "  %s\n", recent[i])
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of most recent ids to print (0 prints all)")
	return cmd
}
