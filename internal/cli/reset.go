package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Empty the graph, the interest store and the view store",
		Long:  "Delete every graph node and edge, drop the interest collection and clear the view store. The ledger is not touched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("reset deletes data; pass --yes to confirm")
			}
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app.App) error {
				if err := a.Ingest.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stores reset")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")

	return cmd
}
