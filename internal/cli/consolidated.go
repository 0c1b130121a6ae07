package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

func NewConsolidatedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consolidated",
		Short: "Print the consolidated view as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app.App) error {
				view, err := a.View.Consolidated(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}
