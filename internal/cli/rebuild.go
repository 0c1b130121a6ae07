package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the consolidated view once and print the result",
		Long: `Clear the view store and repopulate it from the ledger and the graph.

The command exits non-zero when the rebuild aborted or another rebuild holds the lock.
With --strict it also fails when rows were skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app.App) error {
				result, err := a.Coordinator.Rebuild(ctx)
				if result != nil {
					if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
						return printErr
					}
				}
				if err != nil {
					return err
				}
				if strict {
					if partial := result.Err(); partial != nil {
						return fmt.Errorf("rebuild incomplete: %w", partial)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any row was skipped")

	return cmd
}
