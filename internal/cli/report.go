package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/models"
)

func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print revenue per customer from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(ctx context.Context, a *app.App) error {
				summary, err := a.Ledger.SalesSummary(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), summary)
				}
				return writeSalesTable(cmd, summary)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return cmd
}

func writeSalesTable(cmd *cobra.Command, summary *models.SalesSummary) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCUSTOMER\tPURCHASES\tTOTAL")
	for _, c := range summary.Customers {
		fmt.Fprintf(w, "%d\t%s\t%d\t%.2f\n", c.CustomerID, c.Name, c.Purchases, c.TotalSpent)
	}
	fmt.Fprintf(w, "\t\t\t%.2f\n", summary.TotalRevenue)
	return w.Flush()
}
