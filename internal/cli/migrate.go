package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply ledger schema migrations",
		Long:  "Apply the migrations in DB_MIGRATION_FOLDER_PATH. DB_MIGRATION_VERSION and DB_MIGRATION_FORCE pin or force a version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, sync, err := setup(rootOpts)
			if err != nil {
				return err
			}
			defer sync()

			return app.New(cfg, logger).Migrate(cmd.Context())
		},
	}
}
