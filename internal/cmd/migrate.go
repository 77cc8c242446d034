package cmd

import (
	"github.com/spf13/cobra"
	"github.com/yakoovad/pr-daemon/internal/db"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = l.Sync() }()

		return db.Migrate(cmd.Context(), cfg.Postgres, l)
	},
}
