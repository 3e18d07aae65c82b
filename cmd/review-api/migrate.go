package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubev2v/document-review/internal/store"
	"github.com/kubev2v/document-review/pkg/migrations"
)

var migrationsFolder string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return err
		}
		defer done()

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := migrations.MigrateStore(db, cfg.Database.Type, migrationsFolder); err != nil {
			zap.S().Fatalw("running migrations", "error", err)
		}

		zap.S().Info("Db migrated")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsFolder, "migrations-folder", "", "Folder of SQL migrations; the embedded ones are used when empty")
}
