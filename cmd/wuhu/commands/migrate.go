package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply any pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, err := storage.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		version, err := storage.CurrentVersion(ctx, db)
		if err != nil {
			return err
		}
		fmt.Printf("database at %s is at schema version %d\n", cfg.DatabasePath, version)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, err := storage.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		version, err := storage.CurrentVersion(ctx, db)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}
