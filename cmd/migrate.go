/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package main provides the CLI commands for managing database migrations of the
commission engine. This includes commands for applying and rolling back migrations.
*/

package main

import (
	"fmt"

	"github.com/blnkfinance/commissions"
	"github.com/blnkfinance/commissions/database"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

const migrationSchema = "commissions"

// migrateCommands creates the root command for migration-related operations.
func migrateCommands(app *engineInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run commission engine migrations",
	}

	cmd.AddCommand(migrateUpCommands(app))
	cmd.AddCommand(migrateDownCommands(app))

	return cmd
}

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: commissions.SQLFiles,
		Root:       "sql",
	}
}

func runMigrations(app *engineInstance, direction migrate.MigrationDirection) (int, error) {
	db, err := database.ConnectDB(app.cnf.DataSource.Dns)
	if err != nil {
		return 0, fmt.Errorf("error connecting to database: %w", err)
	}
	defer db.Close()

	migrate.SetSchema(migrationSchema)
	return migrate.Exec(db, "postgres", migrationSource(), direction)
}

// migrateUpCommands creates the command for applying migrations.
func migrateUpCommands(app *engineInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := runMigrations(app, migrate.Up)
			if err != nil {
				return fmt.Errorf("error migrating up: %w", err)
			}
			fmt.Printf("Applied %d migrations!\n", n)
			return nil
		},
	}
}

// migrateDownCommands creates the command for rolling back migrations.
func migrateDownCommands(app *engineInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := runMigrations(app, migrate.Down)
			if err != nil {
				return fmt.Errorf("error migrating down: %w", err)
			}
			fmt.Printf("Rolled back %d migrations!\n", n)
			return nil
		},
	}
}
