package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
	"github.com/travelhub/booking-service/internal/config"
)

const versionTimeFormat = "20060102150405"

func main() {
	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "booking service schema migrations",
	}
	rootCmd.AddCommand(
		createMigrationCommand(),
		migrateUpCommand(),
		migrateDownCommand(),
		versionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func createMigrationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-create [name]",
		Short: "create empty up/down sql migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "migrations"
			if cfg, err := config.LoadDatabase(); err == nil && cfg.MigrationsDir != "" {
				dir = cfg.MigrationsDir
			}

			version := time.Now().Format(versionTimeFormat)
			up := filepath.Join(dir, fmt.Sprintf("%s_%s.up.sql", version, args[0]))
			down := filepath.Join(dir, fmt.Sprintf("%s_%s.down.sql", version, args[0]))

			if err := os.WriteFile(up, []byte{}, 0644); err != nil {
				return err
			}
			if err := os.WriteFile(down, []byte{}, 0644); err != nil {
				return err
			}

			fmt.Println("Created SQL up script:", up)
			fmt.Println("Created SQL down script:", down)
			return nil
		},
	}
}

func migrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-up",
		Short: "migrate all the way up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMigrate()
			if err != nil {
				return err
			}
			defer m.Close()

			err = m.Up()
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("No change in migration")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println("Migrated up")
			return nil
		},
	}
}

func migrateDownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-down [steps]",
		Short: "roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer")
				}
				steps = n
			}

			m, err := newMigrate()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			fmt.Printf("Rolled back %d migration(s)\n", steps)
			return nil
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-version",
		Short: "print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMigrate()
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("No migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func newMigrate() (*migrate.Migrate, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	return migrate.New(fmt.Sprintf("file://%s", cfg.MigrationsDir), cfg.URL)
}
