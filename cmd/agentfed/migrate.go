package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/agentfed/config"
	"github.com/BaSui01/agentfed/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage()
		if len(args) < 1 {
			os.Exit(1)
		}
		return
	}

	subcommand := args[0]
	fs := flag.NewFlagSet("migrate "+subcommand, flag.ExitOnError)
	migrator, err := createMigrator(fs, args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	if err := cli.Run(context.Background(), subcommand, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		if errors.Is(err, migration.ErrUsage) {
			printMigrateUsage()
		}
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  agentfed migrate <subcommand> [options] [args]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  steps <n> Apply (n>0) or rollback (n<0) n migrations
  status    Show migration status
  version   Show current migration version
  info      Show migration source and database
  goto <v>  Migrate to a specific version
  force <v> Force set migration version (use with caution)
  reset     Rollback all migrations

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  agentfed migrate up
  agentfed migrate up --config /etc/agentfed/config.yaml
  agentfed migrate goto 1
  agentfed migrate force 0`)
}

// createMigrator creates a migrator from command line flags
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}
