// Package commands is the task-manager command line: database maintenance
// commands and the HTTP server.
package commands

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"task-manager/config"
	"task-manager/driver"
	"task-manager/logging"
)

type rootOptions struct {
	envFile string
}

// load reads and validates the configuration and sets up logging.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.InitLogger(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel}); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (o *rootOptions) openDB(cfg config.Config) (*sql.DB, error) {
	return driver.ConnectDB(cfg.DBDriver, cfg.DBDSN)
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "task-manager",
		Short:         "School task manager with Admin, Teacher and Student roles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(
		newMigrateCommand(opts),
		newShowMigrationsCommand(opts),
		newCreateGroupsCommand(opts),
		newCreateSuperuserCommand(opts),
		newRunServerCommand(opts),
	)
	return root
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		logging.Logger.Errorf("Event ID: COMMAND_FAILED, Description: %v", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
