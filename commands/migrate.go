package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"task-manager/migrations"
	"task-manager/permissions"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (or roll back with --down)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			runner, err := migrations.New(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer runner.Close()

			out := cmd.OutOrStdout()
			if down > 0 {
				if err := runner.Down(down); err != nil {
					return err
				}
				fmt.Fprintf(out, "Rolled back %d migration(s).\n", down)
				return nil
			}

			applied, err := runner.Up()
			if err != nil {
				return err
			}
			if !applied {
				fmt.Fprintln(out, "No migrations to apply.")
				return nil
			}
			version, _, err := runner.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Migrated to version %d.\n", version)
			return nil
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations")
	return cmd
}

func newShowMigrationsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "showmigrations",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			runner, err := migrations.New(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer runner.Close()

			list, err := runner.List()
			if err != nil {
				return err
			}
			for _, m := range list {
				mark := " "
				if m.Applied {
					mark = "X"
				}
				fmt.Fprintf(cmd.OutOrStdout(), " [%s] %06d_%s\n", mark, m.Version, m.Name)
			}
			return nil
		},
	}
}

func newCreateGroupsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "create-groups",
		Aliases: []string{"create_groups"},
		Short:   "Create role groups (Admin, Teacher, Student) and assign base permissions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			db, err := opts.openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Creating role groups and assigning permissions...")
			if _, err := permissions.SyncGroups(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(out, "Groups and permissions created/updated.")
			return nil
		},
	}
}
