package commands

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"task-manager/models"
	"task-manager/store"
	"task-manager/utils"
)

// PasswordEnvVar supplies the password for createsuperuser --noinput.
const PasswordEnvVar = "TASKMANAGER_SUPERUSER_PASSWORD"

type superuserOptions struct {
	username string
	email    string
	password string
	noInput  bool
}

func newCreateSuperuserCommand(opts *rootOptions) *cobra.Command {
	su := &superuserOptions{}
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an active Admin account with every permission",
		Args:  cobra.NoArgs,
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

			if err := su.complete(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
			user, err := createSuperuser(cmd.Context(), db, su)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Superuser %q created successfully.\n", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&su.username, "username", "", "login name of the superuser")
	cmd.Flags().StringVar(&su.email, "email", "", "email address of the superuser")
	cmd.Flags().StringVar(&su.password, "password", "", "password (otherwise "+PasswordEnvVar+" or a prompt)")
	cmd.Flags().BoolVar(&su.noInput, "noinput", false, "never prompt; take the password from the flag or "+PasswordEnvVar)
	return cmd
}

// complete fills missing values from the environment or, unless noInput is
// set, by prompting on in.
func (su *superuserOptions) complete(in io.Reader, out io.Writer) error {
	if su.password == "" {
		su.password = os.Getenv(PasswordEnvVar)
	}
	if su.noInput {
		if su.username == "" {
			return errors.New("--username is required with --noinput")
		}
		if su.password == "" {
			return fmt.Errorf("--password or %s is required with --noinput", PasswordEnvVar)
		}
		return nil
	}

	reader := bufio.NewReader(in)
	prompt := func(label string) (string, error) {
		fmt.Fprint(out, label)
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err)
		}
		return strings.TrimSpace(line), nil
	}
	var err error
	if su.username == "" {
		if su.username, err = prompt("Username: "); err != nil {
			return err
		}
	}
	if su.email == "" {
		if su.email, err = prompt("Email address: "); err != nil {
			return err
		}
	}
	if su.password == "" {
		if su.password, err = prompt("Password: "); err != nil {
			return err
		}
		again, err := prompt("Password (again): ")
		if err != nil {
			return err
		}
		if su.password != again {
			return errors.New("passwords do not match")
		}
		if err := utils.ValidatePassword("password", su.password, su.username, su.email); err != nil {
			return fmt.Errorf("password rejected: %w", err)
		}
	}
	return nil
}

func createSuperuser(ctx context.Context, db *sql.DB, su *superuserOptions) (models.User, error) {
	if su.username == "" {
		return models.User{}, errors.New("username cannot be blank")
	}
	user := models.User{
		Username:    su.username,
		Email:       su.email,
		Role:        models.RoleAdmin,
		IsSuperuser: true,
		IsStaff:     true,
		IsActive:    true,
	}
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := store.CreateUser(ctx, tx, &user, su.password); err != nil {
			return err
		}
		return store.SyncUserRoleGroup(ctx, tx, user.ID, user.Role)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return user, fmt.Errorf("username %q is already taken", su.username)
	}
	return user, err
}
