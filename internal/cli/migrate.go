package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"emailthing/internal/repository"
	"emailthing/pkg/rbac"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := requireDB(v)
			if err != nil {
				return err
			}
			logger := newLogger(v)
			defer logger.Sync()

			if err := migrate(cmd.Context(), dsn, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

func newGrantCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant a user access to a mailbox in a local SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := requireDB(v)
			if err != nil {
				return err
			}
			if isPostgres(dsn) {
				return fmt.Errorf("grant only works on SQLite stores")
			}
			mailbox, user, role := v.GetString("mailbox"), v.GetString("user"), v.GetString("role")
			if mailbox == "" || user == "" {
				return fmt.Errorf("--mailbox and --user are required")
			}
			if role != rbac.RoleOwner && role != rbac.RoleAdmin {
				return fmt.Errorf("role must be %s or %s", rbac.RoleOwner, rbac.RoleAdmin)
			}

			logger := newLogger(v)
			defer logger.Sync()

			store, err := repository.NewSQLiteStore(cmd.Context(), dsn, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpsertMailboxUser(cmd.Context(), mailbox, user, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Granted %s %s on %s\n", user, role, mailbox)
			return nil
		},
	}

	cmd.Flags().String("mailbox", "", "Mailbox id")
	cmd.Flags().String("user", "", "User id")
	cmd.Flags().String("role", rbac.RoleOwner, "OWNER or ADMIN")

	return cmd
}
