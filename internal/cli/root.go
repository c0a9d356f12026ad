package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "EMAILTHING"

func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "emailthing",
		Short:        "emailthing reads mailbox pages from a local or remote store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return v.BindPFlags(cmd.Flags())
		},
	}

	cmd.PersistentFlags().String("db", "", "PostgreSQL DSN (postgres://...) or SQLite file path")
	cmd.PersistentFlags().Bool("verbose", false, "Log debug output to stderr")

	cmd.AddCommand(newListCmd(v))
	cmd.AddCommand(newMigrateCmd(v))
	cmd.AddCommand(newGrantCmd(v))

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(v *viper.Viper) *zap.Logger {
	if !v.GetBool("verbose") {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func requireDB(v *viper.Viper) (string, error) {
	dsn := v.GetString("db")
	if dsn == "" {
		return "", fmt.Errorf("--db (or %s_DB) is required", envPrefix)
	}
	return dsn, nil
}
