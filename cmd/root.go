package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slotclaim",
		Short:         "Keeps a portal session logged in and claims a course group the moment signup opens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML file with settings (environment variables win)")
	root.PersistentFlags().Bool("migrate", true, "run database migrations on startup when DATABASE_URL is set")
	root.PersistentFlags().Lookup("migrate").NoOptDefVal = "true"

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newPasswordCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newLoginCmd())
	root.AddCommand(newClaimCmd())
	root.AddCommand(newRunsCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
