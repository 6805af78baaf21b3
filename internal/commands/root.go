package commands

import (
	"github.com/spf13/cobra"

	"github.com/cleared-dev/walletsync/internal/buildinfo"
	"github.com/cleared-dev/walletsync/internal/config"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "walletsync",
		Short:   "Reconcile a Venmo wallet into a Lunch Money ledger",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName, "path to walletsync.yaml")

	rootCmd.AddCommand(newInitCommand(&configPath))
	rootCmd.AddCommand(newSyncCommand(&configPath))
	rootCmd.AddCommand(newAssetsCommand(&configPath))

	return rootCmd
}
