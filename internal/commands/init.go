package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/walletsync/internal/config"
	"github.com/cleared-dev/walletsync/internal/gitops"
)

func newInitCommand(configPath *string) *cobra.Command {
	var force bool
	var git bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default walletsync.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(*configPath)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			return runInit(cmd, absPath, force, git)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVar(&git, "git", false, "commit each run's audit log to a git repository")

	return cmd
}

func runInit(cmd *cobra.Command, path string, force, git bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	cfg := config.Default()
	if git {
		cfg.Audit.AutoCommit = true
		if !gitops.IsRepo(dir) {
			if err := gitops.Init(dir); err != nil {
				return err
			}
		}
	}

	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", path)
	fmt.Fprintln(out, "Next: set wallet.profile_id and ledger.asset_id (see `walletsync assets`),")
	fmt.Fprintln(out, "then export WALLETSYNC_WALLET_TOKEN and WALLETSYNC_LEDGER_TOKEN.")
	return nil
}
