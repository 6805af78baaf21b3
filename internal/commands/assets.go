package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/walletsync/internal/config"
	"github.com/cleared-dev/walletsync/internal/logging"
)

func newAssetsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "List ledger assets to pick ledger.asset_id from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return err
			}
			if cfg.Ledger.AccessToken == "" {
				return fmt.Errorf("missing configuration: ledger access token (WALLETSYNC_LEDGER_TOKEN)")
			}

			logger := logging.New(cfg.Logging.Level, cmd.ErrOrStderr())
			assets, err := newLedgerClient(cfg, logger).ListAssets(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing assets: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tINSTITUTION\tBALANCE\tCURRENCY")
			for _, a := range assets {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.Label(), a.TypeName, a.InstitutionName, a.Balance.StringFixed(2), a.Currency)
			}
			return tw.Flush()
		},
	}
}
