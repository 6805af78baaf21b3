package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/walletsync/internal/config"
	"github.com/cleared-dev/walletsync/internal/gitops"
	"github.com/cleared-dev/walletsync/internal/logging"
	"github.com/cleared-dev/walletsync/internal/lunchmoney"
	"github.com/cleared-dev/walletsync/internal/model"
	"github.com/cleared-dev/walletsync/internal/reconcile"
	"github.com/cleared-dev/walletsync/internal/runlog"
	"github.com/cleared-dev/walletsync/internal/statement"
	"github.com/cleared-dev/walletsync/internal/venmo"
	"github.com/cleared-dev/walletsync/internal/walletsync"
)

// errPartialFailure makes the process exit non-zero after a run that
// inserted some but not all transactions.
var errPartialFailure = errors.New("some transactions were not inserted")

type syncFlags struct {
	start         string
	end           string
	currency      string
	assetID       int64
	profileID     string
	dryRun        bool
	statementFile string
}

func newSyncCommand(configPath *string) *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Record new wallet transactions on the ledger",
		Long: `Fetch the wallet statement for a window, check that its transactions
explain the change in wallet balance, and insert every transaction the
ledger does not have yet. Re-running over the same window inserts nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, *configPath, flags)
		},
	}

	cmd.Flags().StringVar(&flags.start, "start", "", "window start, YYYY-MM-DD (default: window_days before end)")
	cmd.Flags().StringVar(&flags.end, "end", "", "window end, YYYY-MM-DD (default: now)")
	cmd.Flags().StringVar(&flags.currency, "currency", "", "ISO 4217 currency code (default from config)")
	cmd.Flags().Int64Var(&flags.assetID, "asset-id", 0, "ledger asset id (default from config)")
	cmd.Flags().StringVar(&flags.profileID, "profile-id", "", "wallet profile id (default from config)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "show what would be inserted without inserting")
	cmd.Flags().StringVar(&flags.statementFile, "statement-file", "", "read a downloaded statement CSV instead of calling the wallet API")

	return cmd
}

func runSync(cmd *cobra.Command, configPath string, flags syncFlags) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	applySyncFlags(cfg, flags)
	if flags.statementFile != "" {
		err = cfg.ValidateLedger()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return err
	}
	tolerance, err := cfg.ToleranceAmount()
	if err != nil {
		return err
	}

	window, err := parseWindow(flags.start, flags.end, cfg.WindowDays, time.Now())
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cmd.ErrOrStderr())
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx = logging.WithContext(ctx, logger)

	source, err := newStatementSource(cfg, flags.statementFile, logger)
	if err != nil {
		return err
	}
	ledger := newLedgerClient(cfg, logger)

	svc := walletsync.NewService(source, ledger,
		walletsync.WithLogger(logger),
		walletsync.WithTolerance(tolerance),
		walletsync.WithRetryPolicy(walletsync.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			SubmitAttempts:  cfg.Retry.SubmitAttempts,
			InitialInterval: cfg.Retry.GetInitialInterval(),
			MaxInterval:     cfg.Retry.GetMaxInterval(),
		}),
	)

	report, syncErr := svc.Sync(ctx, walletsync.Request{
		ProfileID: cfg.Wallet.ProfileID,
		Window:    window,
		Currency:  cfg.Currency,
		AssetID:   cfg.Ledger.AssetID,
		DryRun:    flags.dryRun,
	})
	printReport(cmd.OutOrStdout(), report, syncErr)

	if err := writeAudit(ctx, cfg, configPath, report); err != nil {
		logger.Error().Err(err).Msg("Writing audit log failed")
	}

	if syncErr != nil {
		return syncErr
	}
	if report.Status == model.RunCompletedWithFailures {
		return fmt.Errorf("%w: %d failed", errPartialFailure, len(report.Failures))
	}
	return nil
}

func applySyncFlags(cfg *config.Config, flags syncFlags) {
	if flags.currency != "" {
		cfg.Currency = flags.currency
	}
	if flags.assetID != 0 {
		cfg.Ledger.AssetID = flags.assetID
	}
	if flags.profileID != "" {
		cfg.Wallet.ProfileID = flags.profileID
	}
}

// parseWindow builds the sync window from the CLI dates. An empty end leaves
// the window open so the run pins it to its own start time.
func parseWindow(start, end string, days int, now time.Time) (model.SyncWindow, error) {
	var w model.SyncWindow
	if end != "" {
		t, err := time.Parse(time.DateOnly, end)
		if err != nil {
			return w, fmt.Errorf("parsing --end %q: %w", end, err)
		}
		// Inclusive of the whole end day.
		w.End = t.Add(24*time.Hour - time.Second)
	}
	if start != "" {
		t, err := time.Parse(time.DateOnly, start)
		if err != nil {
			return w, fmt.Errorf("parsing --start %q: %w", start, err)
		}
		w.Start = t
	} else {
		ref := w.End
		if ref.IsZero() {
			ref = now.UTC()
		}
		if days <= 0 {
			days = 30
		}
		y, m, d := ref.AddDate(0, 0, -days).Date()
		w.Start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if !w.End.IsZero() && w.End.Before(w.Start) {
		return w, fmt.Errorf("--end %s is before --start %s", end, w.Start.Format(time.DateOnly))
	}
	return w, nil
}

func newStatementSource(cfg *config.Config, statementFile string, logger zerolog.Logger) (walletsync.StatementSource, error) {
	if statementFile != "" {
		src, err := statement.NewFileSource(statementFile, "venmo")
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return venmo.NewClient(cfg.Wallet.AccessToken,
		venmo.WithBaseURL(cfg.Wallet.BaseURL),
		venmo.WithLogger(logger),
		venmo.WithRateLimit(cfg.Wallet.RateLimit),
		venmo.WithTimeout(cfg.Wallet.GetTimeout()),
	), nil
}

func newLedgerClient(cfg *config.Config, logger zerolog.Logger) *lunchmoney.Client {
	return lunchmoney.NewClient(cfg.Ledger.AccessToken,
		lunchmoney.WithBaseURL(cfg.Ledger.BaseURL),
		lunchmoney.WithLogger(logger),
		lunchmoney.WithRateLimit(cfg.Ledger.RateLimit),
		lunchmoney.WithTimeout(cfg.Ledger.GetTimeout()),
	)
}

func printReport(w io.Writer, r *model.SyncReport, err error) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Run %s, window %s\n", r.RunID, r.Window)

	var mm *reconcile.MismatchError
	switch {
	case errors.As(err, &mm):
		fmt.Fprintln(w, "Aborted: wallet balance does not reconcile, nothing was submitted.")
		fmt.Fprintf(w, "  beginning   %12s\n", mm.Beginning.StringFixed(2))
		fmt.Fprintf(w, "  computed    %12s\n", mm.Computed.StringFixed(2))
		fmt.Fprintf(w, "  reported    %12s\n", mm.Ending.StringFixed(2))
		fmt.Fprintf(w, "  difference  %12s\n", mm.Difference.StringFixed(2))
		return
	case err != nil:
		fmt.Fprintf(w, "Aborted: %v\n", err)
		if len(r.Inserted) > 0 {
			printSubmissions(w, r)
		}
		return
	}

	fmt.Fprintf(w, "Balance %s -> %s reconciles.\n", r.Beginning.StringFixed(2), r.Ending.StringFixed(2))
	for _, f := range r.Flags {
		fmt.Fprintf(w, "  check: %s\n", f)
	}

	if r.DryRun {
		fmt.Fprintf(w, "Dry run: %d to insert, %d already recorded.\n", len(r.Pending), r.Skipped)
		for _, tx := range r.Pending {
			fmt.Fprintf(w, "  %s  %-14s %10s  %s\n", tx.Date.Format(time.DateOnly), tx.ExternalID, tx.Amount.StringFixed(2), tx.Payee)
		}
		return
	}

	printSubmissions(w, r)
}

func printSubmissions(w io.Writer, r *model.SyncReport) {
	fmt.Fprintf(w, "Inserted %d, skipped %d already recorded.\n", len(r.Inserted), r.Skipped)
	for _, ins := range r.Inserted {
		fmt.Fprintf(w, "  #%-10d %-14s %10s  %s\n", ins.LedgerID, ins.ExternalID, ins.Amount.StringFixed(2), ins.Payee)
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "Failed %d:\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %-14s %10s  %s\n", f.ExternalID, f.Amount.StringFixed(2), f.Reason)
		}
	}
}

// writeAudit appends the run to the audit log and, when configured, commits it.
func writeAudit(ctx context.Context, cfg *config.Config, configPath string, r *model.SyncReport) error {
	if r == nil || cfg.Audit.Dir == "" {
		return nil
	}
	logger := logging.FromContext(ctx)

	dir := cfg.Audit.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(configPath), dir)
	}
	if err := runlog.Append(dir, runlog.FromReport(r, time.Now().UTC())); err != nil {
		return err
	}

	if !cfg.Audit.AutoCommit || !gitops.IsRepo(dir) {
		return nil
	}
	msg := fmt.Sprintf("sync %s: %s", r.Window, strings.ToLower(string(r.Status)))
	author := gitops.Author{Name: cfg.Audit.AuthorName, Email: cfg.Audit.AuthorEmail}
	hash, err := gitops.CommitFiles(dir, msg, author, runlog.FileName)
	if err != nil {
		return fmt.Errorf("committing audit log: %w", err)
	}
	logger.Info().Str("commit", hash).Msg("Committed audit log")
	return nil
}
