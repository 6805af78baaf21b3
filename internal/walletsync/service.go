// Package walletsync drives one sync run: fetch the wallet statement, convert
// it to ledger transactions, prove the balance closes, and submit what the
// ledger does not have yet.
package walletsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/walletsync/internal/config"
	"github.com/cleared-dev/walletsync/internal/convert"
	"github.com/cleared-dev/walletsync/internal/logging"
	"github.com/cleared-dev/walletsync/internal/model"
	"github.com/cleared-dev/walletsync/internal/reconcile"
)

// StatementSource supplies the wallet entries and balances for a window.
type StatementSource interface {
	FetchStatement(ctx context.Context, profileID string, window model.SyncWindow) (*model.Statement, error)
}

// LedgerStore is the remote ledger: what it already holds, and how to add to it.
type LedgerStore interface {
	ListExistingExternalIDs(ctx context.Context, assetID int64, window model.SyncWindow) (map[string]struct{}, error)
	Submit(ctx context.Context, tx model.LedgerTransaction) (int64, error)
}

// Request holds the parameters of one sync run.
type Request struct {
	ProfileID string
	Window    model.SyncWindow
	Currency  string // ISO 4217, e.g. "usd"
	AssetID   int64
	DryRun    bool
}

// Service runs syncs. It keeps no state between runs.
type Service struct {
	source       StatementSource
	ledger       LedgerStore
	logger       zerolog.Logger
	retry        RetryPolicy
	tolerance    decimal.Decimal
	onTransition func(State)
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRetryPolicy sets the retry bounds for remote calls.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

// WithTolerance sets the accepted drift between computed and reported balances.
func WithTolerance(tol decimal.Decimal) Option {
	return func(s *Service) {
		s.tolerance = tol
	}
}

// WithTransitionHook registers fn to observe every state change.
func WithTransitionHook(fn func(State)) Option {
	return func(s *Service) {
		s.onTransition = fn
	}
}

// WithClock replaces time.Now when resolving an open-ended window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a sync Service.
func NewService(source StatementSource, ledger LedgerStore, opts ...Option) *Service {
	s := &Service{
		source:    source,
		ledger:    ledger,
		logger:    logging.Silent(),
		retry:     DefaultRetryPolicy(),
		tolerance: reconcile.DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run carries the per-run bookkeeping.
type run struct {
	svc    *Service
	logger zerolog.Logger
	report *model.SyncReport
}

func (r *run) enter(state State) {
	r.logger.Debug().Str("state", state.String()).Msg("Sync state")
	if r.svc.onTransition != nil {
		r.svc.onTransition(state)
	}
}

func (r *run) abort(err error) (*model.SyncReport, error) {
	r.report.Status = model.RunAborted
	r.logger.Error().Err(err).Msg("Sync aborted")
	r.enter(StateAborted)
	return r.report, err
}

// Sync runs one sync. An aborted run returns the partial report together with
// the cause; nothing is submitted after an abort. Per-transaction submission
// failures do not abort the run: they are listed in the report and the
// status is RunCompletedWithFailures. A rejected token or a cancelled context
// during submission does abort it, keeping what was already inserted.
func (s *Service) Sync(ctx context.Context, req Request) (*model.SyncReport, error) {
	window := req.Window.Resolve(s.now())
	r := &run{
		svc: s,
		report: &model.SyncReport{
			RunID:  uuid.NewString(),
			Window: window,
			DryRun: req.DryRun,
		},
	}
	r.logger = s.logger.With().
		Str("run_id", r.report.RunID).
		Str("window", window.String()).
		Logger()

	if window.End.Before(window.Start) {
		return r.abort(fmt.Errorf("window end %s is before start %s",
			window.End.Format(time.DateOnly), window.Start.Format(time.DateOnly)))
	}
	symbol, ok := config.CurrencySymbol(req.Currency)
	if !ok {
		return r.abort(fmt.Errorf("%w: unsupported currency %q", model.ErrCurrencyMismatch, req.Currency))
	}

	r.enter(StateFetching)
	stmt, err := retry(ctx, s.retry.backOff(ctx, s.retry.MaxAttempts), r.logger, "fetch statement",
		func() (*model.Statement, error) {
			return s.source.FetchStatement(ctx, req.ProfileID, window)
		})
	if err != nil {
		return r.abort(fmt.Errorf("fetching statement: %w", err))
	}
	if covered := coverEntries(window, stmt.Entries); !covered.Start.Equal(window.Start) || !covered.End.Equal(window.End) {
		r.logger.Info().
			Str("requested", window.String()).
			Str("statement", covered.String()).
			Msg("Statement entries fall outside the requested window, widening it")
		window = covered
		r.report.Window = window
	}
	r.report.Beginning = stmt.Snapshot.Beginning
	r.report.Ending = stmt.Snapshot.Ending
	r.logger.Info().
		Int("entries", len(stmt.Entries)).
		Str("beginning", stmt.Snapshot.Beginning.StringFixed(2)).
		Str("ending", stmt.Snapshot.Ending.StringFixed(2)).
		Msg("Fetched statement")

	r.enter(StateClassifying)
	if err := convert.CheckCurrency(stmt.Entries, req.Currency, symbol); err != nil {
		return r.abort(err)
	}
	classified := convert.NewClassifier(r.logger).ClassifyAll(stmt.Entries)
	for _, ct := range classified {
		if ct.Flag != "" {
			r.report.Flags = append(r.report.Flags, fmt.Sprintf("%s: %s", ct.Entry.ID, ct.Flag))
		}
	}

	r.enter(StateSynthesizing)
	postings := convert.Synthesize(classified)
	if errs := convert.ValidatePairs(postings); len(errs) > 0 {
		return r.abort(fmt.Errorf("synthesized legs do not balance: %w", errs[0]))
	}
	candidates := convert.ToLedger(postings, req.Currency, req.AssetID)

	r.enter(StateReconciling)
	if err := reconcile.Reconcile(window, stmt.Snapshot, reconcile.Amounts(candidates), s.tolerance); err != nil {
		return r.abort(err)
	}
	if step, neg := reconcile.FirstNegative(reconcile.Trace(stmt.Snapshot.Beginning, candidates)); neg {
		r.logger.Warn().
			Str("external_id", step.ExternalID).
			Str("balance", step.Balance.StringFixed(2)).
			Msg("Running wallet balance goes negative")
	}

	r.enter(StateFiltering)
	existing, err := retry(ctx, s.retry.backOff(ctx, s.retry.MaxAttempts), r.logger, "list existing transactions",
		func() (map[string]struct{}, error) {
			return s.ledger.ListExistingExternalIDs(ctx, req.AssetID, window)
		})
	if err != nil {
		return r.abort(fmt.Errorf("listing existing transactions: %w", err))
	}
	fresh := reconcile.FilterNew(candidates, existing)
	r.report.Skipped = len(candidates) - len(fresh)
	r.logger.Info().
		Int("candidates", len(candidates)).
		Int("new", len(fresh)).
		Int("skipped", r.report.Skipped).
		Msg("Filtered already-recorded transactions")

	if req.DryRun {
		r.report.Pending = fresh
		return r.finish(), nil
	}

	r.enter(StateSubmitting)
	for _, tx := range fresh {
		if err := r.submit(ctx, tx); err != nil && haltsSubmission(err) {
			return r.abort(err)
		}
	}
	return r.finish(), nil
}

// coverEntries widens w to include every entry's timestamp. A downloaded
// statement carries its own dates, and the recorded-id lookup must see them.
func coverEntries(w model.SyncWindow, entries []model.WalletEntry) model.SyncWindow {
	for _, e := range entries {
		if e.Time.Before(w.Start) {
			w.Start = e.Time
		}
		if e.Time.After(w.End) {
			w.End = e.Time
		}
	}
	return w
}

// haltsSubmission reports whether err will fail every remaining submission too.
func haltsSubmission(err error) bool {
	return errors.Is(err, model.ErrAuth) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (r *run) submit(ctx context.Context, tx model.LedgerTransaction) error {
	svc := r.svc
	ledgerID, err := retry(ctx, svc.retry.backOff(ctx, svc.retry.SubmitAttempts), r.logger, "submit "+tx.ExternalID,
		func() (int64, error) {
			return svc.ledger.Submit(ctx, tx)
		})
	if err != nil {
		serr := &model.SubmissionError{ExternalID: tx.ExternalID, Err: err}
		r.logger.Error().Err(serr).Str("external_id", tx.ExternalID).Msg("Submission failed")
		r.report.Failures = append(r.report.Failures, model.Failure{
			ExternalID: tx.ExternalID,
			Amount:     tx.Amount,
			Payee:      tx.Payee,
			Reason:     failureReason(err),
		})
		return serr
	}
	r.logger.Info().
		Int64("ledger_id", ledgerID).
		Str("external_id", tx.ExternalID).
		Str("amount", tx.Amount.StringFixed(2)).
		Msg("Inserted transaction")
	r.report.Inserted = append(r.report.Inserted, model.Inserted{
		LedgerID:   ledgerID,
		ExternalID: tx.ExternalID,
		Amount:     tx.Amount,
		Payee:      tx.Payee,
	})
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrAuth):
		return "ledger rejected the access token: " + err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted: " + err.Error()
	}
	return err.Error()
}

func (r *run) finish() *model.SyncReport {
	r.enter(StateReporting)
	final := StateCompleted
	r.report.Status = model.RunCompleted
	if len(r.report.Failures) > 0 {
		final = StateCompletedWithFailures
		r.report.Status = model.RunCompletedWithFailures
	}
	r.logger.Info().
		Str("status", string(r.report.Status)).
		Int("inserted", len(r.report.Inserted)).
		Int("failed", len(r.report.Failures)).
		Int("skipped", r.report.Skipped).
		Bool("dry_run", r.report.DryRun).
		Msg("Sync finished")
	r.enter(final)
	return r.report
}
