package walletsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/walletsync/internal/model"
	"github.com/cleared-dev/walletsync/internal/reconcile"
	"github.com/cleared-dev/walletsync/internal/statement"
)

type fakeSource struct {
	stmt  *model.Statement
	errs  []error // returned by successive calls before stmt
	calls int
}

func (f *fakeSource) FetchStatement(_ context.Context, _ string, _ model.SyncWindow) (*model.Statement, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return f.stmt, nil
}

// fakeLedger records submissions in memory and, like the remote ledger, only
// reports transactions dated inside the queried window.
type fakeLedger struct {
	recorded   map[string]time.Time // external id -> transaction date
	submitted  []model.LedgerTransaction
	failFor    map[string]error // external id -> error returned on every submit
	failAll    error
	listErr    error
	submits    int
	listCalls  int
	lastWindow model.SyncWindow
	nextLedger int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{recorded: map[string]time.Time{}, failFor: map[string]error{}, nextLedger: 1000}
}

func (f *fakeLedger) ListExistingExternalIDs(_ context.Context, _ int64, window model.SyncWindow) (map[string]struct{}, error) {
	f.listCalls++
	f.lastWindow = window
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := window.Start.Format(time.DateOnly)
	end := window.End.Format(time.DateOnly)
	out := make(map[string]struct{}, len(f.recorded))
	for ext, date := range f.recorded {
		day := date.Format(time.DateOnly)
		if day >= start && day <= end {
			out[ext] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeLedger) Submit(_ context.Context, tx model.LedgerTransaction) (int64, error) {
	f.submits++
	if f.failAll != nil {
		return 0, f.failAll
	}
	if err := f.failFor[tx.ExternalID]; err != nil {
		return 0, err
	}
	f.nextLedger++
	f.recorded[tx.ExternalID] = tx.Date
	f.submitted = append(f.submitted, tx)
	return f.nextLedger, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testWindow = model.SyncWindow{
	Start: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
}

func walletEntry(id, typ, amount, funding string, day int) model.WalletEntry {
	return model.WalletEntry{
		ID:             id,
		Time:           time.Date(2026, 9, day, 12, 0, 0, 0, time.UTC),
		Type:           typ,
		Status:         "Complete",
		Amount:         dec(amount),
		CurrencySymbol: "$",
		From:           "Jane Doe",
		To:             "Sam Lee",
		FundingSource:  funding,
	}
}

func request() Request {
	return Request{ProfileID: "p1", Window: testWindow, Currency: "usd", AssetID: 42}
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, SubmitAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func newTestService(src StatementSource, ledger LedgerStore, opts ...Option) *Service {
	opts = append([]Option{WithRetryPolicy(fastRetry())}, opts...)
	return NewService(src, ledger, opts...)
}

func TestSync_SinglePayment(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("390.00"), Ending: dec("50.89")},
		Entries:  []model.WalletEntry{walletEntry("3468915211", "Payment", "-339.11", model.WalletBalance, 3)},
	}}
	ledger := newFakeLedger()

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, report.Status)
	require.Len(t, report.Inserted, 1)
	assert.Equal(t, "3468915211", report.Inserted[0].ExternalID)
	assert.Equal(t, []int64{1001}, report.InsertedIDs())
	assert.Equal(t, "390.00", report.Beginning.StringFixed(2))
	assert.Equal(t, "50.89", report.Ending.StringFixed(2))
	assert.NotEmpty(t, report.RunID)

	require.Len(t, ledger.submitted, 1)
	tx := ledger.submitted[0]
	assert.Equal(t, "-339.11", tx.Amount.StringFixed(2))
	assert.Equal(t, "usd", tx.Currency)
	assert.Equal(t, int64(42), tx.AssetID)
	assert.Equal(t, "Sam Lee", tx.Payee)
}

func TestSync_BankFundedPair(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("100.00"), Ending: dec("100.00")},
		Entries:  []model.WalletEntry{walletEntry("3469000001", "Payment", "-25.00", "Chase Checking *1234", 5)},
	}}
	ledger := newFakeLedger()

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, report.Status)

	require.Len(t, ledger.submitted, 2)
	assert.Equal(t, "3469000001T", ledger.submitted[0].ExternalID, "funding leg goes first")
	assert.Equal(t, "25.00", ledger.submitted[0].Amount.StringFixed(2))
	assert.Equal(t, "3469000001", ledger.submitted[1].ExternalID)
	assert.Equal(t, "-25.00", ledger.submitted[1].Amount.StringFixed(2))
}

func TestSync_RerunInsertsNothing(t *testing.T) {
	stmt, err := statement.DefaultRegistry().Get("venmo").Parse(openTestdata(t))
	require.NoError(t, err)
	src := &fakeSource{stmt: stmt}
	ledger := newFakeLedger()
	svc := newTestService(src, ledger)

	first, err := svc.Sync(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, first.Status)
	assert.Len(t, first.Inserted, 5)
	assert.Zero(t, first.Skipped)

	second, err := svc.Sync(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, second.Status)
	assert.Empty(t, second.Inserted)
	assert.Equal(t, 5, second.Skipped)
	assert.Len(t, ledger.submitted, 5, "second run submits nothing")
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestSync_FileSource(t *testing.T) {
	src, err := statement.NewFileSource(filepath.Join("..", "..", "testdata", "venmo_statement.csv"), "venmo")
	require.NoError(t, err)
	ledger := newFakeLedger()

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.NoError(t, err)

	var got []string
	for _, ins := range report.Inserted {
		got = append(got, ins.ExternalID)
	}
	assert.Equal(t, []string{"3468915211", "3469000001T", "3469000001", "3469100002", "3469200003"}, got)
	assert.Empty(t, report.Flags)
}

func TestSync_FileOutsideWindowStaysIdempotent(t *testing.T) {
	src, err := statement.NewFileSource(filepath.Join("..", "..", "testdata", "venmo_statement.csv"), "venmo")
	require.NoError(t, err)
	ledger := newFakeLedger()
	svc := newTestService(src, ledger)

	// Entries are dated 2026-09-03..09-12; the requested window starts later.
	req := request()
	req.Window = model.SyncWindow{
		Start: time.Date(2026, 9, 19, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}

	first, err := svc.Sync(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, first.Inserted, 5)
	assert.Equal(t, "2026-09-03", first.Window.Start.Format(time.DateOnly))
	assert.Equal(t, "2026-10-19", first.Window.End.Format(time.DateOnly))

	second, err := svc.Sync(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Inserted)
	assert.Equal(t, 5, second.Skipped)
	assert.Equal(t, 5, ledger.submits)
	assert.Equal(t, "2026-09-03", ledger.lastWindow.Start.Format(time.DateOnly))
}

func TestSync_InboundBankTransfer(t *testing.T) {
	transfer := walletEntry("4000", "Standard Transfer", "100.00", "Chase Checking", 7)
	transfer.Destination = model.WalletBalance
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("0.00"), Ending: dec("100.00")},
		Entries:  []model.WalletEntry{transfer},
	}}
	ledger := newFakeLedger()

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, report.Status)
	assert.Empty(t, report.Flags)
	require.Len(t, ledger.submitted, 1)
	assert.Equal(t, "4000", ledger.submitted[0].ExternalID)
	assert.Equal(t, "100.00", ledger.submitted[0].Amount.StringFixed(2))
	assert.Equal(t, "TRANSFER FROM Chase Checking", ledger.submitted[0].Payee)
}

func TestSync_SubmitAuthAborts(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("30.00"), Ending: dec("0.00")},
		Entries: []model.WalletEntry{
			walletEntry("1", "Payment", "-10.00", model.WalletBalance, 1),
			walletEntry("2", "Payment", "-10.00", model.WalletBalance, 2),
			walletEntry("3", "Payment", "-10.00", model.WalletBalance, 3),
		},
	}}

	t.Run("first submission", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.failAll = fmt.Errorf("status 401: %w", model.ErrAuth)

		report, err := newTestService(src, ledger).Sync(context.Background(), request())
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrAuth)
		assert.Equal(t, model.RunAborted, report.Status)
		assert.Equal(t, 1, ledger.submits, "no retry and no further submissions")
		require.Len(t, report.Failures, 1)
		assert.Equal(t, "1", report.Failures[0].ExternalID)
	})

	t.Run("keeps earlier inserts", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.failFor["2"] = fmt.Errorf("status 403: %w", model.ErrAuth)

		report, err := newTestService(src, ledger).Sync(context.Background(), request())
		require.Error(t, err)
		var serr *model.SubmissionError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "2", serr.ExternalID)
		assert.Equal(t, model.RunAborted, report.Status)
		require.Len(t, report.Inserted, 1)
		assert.Equal(t, "1", report.Inserted[0].ExternalID)
		assert.Equal(t, 2, ledger.submits)
	})
}

func TestSync_CancelledDuringSubmitAborts(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("20.00"), Ending: dec("0.00")},
		Entries: []model.WalletEntry{
			walletEntry("1", "Payment", "-10.00", model.WalletBalance, 1),
			walletEntry("2", "Payment", "-10.00", model.WalletBalance, 2),
		},
	}}
	ledger := newFakeLedger()
	ledger.failAll = context.Canceled

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.RunAborted, report.Status)
	assert.Equal(t, 1, ledger.submits)
}

func TestCoverEntries(t *testing.T) {
	w := testWindow
	assert.Equal(t, w, coverEntries(w, []model.WalletEntry{walletEntry("1", "Payment", "-1.00", "", 15)}))

	early := walletEntry("2", "Payment", "-1.00", "", 1)
	early.Time = time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	late := walletEntry("3", "Payment", "-1.00", "", 1)
	late.Time = time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)

	got := coverEntries(w, []model.WalletEntry{late, early})
	assert.True(t, got.Start.Equal(early.Time))
	assert.True(t, got.End.Equal(late.Time))
}

func TestSync_DriftAborts(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("100.00"), Ending: dec("105.00")},
		Entries: []model.WalletEntry{
			walletEntry("1", "Payment", "-25.00", "Chase Checking *1234", 5),
		},
	}}
	ledger := newFakeLedger()

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrReconciliationMismatch)

	var mm *reconcile.MismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, "5.00", mm.Difference.StringFixed(2))

	assert.Equal(t, model.RunAborted, report.Status)
	assert.Zero(t, ledger.submits)
	assert.Zero(t, ledger.listCalls, "reconciliation runs before the ledger is queried")
}

func TestSync_PartialFailureContinues(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("100.00"), Ending: dec("70.00")},
		Entries: []model.WalletEntry{
			walletEntry("1", "Payment", "-10.00", model.WalletBalance, 1),
			walletEntry("2", "Payment", "-10.00", model.WalletBalance, 2),
			walletEntry("3", "Payment", "-10.00", model.WalletBalance, 3),
		},
	}}
	ledger := newFakeLedger()
	ledger.failFor["2"] = errors.New("invalid payee")

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompletedWithFailures, report.Status)

	require.Len(t, report.Inserted, 2)
	assert.Equal(t, "1", report.Inserted[0].ExternalID)
	assert.Equal(t, "3", report.Inserted[1].ExternalID)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "2", report.Failures[0].ExternalID)
	assert.Contains(t, report.Failures[0].Reason, "invalid payee")
	assert.Equal(t, 3, ledger.submits, "permanent errors are not retried")
}

func TestSync_SubmitRetriesTransient(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("10.00"), Ending: dec("0.00")},
		Entries:  []model.WalletEntry{walletEntry("1", "Payment", "-10.00", model.WalletBalance, 1)},
	}}
	ledger := newFakeLedger()
	ledger.failFor["1"] = fmt.Errorf("status 503: %w", model.ErrTransient)

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompletedWithFailures, report.Status)
	assert.Equal(t, 2, ledger.submits, "bounded by SubmitAttempts")
}

func TestSync_FetchRetriesTransient(t *testing.T) {
	src := &fakeSource{
		errs: []error{
			fmt.Errorf("connection reset: %w", model.ErrTransient),
			fmt.Errorf("status 502: %w", model.ErrTransient),
		},
		stmt: &model.Statement{Snapshot: model.BalanceSnapshot{Beginning: dec("1.00"), Ending: dec("1.00")}},
	}

	report, err := newTestService(src, newFakeLedger()).Sync(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, report.Status)
	assert.Equal(t, 3, src.calls)
}

func TestSync_FetchGivesUp(t *testing.T) {
	transient := fmt.Errorf("status 500: %w", model.ErrTransient)
	src := &fakeSource{errs: []error{transient, transient, transient, transient}}

	report, err := newTestService(src, newFakeLedger()).Sync(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransient)
	assert.Equal(t, model.RunAborted, report.Status)
	assert.Equal(t, 3, src.calls, "bounded by MaxAttempts")
}

func TestSync_AuthNotRetried(t *testing.T) {
	src := &fakeSource{errs: []error{fmt.Errorf("status 401: %w", model.ErrAuth)}}

	report, err := newTestService(src, newFakeLedger()).Sync(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAuth)
	assert.Equal(t, model.RunAborted, report.Status)
	assert.Equal(t, 1, src.calls)
}

func TestSync_ListExistingFailureAborts(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("10.00"), Ending: dec("0.00")},
		Entries:  []model.WalletEntry{walletEntry("1", "Payment", "-10.00", model.WalletBalance, 1)},
	}}
	ledger := newFakeLedger()
	ledger.listErr = fmt.Errorf("status 403: %w", model.ErrAuth)

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAuth)
	assert.Equal(t, model.RunAborted, report.Status)
	assert.Zero(t, ledger.submits)
}

func TestSync_DryRun(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("100.00"), Ending: dec("100.00")},
		Entries:  []model.WalletEntry{walletEntry("7", "Payment", "-25.00", "Visa *9876", 5)},
	}}
	ledger := newFakeLedger()
	var states []State

	req := request()
	req.DryRun = true
	report, err := newTestService(src, ledger, WithTransitionHook(func(s State) {
		states = append(states, s)
	})).Sync(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, model.RunCompleted, report.Status)
	assert.Empty(t, report.Inserted)
	require.Len(t, report.Pending, 2)
	assert.Equal(t, "7T", report.Pending[0].ExternalID)
	assert.Zero(t, ledger.submits)
	assert.NotContains(t, states, StateSubmitting)
	assert.Contains(t, states, StateFiltering)
}

func TestSync_CurrencyMismatch(t *testing.T) {
	entry := walletEntry("1", "Payment", "-10.00", model.WalletBalance, 1)
	entry.CurrencySymbol = "€"
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("10.00"), Ending: dec("0.00")},
		Entries:  []model.WalletEntry{entry},
	}}
	ledger := newFakeLedger()

	report, err := newTestService(src, ledger).Sync(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCurrencyMismatch)
	assert.Equal(t, model.RunAborted, report.Status)
	assert.Zero(t, ledger.submits)
}

func TestSync_UnsupportedCurrency(t *testing.T) {
	src := &fakeSource{}
	req := request()
	req.Currency = "xyz"

	_, err := newTestService(src, newFakeLedger()).Sync(context.Background(), req)
	require.Error(t, err)
	assert.Zero(t, src.calls)
}

func TestSync_StateTransitions(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("10.00"), Ending: dec("0.00")},
		Entries:  []model.WalletEntry{walletEntry("1", "Payment", "-10.00", model.WalletBalance, 1)},
	}}
	var states []State
	_, err := newTestService(src, newFakeLedger(), WithTransitionHook(func(s State) {
		states = append(states, s)
	})).Sync(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateFetching,
		StateClassifying,
		StateSynthesizing,
		StateReconciling,
		StateFiltering,
		StateSubmitting,
		StateReporting,
		StateCompleted,
	}, states)
	assert.True(t, states[len(states)-1].Terminal())
}

func TestSync_AbortTransitions(t *testing.T) {
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("10.00"), Ending: dec("9.00")},
	}}
	var states []State
	_, err := newTestService(src, newFakeLedger(), WithTransitionHook(func(s State) {
		states = append(states, s)
	})).Sync(context.Background(), request())
	require.Error(t, err)

	assert.Equal(t, []State{
		StateFetching,
		StateClassifying,
		StateSynthesizing,
		StateReconciling,
		StateAborted,
	}, states)
}

func TestSync_FlagsReported(t *testing.T) {
	inflow := walletEntry("9", "Payment", "5.00", "Someone Else's Bank", 1)
	src := &fakeSource{stmt: &model.Statement{
		Snapshot: model.BalanceSnapshot{Beginning: dec("0.00"), Ending: dec("5.00")},
		Entries:  []model.WalletEntry{inflow},
	}}

	report, err := newTestService(src, newFakeLedger()).Sync(context.Background(), request())
	require.NoError(t, err)
	require.Len(t, report.Flags, 1)
	assert.Contains(t, report.Flags[0], "9: ")
}

func TestSync_OpenEndedWindowResolvedOnce(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{stmt: &model.Statement{}}
	req := request()
	req.Window.End = time.Time{}

	report, err := newTestService(src, newFakeLedger(), WithClock(func() time.Time { return fixed })).
		Sync(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, report.Window.End.Equal(fixed))
}

func TestSync_InvertedWindow(t *testing.T) {
	src := &fakeSource{}
	req := request()
	req.Window.Start, req.Window.End = req.Window.End, req.Window.Start

	report, err := newTestService(src, newFakeLedger()).Sync(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, model.RunAborted, report.Status)
	assert.Zero(t, src.calls)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "completed-with-partial-failures", StateCompletedWithFailures.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.False(t, StateReporting.Terminal())
	assert.True(t, StateAborted.Terminal())
}
