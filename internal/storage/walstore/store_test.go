package walstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/internal/domain"
)

func openTestStore(t *testing.T, dir string) *Store {
	s, err := Open(zap.NewNop(), dir)
	require.NoError(t, err)
	return s
}

func amount(t *testing.T, v string) decimal.Decimal {
	d, err := domain.ParseAmount(v)
	require.NoError(t, err)
	return d
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC)
}

func TestStore_SeedTypesIsIdempotent(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SeedTypes(ctx))
	require.NoError(t, s.SeedTypes(ctx))

	for i, code := range domain.TypeCodes() {
		tt, err := s.FindTypeByCode(ctx, code)
		require.NoError(t, err)
		require.Equal(t, code, tt.Code)
		require.Equal(t, int64(i+1), tt.ID)
	}
}

func TestStore_FindTypeByCodeMissing(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	_, err := s.FindTypeByCode(context.Background(), domain.TypeBuy)
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestStore_StateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	require.NoError(t, s.SeedTypes(ctx))
	require.NoError(t, s.AddEvent(ctx, &domain.Event{ID: "ev-1", UserID: "u1", Kind: domain.EventKindPayIn, Date: day(1)}))
	require.NoError(t, s.AddTransaction(ctx, &domain.Transaction{
		ID:              "tx-1",
		Amount:          amount(t, "100.50"),
		RealAmount:      amount(t, "100.50"),
		Fee:             decimal.Zero,
		Date:            day(1),
		ReceiverAccount: &domain.Account{ID: "acc-1", UserID: "u1", Currency: domain.CurrencyEUR},
		Event:           domain.Event{ID: "ev-1", UserID: "u1", Kind: domain.EventKindPayIn, Date: day(1)},
	}))
	require.NoError(t, s.SaveExchange(ctx, domain.Exchange{ID: "ex-1", Title: domain.ExchangeKraken}))
	require.NoError(t, s.SaveReport(ctx, &domain.Report{
		UserID: "u1", ExchangeID: "ex-1", Currency: domain.CurrencyBTC, Date: day(1),
		FifoAKCrypto: amount(t, "0.5"), FifoAKEuroSum: amount(t, "15000"), RateReal: amount(t, "40000"),
	}))
	require.NoError(t, s.AppendNext(ctx, &domain.ReportB{UserID: "u1", ExchangeID: "ex-1", DateTime: day(2)}))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir)
	defer reopened.Close()

	txs := reopened.Transactions(ctx)
	require.Len(t, txs, 1)
	require.Equal(t, "tx-1", txs[0].ID)
	require.True(t, txs[0].Amount.Equal(amount(t, "100.50")))
	require.Equal(t, "acc-1", txs[0].ReceiverAccount.ID)

	event, err := reopened.FindEvent(ctx, "ev-1")
	require.NoError(t, err)
	require.Equal(t, domain.EventKindPayIn, event.Kind)

	_, err = reopened.FindTypeByCode(ctx, domain.TypeSell)
	require.NoError(t, err)

	exchanges, err := reopened.ExchangesForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []domain.Exchange{{ID: "ex-1", Title: domain.ExchangeKraken}}, exchanges)

	last, err := reopened.GetLastByUser(ctx, "u1", "ex-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), last.Number)

	require.NoError(t, reopened.AppendNext(ctx, &domain.ReportB{UserID: "u1", ExchangeID: "ex-1", DateTime: day(3)}))
	last, err = reopened.GetLastByUser(ctx, "u1", "ex-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), last.Number, "numbering continues after replay")
}

func TestStore_TransactionalDiscardsOnError(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	ctx := context.Background()
	boom := errors.New("queue unavailable")

	err := s.Transactional(ctx, func(ctx context.Context) error {
		require.NoError(t, s.AddEvent(ctx, &domain.Event{ID: "ev-1", UserID: "u1", Kind: domain.EventKindPayOut, Date: day(1)}))
		require.NoError(t, s.AddTransaction(ctx, &domain.Transaction{
			ID: "tx-1", Date: day(1),
			SenderAccount: &domain.Account{ID: "acc-1", UserID: "u1"},
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.Empty(t, s.Transactions(ctx))
	_, err = s.FindEvent(ctx, "ev-1")
	require.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestStore_TransactionalCommitsTogether(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	ctx := context.Background()
	err := s.Transactional(ctx, func(ctx context.Context) error {
		if err := s.AddEvent(ctx, &domain.Event{ID: "ev-1", UserID: "u1", Kind: domain.EventKindPayIn, Date: day(1)}); err != nil {
			return err
		}
		// staged writes are not visible before commit
		_, err := s.FindEvent(ctx, "ev-1")
		require.Error(t, err)

		return s.Transactional(ctx, func(ctx context.Context) error {
			return s.AddTransaction(ctx, &domain.Transaction{
				ID: "tx-1", Date: day(1),
				ReceiverAccount: &domain.Account{ID: "acc-1", UserID: "u1"},
			})
		})
	})
	require.NoError(t, err)

	_, err = s.FindEvent(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, s.Transactions(ctx), 1)
}

func TestStore_AddTransactionRequiresSingleAccount(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	err := s.AddTransaction(context.Background(), &domain.Transaction{
		ID:              "tx-1",
		SenderAccount:   &domain.Account{ID: "a"},
		ReceiverAccount: &domain.Account{ID: "b"},
	})
	require.Error(t, err)
	require.Empty(t, s.Transactions(context.Background()))
}

func TestStore_ReportLookups(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	ctx := context.Background()
	reports := []domain.Report{
		{UserID: "u1", ExchangeID: "ex-1", Currency: domain.CurrencyEUR, Date: day(1), FifoAKCrypto: amount(t, "1000"), FifoRPLSum: amount(t, "1")},
		{UserID: "u1", ExchangeID: "ex-1", Currency: domain.CurrencyBTC, Date: day(2), FifoAKCrypto: amount(t, "0.5"), FifoRPLSum: amount(t, "2")},
		{UserID: "u1", ExchangeID: "ex-1", Currency: domain.CurrencyEUR, Date: day(3), FifoAKCrypto: amount(t, "800"), FifoRPLSum: amount(t, "3")},
		{UserID: "u1", ExchangeID: "ex-1", Currency: domain.CurrencyBTC, Date: day(5), FifoAKCrypto: amount(t, "0.7"), FifoRPLSum: amount(t, "5")},
		{UserID: "u2", ExchangeID: "ex-1", Currency: domain.CurrencyEUR, Date: day(1), FifoAKCrypto: amount(t, "9")},
	}
	for i := range reports {
		require.NoError(t, s.SaveReport(ctx, &reports[i]))
		require.Equal(t, int64(i+1), reports[i].ID)
	}

	last, err := s.FindByDate(ctx, "u1", "ex-1", day(4))
	require.NoError(t, err)
	require.True(t, last.FifoRPLSum.Equal(amount(t, "3")))

	btc, err := s.FindLastByCurrency(ctx, "u1", "ex-1", day(4), domain.CurrencyBTC)
	require.NoError(t, err)
	require.True(t, btc.FifoAKCrypto.Equal(amount(t, "0.5")))

	euro, err := s.GetEuroStockByDate(ctx, "u1", "ex-1", day(2))
	require.NoError(t, err)
	require.True(t, euro.Equal(amount(t, "1000")))

	euro, err = s.GetEuroStockByDate(ctx, "u3", "ex-1", day(2))
	require.NoError(t, err)
	require.True(t, euro.IsZero(), "no EUR report means zero stock")

	_, err = s.FindByDate(ctx, "u1", "ex-1", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestStore_AppendNextNumbersPerPair(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendNext(ctx, &domain.ReportB{UserID: "u1", ExchangeID: "ex-1", DateTime: day(i + 1)}))
	}
	require.NoError(t, s.AppendNext(ctx, &domain.ReportB{UserID: "u1", ExchangeID: "ex-2", DateTime: day(1)}))
	require.NoError(t, s.AppendNext(ctx, &domain.ReportB{UserID: "u2", ExchangeID: "ex-1", DateTime: day(1)}))

	rows := s.Rows(ctx, "u1", "ex-1")
	require.Len(t, rows, 3)
	for i, row := range rows {
		require.Equal(t, int64(i+1), row.Number)
	}
	require.Equal(t, int64(1), s.Rows(ctx, "u1", "ex-2")[0].Number)
	require.Equal(t, int64(1), s.Rows(ctx, "u2", "ex-1")[0].Number)

	_, err := s.GetLastByUser(ctx, "u3", "ex-1")
	require.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestStore_AppendNextConcurrent(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Transactional(ctx, func(ctx context.Context) error {
				return s.AppendNext(ctx, &domain.ReportB{UserID: "u1", ExchangeID: "ex-1", DateTime: day(1)})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows := s.Rows(ctx, "u1", "ex-1")
	require.Len(t, rows, writers)
	for i, row := range rows {
		require.Equal(t, int64(i+1), row.Number, "numbers are gapless and unique")
	}
}

func TestStore_TruncateReports(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	for _, user := range []string{"u1", "u2"} {
		for d := 1; d <= 4; d++ {
			require.NoError(t, s.AppendNext(ctx, &domain.ReportB{UserID: user, ExchangeID: "ex-1", DateTime: day(d)}))
		}
	}

	cutoff := day(3)
	require.NoError(t, s.TruncateReports(ctx, domain.Truncation{UserID: "u1", Cutoff: &cutoff}))
	require.Len(t, s.Rows(ctx, "u1", "ex-1"), 2)
	require.Len(t, s.Rows(ctx, "u2", "ex-1"), 4)

	require.NoError(t, s.TruncateReports(ctx, domain.Truncation{UserID: "u2"}))
	require.Empty(t, s.Rows(ctx, "u2", "ex-1"))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir)
	defer reopened.Close()
	require.Equal(t, 2, reopened.CountRows(ctx), "tombstones replay")

	require.NoError(t, reopened.AppendNext(ctx, &domain.ReportB{UserID: "u1", ExchangeID: "ex-1", DateTime: day(5)}))
	last, err := reopened.GetLastByUser(ctx, "u1", "ex-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), last.Number)

	require.NoError(t, reopened.TruncateReports(ctx, domain.Truncation{}))
	require.Zero(t, reopened.CountRows(ctx))
}

func TestStore_FailedCommitWritesNothing(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	err := s.Transactional(ctx, func(ctx context.Context) error {
		if err := s.AddEvent(ctx, &domain.Event{ID: "ev-1", UserID: "u1", Kind: domain.EventKindPayIn, Date: day(1)}); err != nil {
			return err
		}
		// json cannot encode a channel, so the commit fails after ev-1 was staged
		return s.stage(ctx, record{key: eventKeyPrefix + "bad", value: make(chan int)})
	})
	require.Error(t, err)

	_, err = s.FindEvent(ctx, "ev-1")
	require.True(t, errors.Is(err, domain.ErrRecordNotFound), "nothing is visible in memory")

	require.NoError(t, s.AddEvent(ctx, &domain.Event{ID: "ev-2", UserID: "u1", Kind: domain.EventKindPayIn, Date: day(2)}))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir)
	defer reopened.Close()

	_, err = reopened.FindEvent(ctx, "ev-1")
	require.True(t, errors.Is(err, domain.ErrRecordNotFound), "nothing reached the WAL")

	_, err = reopened.FindEvent(ctx, "ev-2")
	require.NoError(t, err, "later commits are unaffected")
}

func TestStore_BatchAssignsSequencesInOrder(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	require.NoError(t, s.AppendNext(ctx, &domain.ReportB{UserID: "u1", ExchangeID: "ex-1", DateTime: day(1)}))

	rows := []*domain.ReportB{
		{UserID: "u1", ExchangeID: "ex-1", DateTime: day(2)},
		{UserID: "u1", ExchangeID: "ex-2", DateTime: day(2)},
		{UserID: "u1", ExchangeID: "ex-1", DateTime: day(3)},
	}
	reports := []*domain.Report{
		{UserID: "u1", ExchangeID: "ex-1", Currency: domain.CurrencyEUR, Date: day(1)},
		{UserID: "u1", ExchangeID: "ex-1", Currency: domain.CurrencyBTC, Date: day(1)},
	}
	err := s.Transactional(ctx, func(ctx context.Context) error {
		for _, row := range rows {
			if err := s.AppendNext(ctx, row); err != nil {
				return err
			}
		}
		for _, report := range reports {
			if err := s.SaveReport(ctx, report); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, int64(2), rows[0].Number)
	require.Equal(t, int64(1), rows[1].Number)
	require.Equal(t, int64(3), rows[2].Number)
	require.Equal(t, int64(1), reports[0].ID)
	require.Equal(t, int64(2), reports[1].ID)
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir)
	defer reopened.Close()

	stored := reopened.Rows(ctx, "u1", "ex-1")
	require.Len(t, stored, 3)
	for i, row := range stored {
		require.Equal(t, int64(i+1), row.Number)
	}
}

func TestStore_ApplyRejectsUnknownKey(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	err := s.apply("mystery_1", []byte("{}"))
	require.ErrorContains(t, err, "mystery_1")
	var traced interface{ StackTrace() errors.StackTrace }
	require.ErrorAs(t, err, &traced)
}
