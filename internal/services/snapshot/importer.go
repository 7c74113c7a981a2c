// Package snapshot imports the upstream exchange reports the sequential report is computed from.
package snapshot

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/tally/internal/domain"
)

const dateLayout = "2006-01-02"

type repository interface {
	Transactional(ctx context.Context, fn func(ctx context.Context) error) error
	SaveExchange(ctx context.Context, exchange domain.Exchange) error
	SaveReport(ctx context.Context, report *domain.Report) error
}

// File is the yaml form of an import.
//
//	exchanges:
//	  - id: ex-kraken
//	    title: Kraken
//	reports:
//	  - user_id: user-1
//	    exchange_id: ex-kraken
//	    currency: BTC
//	    date: 2024-01-02
//	    fifo_ak_crypto: "0.5"
//	    fifo_ak_euro_sum: "15000"
//	    fifo_rpl_sum: "250"
//	    rate_real: "40000"
type File struct {
	Exchanges []ExchangeRow `yaml:"exchanges"`
	Reports   []ReportRow   `yaml:"reports"`
}

type ExchangeRow struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// ReportRow keeps amounts as strings so no precision is lost to floats.
type ReportRow struct {
	UserID        string `yaml:"user_id"`
	ExchangeID    string `yaml:"exchange_id"`
	Currency      string `yaml:"currency"`
	Date          string `yaml:"date"`
	FifoAKCrypto  string `yaml:"fifo_ak_crypto,omitempty"`
	FifoAKEuroSum string `yaml:"fifo_ak_euro_sum,omitempty"`
	FifoRPLSum    string `yaml:"fifo_rpl_sum,omitempty"`
	RateReal      string `yaml:"rate_real,omitempty"`
}

// Result counts what an import stored.
type Result struct {
	Exchanges int
	Reports   int
}

// Importer stores exchanges and report snapshots.
type Importer struct {
	l    *zap.Logger
	repo repository
}

// NewImporter returns an importer writing to repo.
func NewImporter(l *zap.Logger, repo repository) (*Importer, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if repo == nil {
		return nil, errors.New("snapshot repository is required")
	}

	return &Importer{l: l, repo: repo}, nil
}

// ImportFile reads a yaml import from path and stores it.
func (i *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, errors.Wrapf(err, "open snapshot file %s", path)
	}
	defer f.Close()

	res, err := i.Import(ctx, f)
	if err != nil {
		return Result{}, errors.Wrapf(err, "import %s", path)
	}
	return res, nil
}

// Import decodes a yaml import from r and stores it in one unit of work.
// Nothing is stored when any row is invalid.
func (i *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Result{}, errors.Wrap(err, "decode snapshot yaml")
	}

	exchanges := make([]domain.Exchange, 0, len(file.Exchanges))
	for n, row := range file.Exchanges {
		if row.ID == "" || row.Title == "" {
			return Result{}, errors.Errorf("exchange #%d: id and title are required", n+1)
		}
		exchanges = append(exchanges, domain.Exchange{ID: row.ID, Title: row.Title})
	}

	reports := make([]*domain.Report, 0, len(file.Reports))
	for n, row := range file.Reports {
		report, err := row.toReport()
		if err != nil {
			return Result{}, errors.Wrapf(err, "report #%d", n+1)
		}
		reports = append(reports, report)
	}

	err := i.repo.Transactional(ctx, func(ctx context.Context) error {
		for _, exchange := range exchanges {
			if err := i.SaveExchange(ctx, exchange); err != nil {
				return err
			}
		}
		for _, report := range reports {
			if err := i.SaveReport(ctx, report); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	i.l.Info("snapshots imported",
		zap.Int("exchanges", len(exchanges)),
		zap.Int("reports", len(reports)))

	return Result{Exchanges: len(exchanges), Reports: len(reports)}, nil
}

// SaveExchange stores or replaces the exchange.
func (i *Importer) SaveExchange(ctx context.Context, exchange domain.Exchange) error {
	if exchange.ID == "" {
		return errors.New("exchange id is required")
	}
	if err := i.repo.SaveExchange(ctx, exchange); err != nil {
		return errors.Wrapf(err, "save exchange %s", exchange.ID)
	}
	return nil
}

// SaveReport stores one upstream report snapshot.
func (i *Importer) SaveReport(ctx context.Context, report *domain.Report) error {
	if err := validateReport(report); err != nil {
		return err
	}
	if err := i.repo.SaveReport(ctx, report); err != nil {
		return errors.Wrapf(err, "save %s report of user %s", report.Currency, report.UserID)
	}

	i.l.Debug("report snapshot saved",
		zap.String("user", report.UserID),
		zap.String("exchange", report.ExchangeID),
		zap.String("currency", report.Currency),
		zap.Time("date", report.Date))

	return nil
}

func validateReport(report *domain.Report) error {
	switch {
	case report == nil:
		return errors.New("report is required")
	case report.UserID == "" || report.ExchangeID == "":
		return errors.New("report user and exchange are required")
	case report.Currency != domain.CurrencyEUR && report.Currency != domain.CurrencyBTC:
		return errors.Errorf("unsupported report currency %q", report.Currency)
	case report.Date.IsZero():
		return errors.New("report date is required")
	}
	return nil
}

func (row ReportRow) toReport() (*domain.Report, error) {
	date, err := parseDate(row.Date)
	if err != nil {
		return nil, err
	}

	report := &domain.Report{
		UserID:     row.UserID,
		ExchangeID: row.ExchangeID,
		Currency:   strings.ToUpper(strings.TrimSpace(row.Currency)),
		Date:       date,
	}

	for _, amount := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{row.FifoAKCrypto, &report.FifoAKCrypto},
		{row.FifoAKEuroSum, &report.FifoAKEuroSum},
		{row.FifoRPLSum, &report.FifoRPLSum},
		{row.RateReal, &report.RateReal},
	} {
		if amount.raw == "" {
			continue
		}
		v, err := domain.ParseAmount(amount.raw)
		if err != nil {
			return nil, err
		}
		*amount.dst = v
	}

	return report, validateReport(report)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q, use YYYY-MM-DD or RFC 3339", s)
	}
	return d.UTC(), nil
}
