package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is a FIFO snapshot row produced upstream for one currency.
// FifoAKCrypto holds the amount of Currency in the FIFO stock.
type Report struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	ExchangeID    string          `json:"exchange_id"`
	Currency      string          `json:"currency"`
	Date          time.Time       `json:"date"`
	FifoAKCrypto  decimal.Decimal `json:"fifo_ak_crypto"`
	FifoAKEuroSum decimal.Decimal `json:"fifo_ak_euro_sum"`
	FifoRPLSum    decimal.Decimal `json:"fifo_rpl_sum"`
	RateReal      decimal.Decimal `json:"rate_real"`
}

// ReportB is one append-only row of the sequential holdings report.
type ReportB struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	ExchangeID string          `json:"exchange_id"`
	Number     int64           `json:"number"`
	DateTime   time.Time       `json:"date_time"`
	EuroStock  decimal.Decimal `json:"euro_stock"`
	EuroRPL    decimal.Decimal `json:"euro_rpl"`
	BtcStock   decimal.Decimal `json:"btc_stock"`
	BtcUPL     decimal.Decimal `json:"btc_upl"`
	FifoAkSum  decimal.Decimal `json:"fifo_ak_sum"`
	Rate       decimal.Decimal `json:"rate"`
}

// Truncation removes ReportB rows. An empty UserID removes every row; a nil
// Cutoff removes all rows of the user, otherwise rows dated at or after it.
type Truncation struct {
	UserID string     `json:"user_id,omitempty"`
	Cutoff *time.Time `json:"cutoff,omitempty"`
}

// Matches reports whether row falls under the truncation.
func (t Truncation) Matches(row ReportB) bool {
	if t.UserID == "" {
		return true
	}
	if row.UserID != t.UserID {
		return false
	}
	if t.Cutoff == nil {
		return true
	}
	return !row.DateTime.Before(*t.Cutoff)
}
