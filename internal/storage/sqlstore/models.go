package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tally/internal/domain"
)

const (
	sideSender   = "sender"
	sideReceiver = "receiver"
)

// decimals are stored as text so sqlite keeps every digit.

type transactionModel struct {
	ID              string          `gorm:"primaryKey;size:36"`
	Amount          decimal.Decimal `gorm:"type:text;not null"`
	RealAmount      decimal.Decimal `gorm:"type:text;not null"`
	Fee             decimal.Decimal `gorm:"type:text;not null"`
	Date            time.Time       `gorm:"not null;index"`
	Side            string          `gorm:"size:8;not null"`
	AccountID       string          `gorm:"size:64;not null;index"`
	AccountUserID   string          `gorm:"size:64;not null"`
	AccountCurrency string          `gorm:"size:8"`
	TypeID          *int64
	TypeCode        *string `gorm:"size:32"`
	TypeTitle       *string
	EventID         string              `gorm:"size:36;not null;index"`
	EventUserID     string              `gorm:"size:64"`
	EventKind       string              `gorm:"size:16"`
	EventDate       time.Time           `gorm:"not null"`
	RateNominal     decimal.NullDecimal `gorm:"type:text"`
	TradingVolume   *int64
	CreatedAt       time.Time
}

func (transactionModel) TableName() string { return "transactions" }

func toTransactionModel(tx *domain.Transaction) transactionModel {
	side, account := sideReceiver, tx.ReceiverAccount
	if tx.SenderAccount != nil {
		side, account = sideSender, tx.SenderAccount
	}

	m := transactionModel{
		ID:              tx.ID,
		Amount:          tx.Amount,
		RealAmount:      tx.RealAmount,
		Fee:             tx.Fee,
		Date:            tx.Date.UTC(),
		Side:            side,
		AccountID:       account.ID,
		AccountUserID:   account.UserID,
		AccountCurrency: account.Currency,
		EventID:         tx.Event.ID,
		EventUserID:     tx.Event.UserID,
		EventKind:       string(tx.Event.Kind),
		EventDate:       tx.Event.Date.UTC(),
		RateNominal:     tx.RateNominal,
		TradingVolume:   tx.TradingVolume,
	}
	if tx.Type != nil {
		id, code, title := tx.Type.ID, string(tx.Type.Code), tx.Type.Title
		m.TypeID, m.TypeCode, m.TypeTitle = &id, &code, &title
	}

	return m
}

func (m transactionModel) toDomain() domain.Transaction {
	account := &domain.Account{ID: m.AccountID, UserID: m.AccountUserID, Currency: m.AccountCurrency}
	tx := domain.Transaction{
		ID:            m.ID,
		Amount:        m.Amount,
		RealAmount:    m.RealAmount,
		Fee:           m.Fee,
		Date:          m.Date.UTC(),
		Event:         domain.Event{ID: m.EventID, UserID: m.EventUserID, Kind: domain.EventKind(m.EventKind), Date: m.EventDate.UTC()},
		RateNominal:   m.RateNominal,
		TradingVolume: m.TradingVolume,
	}
	if m.Side == sideSender {
		tx.SenderAccount = account
	} else {
		tx.ReceiverAccount = account
	}
	if m.TypeCode != nil {
		tx.Type = &domain.TransactionType{Code: domain.TypeCode(*m.TypeCode)}
		if m.TypeID != nil {
			tx.Type.ID = *m.TypeID
		}
		if m.TypeTitle != nil {
			tx.Type.Title = *m.TypeTitle
		}
	}

	return tx
}

type eventModel struct {
	ID     string    `gorm:"primaryKey;size:36"`
	UserID string    `gorm:"size:64;not null;index"`
	Kind   string    `gorm:"size:16;not null"`
	Date   time.Time `gorm:"not null"`
}

func (eventModel) TableName() string { return "events" }

func (m eventModel) toDomain() domain.Event {
	return domain.Event{ID: m.ID, UserID: m.UserID, Kind: domain.EventKind(m.Kind), Date: m.Date.UTC()}
}

type transactionTypeModel struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	Code  string `gorm:"size:32;not null;uniqueIndex"`
	Title string `gorm:"not null"`
}

func (transactionTypeModel) TableName() string { return "transaction_types" }

type exchangeModel struct {
	ID    string `gorm:"primaryKey;size:64"`
	Title string `gorm:"not null"`
}

func (exchangeModel) TableName() string { return "exchanges" }

type reportModel struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	UserID        string          `gorm:"size:64;not null;index:idx_report_lookup,priority:1"`
	ExchangeID    string          `gorm:"size:64;not null;index:idx_report_lookup,priority:2"`
	Currency      string          `gorm:"size:8;not null"`
	Date          time.Time       `gorm:"not null;index:idx_report_lookup,priority:3"`
	FifoAKCrypto  decimal.Decimal `gorm:"type:text;not null"`
	FifoAKEuroSum decimal.Decimal `gorm:"type:text;not null"`
	FifoRPLSum    decimal.Decimal `gorm:"type:text;not null"`
	RateReal      decimal.Decimal `gorm:"type:text;not null"`
}

func (reportModel) TableName() string { return "reports" }

func toReportModel(r *domain.Report) reportModel {
	return reportModel{
		UserID:        r.UserID,
		ExchangeID:    r.ExchangeID,
		Currency:      r.Currency,
		Date:          r.Date.UTC(),
		FifoAKCrypto:  r.FifoAKCrypto,
		FifoAKEuroSum: r.FifoAKEuroSum,
		FifoRPLSum:    r.FifoRPLSum,
		RateReal:      r.RateReal,
	}
}

func (m reportModel) toDomain() domain.Report {
	return domain.Report{
		ID:            m.ID,
		UserID:        m.UserID,
		ExchangeID:    m.ExchangeID,
		Currency:      m.Currency,
		Date:          m.Date.UTC(),
		FifoAKCrypto:  m.FifoAKCrypto,
		FifoAKEuroSum: m.FifoAKEuroSum,
		FifoRPLSum:    m.FifoRPLSum,
		RateReal:      m.RateReal,
	}
}

// reportRowModel is a ReportB row. The unique index keeps numbers distinct per
// pair even if two writers race past the MAX(number) read.
type reportRowModel struct {
	ID         string          `gorm:"primaryKey;size:36"`
	UserID     string          `gorm:"size:64;not null;uniqueIndex:idx_report_b_number,priority:1"`
	ExchangeID string          `gorm:"size:64;not null;uniqueIndex:idx_report_b_number,priority:2"`
	Number     int64           `gorm:"not null;uniqueIndex:idx_report_b_number,priority:3"`
	DateTime   time.Time       `gorm:"not null;index"`
	EuroStock  decimal.Decimal `gorm:"type:text;not null"`
	EuroRPL    decimal.Decimal `gorm:"type:text;not null"`
	BtcStock   decimal.Decimal `gorm:"type:text;not null"`
	BtcUPL     decimal.Decimal `gorm:"type:text;not null"`
	FifoAkSum  decimal.Decimal `gorm:"type:text;not null"`
	Rate       decimal.Decimal `gorm:"type:text;not null"`
}

func (reportRowModel) TableName() string { return "report_b" }

func toReportRowModel(r *domain.ReportB) reportRowModel {
	return reportRowModel{
		ID:         r.ID,
		UserID:     r.UserID,
		ExchangeID: r.ExchangeID,
		Number:     r.Number,
		DateTime:   r.DateTime.UTC(),
		EuroStock:  r.EuroStock,
		EuroRPL:    r.EuroRPL,
		BtcStock:   r.BtcStock,
		BtcUPL:     r.BtcUPL,
		FifoAkSum:  r.FifoAkSum,
		Rate:       r.Rate,
	}
}

func (m reportRowModel) toDomain() domain.ReportB {
	return domain.ReportB{
		ID:         m.ID,
		UserID:     m.UserID,
		ExchangeID: m.ExchangeID,
		Number:     m.Number,
		DateTime:   m.DateTime.UTC(),
		EuroStock:  m.EuroStock,
		EuroRPL:    m.EuroRPL,
		BtcStock:   m.BtcStock,
		BtcUPL:     m.BtcUPL,
		FifoAkSum:  m.FifoAkSum,
		Rate:       m.Rate,
	}
}
