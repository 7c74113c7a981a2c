// Package domain defines the ledger and report records shared by services and stores.
package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TypeCode identifies a transaction kind.
type TypeCode string

const (
	TypePayIn           TypeCode = "PAY_IN"
	TypePayOut          TypeCode = "PAY_OUT"
	TypeBuy             TypeCode = "BUY"
	TypeSell            TypeCode = "SELL"
	TypeReceiveTransfer TypeCode = "RECEIVE_TRANSFER"
	TypeSendTransfer    TypeCode = "SEND_TRANSFER"
)

// TypeCodes lists every known transaction kind.
func TypeCodes() []TypeCode {
	return []TypeCode{TypePayIn, TypePayOut, TypeBuy, TypeSell, TypeReceiveTransfer, TypeSendTransfer}
}

// Valid reports whether c is a known code.
func (c TypeCode) Valid() bool {
	for _, known := range TypeCodes() {
		if c == known {
			return true
		}
	}
	return false
}

// TransactionType is the configured row for a transaction kind.
type TransactionType struct {
	ID    int64    `json:"id"`
	Code  TypeCode `json:"code"`
	Title string   `json:"title"`
}

// User owns accounts, events and report rows.
type User struct {
	ID string `json:"id"`
}

// Account holds funds of a single currency.
type Account struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Currency string `json:"currency"`
}

// EventKind tells what triggered an event.
type EventKind string

const (
	EventKindPayIn  EventKind = "pay_in"
	EventKindPayOut EventKind = "pay_out"
)

// Event marks that something happened for a user at a date.
type Event struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Kind   EventKind `json:"kind"`
	Date   time.Time `json:"date"`
}

// Transaction is a single money movement. Exactly one of SenderAccount and
// ReceiverAccount is set.
type Transaction struct {
	ID              string              `json:"id"`
	Amount          decimal.Decimal     `json:"amount"`
	RealAmount      decimal.Decimal     `json:"real_amount"`
	Fee             decimal.Decimal     `json:"fee"`
	Date            time.Time           `json:"date"`
	SenderAccount   *Account            `json:"sender_account,omitempty"`
	ReceiverAccount *Account            `json:"receiver_account,omitempty"`
	Type            *TransactionType    `json:"type,omitempty"`
	Event           Event               `json:"event"`
	RateNominal     decimal.NullDecimal `json:"rate_nominal"`
	TradingVolume   *int64              `json:"trading_volume,omitempty"`
}

// Account returns whichever side of the transaction is set.
func (t *Transaction) Account() *Account {
	if t.SenderAccount != nil {
		return t.SenderAccount
	}
	return t.ReceiverAccount
}

// Validate checks the sender/receiver exclusivity.
func (t *Transaction) Validate() error {
	if (t.SenderAccount == nil) == (t.ReceiverAccount == nil) {
		return errors.Errorf("transaction %s must have exactly one of sender and receiver account", t.ID)
	}
	return nil
}

// TypeCode returns the code of the attached type or an empty code.
func (t *Transaction) TypeCode() TypeCode {
	if t.Type == nil {
		return ""
	}
	return t.Type.Code
}

// String returns a human-readable string representation.
func (t *Transaction) String() string {
	code := t.TypeCode()
	if code == "" {
		code = TypeCode(t.Event.Kind)
	}
	return fmt.Sprintf("%s %s amount: %s fee: %s real: %s", t.ID, code, t.Amount.String(), t.Fee.String(), t.RealAmount.String())
}
