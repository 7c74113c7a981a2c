package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeFeeAndRealAmountNotCorrect ErrorCode = "FEE_AND_REAL_AMOUNT_NOT_CORRECT"
	CodeTransactionTypeNotFound    ErrorCode = "TRANSACTION_TYPE_NOT_FOUND"
	CodeReportNotFound             ErrorCode = "REPORT_NOT_FOUND"
)

// ErrRecordNotFound is returned by stores when no row matches a lookup.
var ErrRecordNotFound = errors.New("record not found")

// IncorrectFeeError reports a failed fee reconciliation.
type IncorrectFeeError struct {
	Code ErrorCode
	// Amount is the declared gross amount.
	Amount decimal.Decimal
	// Reconciled is what fee and real amount add up to.
	Reconciled decimal.Decimal
}

// NewIncorrectFeeError builds the error for a declared amount that does not match.
func NewIncorrectFeeError(amount, reconciled decimal.Decimal) *IncorrectFeeError {
	return &IncorrectFeeError{
		Code:       CodeFeeAndRealAmountNotCorrect,
		Amount:     amount,
		Reconciled: reconciled,
	}
}

func (e *IncorrectFeeError) Error() string {
	return fmt.Sprintf("%s: declared %s, reconciled %s", e.Code, e.Amount.String(), e.Reconciled.String())
}

// NotFoundError reports a missing configured or upstream record.
type NotFoundError struct {
	Code ErrorCode
	Key  string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsIncorrectFee reports whether err carries an IncorrectFeeError.
func IsIncorrectFee(err error) bool {
	var target *IncorrectFeeError
	return errors.As(err, &target)
}

// IsNotFound reports whether err carries a NotFoundError or a bare store miss.
func IsNotFound(err error) bool {
	var target *NotFoundError
	if errors.As(err, &target) {
		return true
	}
	return errors.Is(err, ErrRecordNotFound)
}
