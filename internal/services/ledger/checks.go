package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/tally/internal/domain"
)

// CheckAmount requires fee + realAmount == amount.
func CheckAmount(amount, fee, realAmount decimal.Decimal) error {
	return expectEqual(amount, domain.Sum(fee, realAmount))
}

// CheckPayoutAmount requires fee + amount == realAmount.
func CheckPayoutAmount(amount, fee, realAmount decimal.Decimal) error {
	return expectEqual(realAmount, domain.Sum(fee, amount))
}

// CheckTransferAmount requires fee + amount == realAmount.
func CheckTransferAmount(amount, fee, realAmount decimal.Decimal) error {
	return expectEqual(realAmount, domain.Sum(fee, amount))
}

// CheckExchangeAmount reconciles the amounts with the rules of the exchange
// and requires the result to equal amount.
func CheckExchangeAmount(exchange domain.Exchange, amount, fee, realAmount, additionalFee decimal.Decimal, code domain.TypeCode) error {
	fullAmount := domain.VenueFor(exchange).FullAmount(fee, realAmount, additionalFee, code)

	return expectEqual(amount, fullAmount)
}

func expectEqual(declared, reconciled decimal.Decimal) error {
	if domain.Comp(reconciled, declared) != 0 {
		return domain.NewIncorrectFeeError(declared, reconciled)
	}
	return nil
}
