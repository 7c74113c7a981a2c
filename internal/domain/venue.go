package domain

import "github.com/shopspring/decimal"

// ExchangeKraken is the title of the Kraken venue.
const ExchangeKraken = "Kraken"

// Exchange is a trading venue a user reports on.
type Exchange struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Venue reconciles fee and net amount into the gross amount the venue bills.
type Venue interface {
	Name() string
	FullAmount(fee, realAmount, additionalFee decimal.Decimal, code TypeCode) decimal.Decimal
}

// KrakenVenue adds the fee on sells and deducts it otherwise. Additional fees are ignored.
type KrakenVenue struct{}

func (KrakenVenue) Name() string { return ExchangeKraken }

func (KrakenVenue) FullAmount(fee, realAmount, _ decimal.Decimal, code TypeCode) decimal.Decimal {
	if code == TypeSell {
		return Sum(fee, realAmount)
	}
	return Sub(realAmount, fee)
}

// StandardVenue folds a third-party fee into the venue fee before adding the net amount.
type StandardVenue struct {
	Title string
}

func (v StandardVenue) Name() string { return v.Title }

func (StandardVenue) FullAmount(fee, realAmount, additionalFee decimal.Decimal, code TypeCode) decimal.Decimal {
	fullFee := Sum(fee, additionalFee)
	if code == TypeBuy {
		fullFee = Sub(fee, additionalFee)
	}
	return Sum(fullFee, realAmount)
}

// VenueFor picks the reconciliation variant for the exchange.
func VenueFor(exchange Exchange) Venue {
	switch exchange.Title {
	case ExchangeKraken:
		return KrakenVenue{}
	default:
		return StandardVenue{Title: exchange.Title}
	}
}
