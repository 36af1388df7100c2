package models

import (
	"math"
	"time"
)

// Currency enumerates the supported billing currencies.
type Currency string

const (
	CurrencyCUP Currency = "CUP"
	CurrencyUSD Currency = "USD"
)

// ExchangeRateUSDToCUP is the fixed rate used for derived prices.
const ExchangeRateUSDToCUP = 120.0

// Tariff prices energy for a connector type during a daily time window.
type Tariff struct {
	ID            string     `db:"id" json:"id"`
	ConnectorType string     `db:"connector_type" json:"connector_type"`
	PricePerKWh   float64    `db:"price_per_kwh" json:"price_per_kwh"`
	StartTime     string     `db:"start_time" json:"start_time"`
	EndTime       string     `db:"end_time" json:"end_time"`
	Currency      Currency   `db:"currency" json:"currency"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// TariffView is a tariff plus its price in the other currency.
type TariffView struct {
	Tariff
	ConvertedPrice    float64  `json:"converted_price"`
	ConvertedCurrency Currency `json:"converted_currency"`
}

// ConvertPrice converts price from one supported currency to the other. Prices
// already in the target currency are returned unchanged.
func ConvertPrice(price float64, from Currency) (float64, Currency) {
	switch from {
	case CurrencyCUP:
		return price / ExchangeRateUSDToCUP, CurrencyUSD
	case CurrencyUSD:
		return price * ExchangeRateUSDToCUP, CurrencyCUP
	default:
		return price, from
	}
}

// View projects the tariff with its converted price rounded to four decimals.
func (t Tariff) View() TariffView {
	price, currency := ConvertPrice(t.PricePerKWh, t.Currency)
	return TariffView{
		Tariff:            t,
		ConvertedPrice:    math.Round(price*10000) / 10000,
		ConvertedCurrency: currency,
	}
}

// TariffFilter narrows tariff listings.
type TariffFilter struct {
	ConnectorType  string
	Currency       Currency
	IncludeDeleted bool
	PageRequest
}
