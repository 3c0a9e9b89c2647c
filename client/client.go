// Package client is the fluent entry point of the krypto-rates SDK.
//
//	kr := client.New(api.NewService(graphql.NewClient(url)))
//	eur, err := kr.Live().From("USD").To(ctx, "EUR", "GBP")
//	usd, err := kr.Inverse().Historical(rates.DateString("2024-03-01")).To("USD").From(ctx, "BTC", "ETH")
package client

import (
	"context"
	"time"

	rates "go-krypto-rates"
	"go-krypto-rates/api"
)

// KryptoRates selects the temporal scope of a query. It is a value: Inverse and LiveTTL return
// modified copies and never change the receiver.
type KryptoRates struct {
	service api.Service
	inverse bool
	ttl     time.Duration
}

// New returns a KryptoRates querying service.
func New(service api.Service) KryptoRates {
	return KryptoRates{service: service}
}

// Inverse toggles the inversion of the amounts folded by the returned copy.
func (k KryptoRates) Inverse() KryptoRates {
	k.inverse = !k.inverse
	return k
}

// LiveTTL sets how stale, at most, the live rates may be. Zero leaves it to the service.
func (k KryptoRates) LiveTTL(ttl time.Duration) KryptoRates {
	k.ttl = ttl
	return k
}

// Live current rates.
func (k KryptoRates) Live() Fetch[rates.MoneyDict] {
	service, ttl := k.service, k.ttl
	return Fetch[rates.MoneyDict]{
		fetch: func(ctx context.Context, markets []rates.Market) ([]rates.Rate, error) {
			return service.LiveRates(ctx, markets, ttl)
		},
		fold:    rates.ToMoneyDict,
		inverse: k.inverse,
	}
}

// Historical rates at each of dates, grouped by date.
func (k KryptoRates) Historical(dates ...rates.Date) Fetch[rates.DateMoneyDict] {
	service := k.service
	fetch := func(ctx context.Context, markets []rates.Market) ([]rates.Rate, error) {
		return service.HistoricalRatesForDates(ctx, markets, dates)
	}
	if len(dates) == 1 {
		fetch = func(ctx context.Context, markets []rates.Market) ([]rates.Rate, error) {
			return service.HistoricalRatesForDate(ctx, markets, dates[0])
		}
	}
	return Fetch[rates.DateMoneyDict]{
		fetch:   fetch,
		fold:    rates.ToDateMoneyDict,
		inverse: k.inverse,
	}
}

// Timeframe historical rates of every day in timeframe, grouped by date.
func (k KryptoRates) Timeframe(timeframe rates.Timeframe) Fetch[rates.DateMoneyDict] {
	service := k.service
	return Fetch[rates.DateMoneyDict]{
		fetch: func(ctx context.Context, markets []rates.Market) ([]rates.Rate, error) {
			return service.HistoricalRatesForTimeframe(ctx, markets, timeframe)
		},
		fold:    rates.ToDateMoneyDict,
		inverse: k.inverse,
	}
}

// MarketDates the rate of each market at its own date, grouped by date and keyed by base+quote.
func (k KryptoRates) MarketDates(ctx context.Context, marketDates ...rates.MarketDate) (rates.DateMoneyDict, error) {
	fetched, err := k.service.HistoricalRatesByDate(ctx, marketDates)
	if err != nil {
		return nil, err
	}
	return rates.ToDateMoneyDict(fetched, rates.ByMarket, k.inverse)
}

// MarketTimeframes the rates of each market over its own timeframe, grouped by date and keyed
// by base+quote.
func (k KryptoRates) MarketTimeframes(ctx context.Context, marketTimeframes ...rates.MarketTimeframe) (rates.DateMoneyDict, error) {
	fetched, err := k.service.HistoricalRatesByTimeframe(ctx, marketTimeframes)
	if err != nil {
		return nil, err
	}
	return rates.ToDateMoneyDict(fetched, rates.ByMarket, k.inverse)
}
