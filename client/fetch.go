package client

import (
	"context"

	rates "go-krypto-rates"
)

// Fetch binds the markets of a query whose temporal scope is already chosen. R is
// rates.MoneyDict for live queries and rates.DateMoneyDict for historical ones.
//
// A Fetch is immutable and may be shared: each terminal call reads the inverse flag
// of the value it is invoked on.
type Fetch[R any] struct {
	fetch   func(ctx context.Context, markets []rates.Market) ([]rates.Rate, error)
	fold    func(fetched []rates.Rate, key rates.KeyFunc, inverse bool) (R, error)
	inverse bool
}

// Inverse toggles the inversion once more.
func (f Fetch[R]) Inverse() Fetch[R] {
	f.inverse = !f.inverse
	return f
}

// From fixes the base currency, To then names the quotes.
func (f Fetch[R]) From(base rates.Currency) BaseFetch[R] {
	return BaseFetch[R]{fetch: f, base: base}
}

// To fixes the quote currency, From then names the bases.
func (f Fetch[R]) To(quote rates.Currency) QuoteFetch[R] {
	return QuoteFetch[R]{fetch: f, quote: quote}
}

// Markets queries markets, keyed by base+quote.
func (f Fetch[R]) Markets(ctx context.Context, markets ...rates.Market) (R, error) {
	return f.run(ctx, markets, rates.ByMarket)
}

func (f Fetch[R]) run(ctx context.Context, markets []rates.Market, key rates.KeyFunc) (R, error) {
	inverse := f.inverse
	fetched, err := f.fetch(ctx, markets)
	if err != nil {
		var zero R
		return zero, err
	}
	return f.fold(fetched, key, inverse)
}

// BaseFetch a Fetch with its base currency bound.
type BaseFetch[R any] struct {
	fetch Fetch[R]
	base  rates.Currency
}

// Inverse toggles the inversion once more.
func (b BaseFetch[R]) Inverse() BaseFetch[R] {
	b.fetch = b.fetch.Inverse()
	return b
}

// To queries base against each of quotes, keyed by quote.
func (b BaseFetch[R]) To(ctx context.Context, quotes ...rates.Currency) (R, error) {
	markets := make([]rates.Market, 0, len(quotes))
	for _, quote := range quotes {
		markets = append(markets, rates.Market{Base: b.base, Quote: quote})
	}
	return b.fetch.run(ctx, markets, rates.ByQuote)
}

// QuoteFetch a Fetch with its quote currency bound.
type QuoteFetch[R any] struct {
	fetch Fetch[R]
	quote rates.Currency
}

// Inverse toggles the inversion once more.
func (q QuoteFetch[R]) Inverse() QuoteFetch[R] {
	q.fetch = q.fetch.Inverse()
	return q
}

// From queries each of bases against quote, keyed by base.
func (q QuoteFetch[R]) From(ctx context.Context, bases ...rates.Currency) (R, error) {
	markets := make([]rates.Market, 0, len(bases))
	for _, base := range bases {
		markets = append(markets, rates.Market{Base: base, Quote: q.quote})
	}
	return q.fetch.run(ctx, markets, rates.ByBase)
}
