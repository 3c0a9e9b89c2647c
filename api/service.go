// Package api issues the queries of the krypto-rates service and decodes their results.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rates "go-krypto-rates"
	"go-krypto-rates/graphql"
)

// Service the queries of the krypto-rates service.
//
// Markets whose base and quote are the same currency are never sent: their rate is 1 and is
// synthesized with rates.ParitySource, after any rates returned by the service.
type Service interface {
	// LiveRate the current rate of a market. A zero ttl leaves the staleness to the service.
	LiveRate(ctx context.Context, market rates.Market, ttl time.Duration) (rates.Rate, error)
	// LiveRates the current rates of several markets.
	LiveRates(ctx context.Context, markets []rates.Market, ttl time.Duration) ([]rates.Rate, error)
	// HistoricalRateForDate the rate of a market at a date.
	HistoricalRateForDate(ctx context.Context, market rates.Market, date rates.Date) (rates.Rate, error)
	// HistoricalRatesForDate the rates of several markets at one date.
	HistoricalRatesForDate(ctx context.Context, markets []rates.Market, date rates.Date) ([]rates.Rate, error)
	// HistoricalRatesForDates the rates of every market at every date.
	HistoricalRatesForDates(ctx context.Context, markets []rates.Market, dates []rates.Date) ([]rates.Rate, error)
	// HistoricalRatesByDate the rate of each market at its own date.
	HistoricalRatesByDate(ctx context.Context, marketDates []rates.MarketDate) ([]rates.Rate, error)
	// HistoricalRatesForTimeframe the rates of every market for each day of a timeframe.
	HistoricalRatesForTimeframe(ctx context.Context, markets []rates.Market, timeframe rates.Timeframe) ([]rates.Rate, error)
	// HistoricalRatesByTimeframe the rates of each market over its own timeframe.
	HistoricalRatesByTimeframe(ctx context.Context, marketTimeframes []rates.MarketTimeframe) ([]rates.Rate, error)
	// Currencies the currency symbols known to the service.
	Currencies(ctx context.Context) ([]rates.Currency, error)
}

// ErrTimeframeStart is returned for a timeframe without a start date.
var ErrTimeframeStart = errors.New("timeframe start is required")

// ServiceOption configures a Service.
type ServiceOption func(*service)

// WithClock sets the clock used to date parity rates of live queries.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		s.now = now
	}
}

// service krypto-rates queries over a graphql.Transport
type service struct {
	// transport sends the queries, it holds no state of ours
	transport graphql.Transport

	now func() time.Time
}

// NewService constructs a valid Service.
func NewService(transport graphql.Transport, options ...ServiceOption) Service {
	s := &service{
		transport: transport,
		now:       time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

type marketDateInput struct {
	Market rates.Market `json:"market"`
	Date   string       `json:"date"`
}

type timeframeInput struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

type marketTimeframeInput struct {
	Market    rates.Market   `json:"market"`
	Timeframe timeframeInput `json:"timeframe"`
}

func (s *service) LiveRate(ctx context.Context, market rates.Market, ttl time.Duration) (rates.Rate, error) {
	if market.IsParity() {
		return s.liveParity(market), nil
	}
	var rate rates.Rate
	err := s.execute(ctx, LiveRateQuery, map[string]any{
		"market": market,
		"ttl":    ttlSeconds(ttl),
	}, &rate)
	return rate, err
}

func (s *service) LiveRates(ctx context.Context, markets []rates.Market, ttl time.Duration) ([]rates.Rate, error) {
	remote, parity := splitParity(markets)
	fetched, err := s.executeRates(ctx, LiveRatesQuery, len(remote), map[string]any{
		"markets": remote,
		"ttl":     ttlSeconds(ttl),
	})
	if err != nil {
		return nil, err
	}
	for _, market := range parity {
		fetched = append(fetched, s.liveParity(market))
	}
	return fetched, nil
}

func (s *service) HistoricalRateForDate(ctx context.Context, market rates.Market, date rates.Date) (rates.Rate, error) {
	normalized := rates.NormalizeDate(date)
	if market.IsParity() {
		return s.parity(market, normalized), nil
	}
	var rate rates.Rate
	err := s.execute(ctx, HistoricalRateForDateQuery, map[string]any{
		"market": market,
		"date":   normalized,
	}, &rate)
	return rate, err
}

func (s *service) HistoricalRatesForDate(ctx context.Context, markets []rates.Market, date rates.Date) ([]rates.Rate, error) {
	normalized := rates.NormalizeDate(date)
	remote, parity := splitParity(markets)
	fetched, err := s.executeRates(ctx, HistoricalRatesForDateQuery, len(remote), map[string]any{
		"markets": remote,
		"date":    normalized,
	})
	if err != nil {
		return nil, err
	}
	for _, market := range parity {
		fetched = append(fetched, s.parity(market, normalized))
	}
	return fetched, nil
}

func (s *service) HistoricalRatesForDates(ctx context.Context, markets []rates.Market, dates []rates.Date) ([]rates.Rate, error) {
	normalized := rates.NormalizeDates(dates)
	remote, parity := splitParity(markets)
	fetched, err := s.executeRates(ctx, HistoricalRatesForDatesQuery, len(remote), map[string]any{
		"markets": remote,
		"dates":   normalized,
	})
	if err != nil {
		return nil, err
	}
	for _, market := range parity {
		for _, date := range normalized {
			fetched = append(fetched, s.parity(market, date))
		}
	}
	return fetched, nil
}

func (s *service) HistoricalRatesByDate(ctx context.Context, marketDates []rates.MarketDate) ([]rates.Rate, error) {
	var remote []marketDateInput
	var parity []rates.Rate
	for _, item := range marketDates {
		date := rates.NormalizeDate(item.Date)
		if item.Market.IsParity() {
			parity = append(parity, s.parity(item.Market, date))
			continue
		}
		remote = append(remote, marketDateInput{Market: item.Market, Date: date})
	}
	fetched, err := s.executeRates(ctx, HistoricalRatesByDateQuery, len(remote), map[string]any{
		"marketDates": remote,
	})
	if err != nil {
		return nil, err
	}
	return append(fetched, parity...), nil
}

func (s *service) HistoricalRatesForTimeframe(ctx context.Context, markets []rates.Market, timeframe rates.Timeframe) ([]rates.Rate, error) {
	if timeframe.Start == nil {
		return nil, ErrTimeframeStart
	}
	remote, parity := splitParity(markets)
	fetched, err := s.executeRates(ctx, HistoricalRatesForTimeframeQuery, len(remote), map[string]any{
		"markets":   remote,
		"timeframe": toTimeframeInput(timeframe),
	})
	if err != nil {
		return nil, err
	}
	if len(parity) == 0 {
		return fetched, nil
	}
	dates := timeframeDates(timeframe, fetched)
	for _, market := range parity {
		for _, date := range dates {
			fetched = append(fetched, s.parity(market, date))
		}
	}
	return fetched, nil
}

func (s *service) HistoricalRatesByTimeframe(ctx context.Context, marketTimeframes []rates.MarketTimeframe) ([]rates.Rate, error) {
	var remote []marketTimeframeInput
	var parity []rates.MarketTimeframe
	for _, item := range marketTimeframes {
		if item.Timeframe.Start == nil {
			return nil, fmt.Errorf("market %s: %w", item.Market, ErrTimeframeStart)
		}
		if item.Market.IsParity() {
			parity = append(parity, item)
			continue
		}
		remote = append(remote, marketTimeframeInput{Market: item.Market, Timeframe: toTimeframeInput(item.Timeframe)})
	}
	fetched, err := s.executeRates(ctx, HistoricalRatesByTimeframeQuery, len(remote), map[string]any{
		"marketTimeframes": remote,
	})
	if err != nil {
		return nil, err
	}
	remoteCount := len(fetched)
	for _, item := range parity {
		for _, date := range timeframeDates(item.Timeframe, fetched[:remoteCount]) {
			fetched = append(fetched, s.parity(item.Market, date))
		}
	}
	return fetched, nil
}

func (s *service) Currencies(ctx context.Context) ([]rates.Currency, error) {
	var currencies []rates.Currency
	err := s.execute(ctx, CurrenciesQuery, nil, &currencies)
	return currencies, err
}

// executeRates runs a batched query, skipping the round trip when nothing is left to ask.
func (s *service) executeRates(ctx context.Context, query Query, count int, variables map[string]any) ([]rates.Rate, error) {
	if count == 0 {
		return nil, nil
	}
	var fetched []rates.Rate
	if err := s.execute(ctx, query, variables, &fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}

// execute sends a query and decodes its result field into out.
func (s *service) execute(ctx context.Context, query Query, variables map[string]any, out any) error {
	response, err := s.transport.Send(ctx, graphql.Request{
		Query:         query.Document(),
		OperationName: query.Name,
		Variables:     variables,
	})
	if err != nil {
		return fmt.Errorf("query %s: %w", query.Name, err)
	}
	if len(response.Errors) > 0 {
		return &rates.RemoteQueryError{Message: response.Errors[0].Message}
	}
	raw, ok := response.Data[query.Field]
	if !ok || string(raw) == "null" {
		return &rates.MalformedResponseError{Field: query.Field, Reason: "missing from data"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		var malformed *rates.MalformedResponseError
		if errors.As(err, &malformed) {
			return err
		}
		return &rates.MalformedResponseError{Field: query.Field, Reason: err.Error()}
	}
	return nil
}

func (s *service) liveParity(market rates.Market) rates.Rate {
	now := s.now().UTC()
	return rates.Parity(market, rates.DateOf(now).String(), now)
}

// parity dates the parity rate at midnight UTC of date when it parses.
func (s *service) parity(market rates.Market, date string) rates.Rate {
	ts := s.now().UTC()
	if d, err := rates.ParseDate(date); err == nil {
		ts = time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	}
	return rates.Parity(market, date, ts)
}

func splitParity(markets []rates.Market) (remote []rates.Market, parity []rates.Market) {
	for _, market := range markets {
		if market.IsParity() {
			parity = append(parity, market)
		} else {
			remote = append(remote, market)
		}
	}
	return remote, parity
}

// timeframeDates lists the dates parity rates are produced for: every day of the timeframe
// when both bounds are calendar dates, otherwise the dates the service answered with that
// fall inside the timeframe, otherwise just the start.
func timeframeDates(timeframe rates.Timeframe, fetched []rates.Rate) []string {
	if dates, ok := rates.DateRange(timeframe); ok {
		return dates
	}
	seen := map[string]bool{}
	var dates []string
	for _, rate := range fetched {
		if !seen[rate.Date] && inTimeframe(rate.Date, timeframe) {
			seen[rate.Date] = true
			dates = append(dates, rate.Date)
		}
	}
	if len(dates) == 0 && timeframe.Start != nil {
		dates = append(dates, rates.NormalizeDate(timeframe.Start))
	}
	return dates
}

// inTimeframe checks date against the bounds of timeframe that parse as calendar dates.
func inTimeframe(date string, timeframe rates.Timeframe) bool {
	start, hasStart := calendarBound(timeframe.Start)
	end, hasEnd := calendarBound(timeframe.End)
	if !hasStart && !hasEnd {
		return true
	}
	d, err := rates.ParseDate(date)
	if err != nil {
		return false
	}
	return !(hasStart && start.After(d)) && !(hasEnd && d.After(end))
}

func calendarBound(date rates.Date) (rates.CalendarDate, bool) {
	if date == nil {
		return rates.CalendarDate{}, false
	}
	d, err := rates.ParseDate(rates.NormalizeDate(date))
	return d, err == nil
}

func toTimeframeInput(timeframe rates.Timeframe) timeframeInput {
	input := timeframeInput{Start: rates.NormalizeDate(timeframe.Start)}
	if timeframe.End != nil {
		input.End = rates.NormalizeDate(timeframe.End)
	}
	return input
}

// ttlSeconds is nil for a zero ttl so the service applies its default. Other ttls are
// rounded up to whole seconds, the service rejects a ttl of 0.
func ttlSeconds(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return int((ttl + time.Second - 1) / time.Second)
}
