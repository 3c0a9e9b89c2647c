package api

import (
	"context"
	"time"

	"github.com/go-kit/log"

	rates "go-krypto-rates"
)

// loggingService decorates an api.Service with logging
type loggingService struct {
	logger log.Logger
	next   Service
}

// NewLoggingService returns a new instance of a logging Service
func NewLoggingService(logger log.Logger, s Service) Service {
	return &loggingService{
		next:   s,
		logger: logger,
	}
}

func (s *loggingService) LiveRate(ctx context.Context, market rates.Market, ttl time.Duration) (rate rates.Rate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "live_rate",
			"market", market,
			"ttl", ttl,
			"value", rate.Value,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.LiveRate(ctx, market, ttl)
}

func (s *loggingService) LiveRates(ctx context.Context, markets []rates.Market, ttl time.Duration) (result []rates.Rate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "live_rates",
			"markets", len(markets),
			"ttl", ttl,
			"rates", len(result),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.LiveRates(ctx, markets, ttl)
}

func (s *loggingService) HistoricalRateForDate(ctx context.Context, market rates.Market, date rates.Date) (rate rates.Rate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "historical_rate_for_date",
			"market", market,
			"date", rates.NormalizeDate(date),
			"value", rate.Value,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.HistoricalRateForDate(ctx, market, date)
}

func (s *loggingService) HistoricalRatesForDate(ctx context.Context, markets []rates.Market, date rates.Date) (result []rates.Rate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "historical_rates_for_date",
			"markets", len(markets),
			"date", rates.NormalizeDate(date),
			"rates", len(result),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.HistoricalRatesForDate(ctx, markets, date)
}

func (s *loggingService) HistoricalRatesForDates(ctx context.Context, markets []rates.Market, dates []rates.Date) (result []rates.Rate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "historical_rates_for_dates",
			"markets", len(markets),
			"dates", len(dates),
			"rates", len(result),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.HistoricalRatesForDates(ctx, markets, dates)
}

func (s *loggingService) HistoricalRatesByDate(ctx context.Context, marketDates []rates.MarketDate) (result []rates.Rate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "historical_rates_by_date",
			"market_dates", len(marketDates),
			"rates", len(result),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.HistoricalRatesByDate(ctx, marketDates)
}

func (s *loggingService) HistoricalRatesForTimeframe(ctx context.Context, markets []rates.Market, timeframe rates.Timeframe) (result []rates.Rate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "historical_rates_for_timeframe",
			"markets", len(markets),
			"start", boundOf(timeframe.Start),
			"end", boundOf(timeframe.End),
			"rates", len(result),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.HistoricalRatesForTimeframe(ctx, markets, timeframe)
}

func (s *loggingService) HistoricalRatesByTimeframe(ctx context.Context, marketTimeframes []rates.MarketTimeframe) (result []rates.Rate, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "historical_rates_by_timeframe",
			"market_timeframes", len(marketTimeframes),
			"rates", len(result),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.HistoricalRatesByTimeframe(ctx, marketTimeframes)
}

func (s *loggingService) Currencies(ctx context.Context) (currencies []rates.Currency, err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "currencies",
			"currencies", len(currencies),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Currencies(ctx)
}

func boundOf(date rates.Date) string {
	if date == nil {
		return ""
	}
	return rates.NormalizeDate(date)
}
