package api

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	rates "go-krypto-rates"
)

// Metrics collectors of an instrumented Service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RatesTotal      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "krypto_rates",
				Name:      "requests_total",
				Help:      "Total number of krypto-rates queries",
			},
			[]string{"method", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "krypto_rates",
				Name:      "request_duration_seconds",
				Help:      "krypto-rates query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "krypto_rates",
				Name:      "rates_total",
				Help:      "Total number of rates returned",
			},
			[]string{"method"},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.RatesTotal)
	return m
}

// instrumentingService decorates an api.Service with prometheus metrics
type instrumentingService struct {
	metrics *Metrics
	next    Service
}

// NewInstrumentingService returns a new instance of an instrumenting Service
func NewInstrumentingService(metrics *Metrics, s Service) Service {
	return &instrumentingService{
		metrics: metrics,
		next:    s,
	}
}

func (s *instrumentingService) observe(method string, begin time.Time, count int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.RequestsTotal.WithLabelValues(method, outcome).Inc()
	s.metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(begin).Seconds())
	s.metrics.RatesTotal.WithLabelValues(method).Add(float64(count))
}

func (s *instrumentingService) LiveRate(ctx context.Context, market rates.Market, ttl time.Duration) (rate rates.Rate, err error) {
	defer func(begin time.Time) { s.observe("live_rate", begin, one(err), err) }(time.Now())
	return s.next.LiveRate(ctx, market, ttl)
}

func (s *instrumentingService) LiveRates(ctx context.Context, markets []rates.Market, ttl time.Duration) (result []rates.Rate, err error) {
	defer func(begin time.Time) { s.observe("live_rates", begin, len(result), err) }(time.Now())
	return s.next.LiveRates(ctx, markets, ttl)
}

func (s *instrumentingService) HistoricalRateForDate(ctx context.Context, market rates.Market, date rates.Date) (rate rates.Rate, err error) {
	defer func(begin time.Time) { s.observe("historical_rate_for_date", begin, one(err), err) }(time.Now())
	return s.next.HistoricalRateForDate(ctx, market, date)
}

func (s *instrumentingService) HistoricalRatesForDate(ctx context.Context, markets []rates.Market, date rates.Date) (result []rates.Rate, err error) {
	defer func(begin time.Time) { s.observe("historical_rates_for_date", begin, len(result), err) }(time.Now())
	return s.next.HistoricalRatesForDate(ctx, markets, date)
}

func (s *instrumentingService) HistoricalRatesForDates(ctx context.Context, markets []rates.Market, dates []rates.Date) (result []rates.Rate, err error) {
	defer func(begin time.Time) { s.observe("historical_rates_for_dates", begin, len(result), err) }(time.Now())
	return s.next.HistoricalRatesForDates(ctx, markets, dates)
}

func (s *instrumentingService) HistoricalRatesByDate(ctx context.Context, marketDates []rates.MarketDate) (result []rates.Rate, err error) {
	defer func(begin time.Time) { s.observe("historical_rates_by_date", begin, len(result), err) }(time.Now())
	return s.next.HistoricalRatesByDate(ctx, marketDates)
}

func (s *instrumentingService) HistoricalRatesForTimeframe(ctx context.Context, markets []rates.Market, timeframe rates.Timeframe) (result []rates.Rate, err error) {
	defer func(begin time.Time) { s.observe("historical_rates_for_timeframe", begin, len(result), err) }(time.Now())
	return s.next.HistoricalRatesForTimeframe(ctx, markets, timeframe)
}

func (s *instrumentingService) HistoricalRatesByTimeframe(ctx context.Context, marketTimeframes []rates.MarketTimeframe) (result []rates.Rate, err error) {
	defer func(begin time.Time) { s.observe("historical_rates_by_timeframe", begin, len(result), err) }(time.Now())
	return s.next.HistoricalRatesByTimeframe(ctx, marketTimeframes)
}

func (s *instrumentingService) Currencies(ctx context.Context) (currencies []rates.Currency, err error) {
	defer func(begin time.Time) { s.observe("currencies", begin, 0, err) }(time.Now())
	return s.next.Currencies(ctx)
}

// one counts the rate of a single-rate query.
func one(err error) int {
	if err != nil {
		return 0
	}
	return 1
}
