package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rates "go-krypto-rates"
	"go-krypto-rates/graphql"
)

type mock struct {
	requests []graphql.Request
	response *graphql.Response
	err      error
}

func (m *mock) Send(_ context.Context, request graphql.Request) (*graphql.Response, error) {
	m.requests = append(m.requests, request)
	return m.response, m.err
}

// forbidden fails the test when a query reaches the transport.
type forbidden struct {
	t *testing.T
}

func (f forbidden) Send(_ context.Context, request graphql.Request) (*graphql.Response, error) {
	f.t.Fatalf("unexpected query %s", request.OperationName)
	return nil, nil
}

func data(field, raw string) *graphql.Response {
	return &graphql.Response{Data: map[string]json.RawMessage{field: json.RawMessage(raw)}}
}

func variables(t *testing.T, request graphql.Request) string {
	t.Helper()
	b, err := json.Marshal(request.Variables)
	require.NoError(t, err)
	return string(b)
}

var clock = WithClock(func() time.Time {
	return time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
})

const usdEurGbp = `[
	{"value": 0.9, "date": "2024-03-10", "timestamp": 1710084600, "source": "coinlayer", "market": {"base": "USD", "quote": "EUR"}},
	{"value": 0.8, "date": "2024-03-10", "timestamp": 1710084600, "source": "coinlayer", "market": {"base": "USD", "quote": "GBP"}}
]`

func TestService_LiveRates(t *testing.T) {
	m := &mock{response: data("liveRates", usdEurGbp)}
	s := NewService(m, clock)

	got, err := s.LiveRates(context.Background(), []rates.Market{{Base: "USD", Quote: "EUR"}, {Base: "USD", Quote: "GBP"}}, 5*time.Minute)

	require.NoError(t, err)
	require.Len(t, m.requests, 1)
	assert.Equal(t, "LiveRates", m.requests[0].OperationName)
	assert.Equal(t, LiveRatesQuery.Document(), m.requests[0].Query)
	assert.JSONEq(t, `{"markets": [{"base": "USD", "quote": "EUR"}, {"base": "USD", "quote": "GBP"}], "ttl": 300}`, variables(t, m.requests[0]))
	assert.Equal(t, []rates.Rate{
		{Market: rates.Market{Base: "USD", Quote: "EUR"}, Value: 0.9, Timestamp: 1710084600, Date: "2024-03-10", Source: "coinlayer"},
		{Market: rates.Market{Base: "USD", Quote: "GBP"}, Value: 0.8, Timestamp: 1710084600, Date: "2024-03-10", Source: "coinlayer"},
	}, got)
}

func TestService_LiveRate(t *testing.T) {
	m := &mock{response: data("liveRate", `{"value": 65000.5, "date": "2024-03-10", "timestamp": 1710084600, "source": "nomics", "market": {"base": "BTC", "quote": "USD"}}`)}
	s := NewService(m)

	got, err := s.LiveRate(context.Background(), rates.Market{Base: "BTC", Quote: "USD"}, 0)

	require.NoError(t, err)
	assert.Equal(t, 65000.5, got.Value)
	assert.JSONEq(t, `{"market": {"base": "BTC", "quote": "USD"}, "ttl": null}`, variables(t, m.requests[0]))
}

func TestService_Errors(t *testing.T) {
	transportErr := &rates.TransportError{StatusCode: 500, Message: "boom"}
	tests := []struct {
		name  string
		mock  *mock
		check func(t *testing.T, err error)
	}{
		{
			name: "remote query error",
			mock: &mock{response: &graphql.Response{Errors: []graphql.Error{{Message: "market not found"}, {Message: "second"}}}},
			check: func(t *testing.T, err error) {
				var remote *rates.RemoteQueryError
				require.True(t, errors.As(err, &remote))
				assert.Equal(t, "market not found", remote.Message)
				assert.EqualError(t, err, "market not found")
			},
		},
		{
			name: "remote query error with data",
			mock: &mock{response: &graphql.Response{
				Data:   map[string]json.RawMessage{"liveRates": json.RawMessage(usdEurGbp)},
				Errors: []graphql.Error{{Message: "partial"}},
			}},
			check: func(t *testing.T, err error) {
				var remote *rates.RemoteQueryError
				assert.True(t, errors.As(err, &remote))
			},
		},
		{
			name: "transport error",
			mock: &mock{err: transportErr},
			check: func(t *testing.T, err error) {
				var got *rates.TransportError
				require.True(t, errors.As(err, &got))
				assert.Equal(t, 500, got.StatusCode)
			},
		},
		{
			name: "missing field",
			mock: &mock{response: data("otherField", `[]`)},
			check: func(t *testing.T, err error) {
				var malformed *rates.MalformedResponseError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, "liveRates", malformed.Field)
			},
		},
		{
			name: "null field",
			mock: &mock{response: data("liveRates", `null`)},
			check: func(t *testing.T, err error) {
				var malformed *rates.MalformedResponseError
				assert.True(t, errors.As(err, &malformed))
			},
		},
		{
			name: "rate without value",
			mock: &mock{response: data("liveRates", `[{"value": null, "date": "2024-03-10", "market": {"base": "USD", "quote": "EUR"}}]`)},
			check: func(t *testing.T, err error) {
				var malformed *rates.MalformedResponseError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, "value", malformed.Field)
			},
		},
		{
			name: "wrong shape",
			mock: &mock{response: data("liveRates", `{"not": "a list"}`)},
			check: func(t *testing.T, err error) {
				var malformed *rates.MalformedResponseError
				require.True(t, errors.As(err, &malformed))
				assert.Equal(t, "liveRates", malformed.Field)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(tt.mock)
			got, err := s.LiveRates(context.Background(), []rates.Market{{Base: "USD", Quote: "EUR"}}, 0)
			assert.Nil(t, got)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestService_ParityWithoutTransport(t *testing.T) {
	s := NewService(forbidden{t}, clock)
	ctx := context.Background()
	btc := rates.Market{Base: "BTC", Quote: "BTC"}

	live, err := s.LiveRate(ctx, btc, 0)
	require.NoError(t, err)
	assert.Equal(t, rates.Rate{Market: btc, Value: 1, Timestamp: 1710084600, Date: "2024-03-10", Source: rates.ParitySource}, live)

	historical, err := s.HistoricalRateForDate(ctx, btc, rates.DateString("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", historical.Date)
	assert.Equal(t, rates.Timestamp(1704067200), historical.Timestamp)

	batch, err := s.LiveRates(ctx, []rates.Market{btc, {Base: "CLP", Quote: "CLP"}}, 0)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	dates, err := s.HistoricalRatesForDates(ctx, []rates.Market{btc}, []rates.Date{rates.DateString("2024-01-01"), rates.CalendarDate{Year: 2024, Month: 1, Day: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, []string{dates[0].Date, dates[1].Date})

	byDate, err := s.HistoricalRatesByDate(ctx, []rates.MarketDate{{Market: btc, Date: rates.DateString("2024-01-05")}})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, "2024-01-05", byDate[0].Date)

	timeframe, err := s.HistoricalRatesForTimeframe(ctx, []rates.Market{btc}, rates.Timeframe{
		Start: rates.DateString("2024-01-30"),
		End:   rates.DateString("2024-02-01"),
	})
	require.NoError(t, err)
	assert.Len(t, timeframe, 3)

	open, err := s.HistoricalRatesForTimeframe(ctx, []rates.Market{btc}, rates.Timeframe{Start: rates.DateString("2024-01-30")})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "2024-01-30", open[0].Date)

	empty, err := s.LiveRates(ctx, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_ParityFilteredBeforeDispatch(t *testing.T) {
	m := &mock{response: data("liveRates", usdEurGbp)}
	s := NewService(m, clock)

	got, err := s.LiveRates(context.Background(), []rates.Market{
		{Base: "USD", Quote: "EUR"},
		{Base: "USD", Quote: "USD"},
		{Base: "USD", Quote: "GBP"},
	}, 0)

	require.NoError(t, err)
	require.Len(t, m.requests, 1)
	assert.JSONEq(t, `{"markets": [{"base": "USD", "quote": "EUR"}, {"base": "USD", "quote": "GBP"}], "ttl": null}`, variables(t, m.requests[0]))
	require.Len(t, got, 3)
	assert.Equal(t, rates.Market{Base: "USD", Quote: "USD"}, got[2].Market)
	assert.Equal(t, 1.0, got[2].Value)
}

func TestService_HistoricalVariables(t *testing.T) {
	usdEur := rates.Market{Base: "USD", Quote: "EUR"}
	tests := []struct {
		name  string
		field string
		call  func(s Service) ([]rates.Rate, error)
		want  string
	}{
		{
			name:  "for date",
			field: "historicalRatesForDate",
			call: func(s Service) ([]rates.Rate, error) {
				return s.HistoricalRatesForDate(context.Background(), []rates.Market{usdEur}, rates.CalendarDate{Year: 2024, Month: 3, Day: 1})
			},
			want: `{"markets": [{"base": "USD", "quote": "EUR"}], "date": "2024-03-01"}`,
		},
		{
			name:  "for dates",
			field: "historicalRatesForDates",
			call: func(s Service) ([]rates.Rate, error) {
				return s.HistoricalRatesForDates(context.Background(), []rates.Market{usdEur}, []rates.Date{rates.DateString("2024-03-01"), rates.DateOf(time.Date(2024, 3, 2, 23, 0, 0, 0, time.UTC))})
			},
			want: `{"markets": [{"base": "USD", "quote": "EUR"}], "dates": ["2024-03-01", "2024-03-02"]}`,
		},
		{
			name:  "by date",
			field: "historicalRatesByDate",
			call: func(s Service) ([]rates.Rate, error) {
				return s.HistoricalRatesByDate(context.Background(), []rates.MarketDate{{Market: usdEur, Date: rates.DateString("2024-03-01")}})
			},
			want: `{"marketDates": [{"market": {"base": "USD", "quote": "EUR"}, "date": "2024-03-01"}]}`,
		},
		{
			name:  "for timeframe",
			field: "historicalRatesForTimeframe",
			call: func(s Service) ([]rates.Rate, error) {
				return s.HistoricalRatesForTimeframe(context.Background(), []rates.Market{usdEur}, rates.Timeframe{Start: rates.DateString("2024-03-01"), End: rates.DateString("2024-03-05")})
			},
			want: `{"markets": [{"base": "USD", "quote": "EUR"}], "timeframe": {"start": "2024-03-01", "end": "2024-03-05"}}`,
		},
		{
			name:  "for timeframe without end",
			field: "historicalRatesForTimeframe",
			call: func(s Service) ([]rates.Rate, error) {
				return s.HistoricalRatesForTimeframe(context.Background(), []rates.Market{usdEur}, rates.Timeframe{Start: rates.DateString("2024-03-01")})
			},
			want: `{"markets": [{"base": "USD", "quote": "EUR"}], "timeframe": {"start": "2024-03-01"}}`,
		},
		{
			name:  "by timeframe",
			field: "historicalRatesByTimeframe",
			call: func(s Service) ([]rates.Rate, error) {
				return s.HistoricalRatesByTimeframe(context.Background(), []rates.MarketTimeframe{
					{Market: usdEur, Timeframe: rates.Timeframe{Start: rates.DateString("2024-03-01"), End: rates.DateString("2024-03-02")}},
					{Market: rates.Market{Base: "EUR", Quote: "EUR"}, Timeframe: rates.Timeframe{Start: rates.DateString("2024-03-01"), End: rates.DateString("2024-03-02")}},
				})
			},
			want: `{"marketTimeframes": [{"market": {"base": "USD", "quote": "EUR"}, "timeframe": {"start": "2024-03-01", "end": "2024-03-02"}}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mock{response: data(tt.field, `[]`)}
			_, err := tt.call(NewService(m))
			require.NoError(t, err)
			require.Len(t, m.requests, 1)
			assert.JSONEq(t, tt.want, variables(t, m.requests[0]))
		})
	}
}

func TestService_TimeframeParityFromResponse(t *testing.T) {
	m := &mock{response: data("historicalRatesForTimeframe", `[
		{"value": 0.9, "date": "2024-03-01", "market": {"base": "USD", "quote": "EUR"}},
		{"value": 0.91, "date": "2024-03-02", "market": {"base": "USD", "quote": "EUR"}}
	]`)}
	s := NewService(m)

	got, err := s.HistoricalRatesForTimeframe(context.Background(), []rates.Market{{Base: "USD", Quote: "EUR"}, {Base: "EUR", Quote: "EUR"}}, rates.Timeframe{Start: rates.DateString("2024-03-01")})
	require.NoError(t, err)

	dict, err := rates.ToDateMoneyDict(got, rates.ByMarket, false)
	require.NoError(t, err)
	want := rates.DateMoneyDict{
		"2024-03-01": {"USDEUR": {Amount: 0.9, Currency: "EUR"}, "EUREUR": {Amount: 1, Currency: "EUR"}},
		"2024-03-02": {"USDEUR": {Amount: 0.91, Currency: "EUR"}, "EUREUR": {Amount: 1, Currency: "EUR"}},
	}
	if diff := cmp.Diff(want, dict); diff != "" {
		t.Errorf("timeframe parity mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Currencies(t *testing.T) {
	m := &mock{response: data("currencies", `["BTC", "CLP", "USD"]`)}

	got, err := NewService(m).Currencies(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []rates.Currency{"BTC", "CLP", "USD"}, got)
	assert.Nil(t, m.requests[0].Variables)
}

func TestTTLSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want any
	}{
		{0, nil},
		{-time.Second, nil},
		{time.Nanosecond, 1},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{5 * time.Minute, 300},
	}
	for _, tt := range tests {
		t.Run(tt.ttl.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ttlSeconds(tt.ttl))
		})
	}
}

func TestService_LiveRatesSubSecondTTL(t *testing.T) {
	m := &mock{response: data("liveRates", usdEurGbp)}

	_, err := NewService(m).LiveRates(context.Background(), []rates.Market{{Base: "USD", Quote: "EUR"}}, 500*time.Millisecond)

	require.NoError(t, err)
	assert.JSONEq(t, `{"markets": [{"base": "USD", "quote": "EUR"}], "ttl": 1}`, variables(t, m.requests[0]))
}

func TestService_TimeframeWithoutStart(t *testing.T) {
	s := NewLoggingService(log.NewNopLogger(), NewService(forbidden{t}))
	ctx := context.Background()

	_, err := s.HistoricalRatesForTimeframe(ctx, []rates.Market{{Base: "USD", Quote: "EUR"}}, rates.Timeframe{})
	assert.ErrorIs(t, err, ErrTimeframeStart)

	_, err = s.HistoricalRatesForTimeframe(ctx, []rates.Market{{Base: "EUR", Quote: "EUR"}}, rates.Timeframe{End: rates.DateString("2024-03-02")})
	assert.ErrorIs(t, err, ErrTimeframeStart)

	_, err = s.HistoricalRatesByTimeframe(ctx, []rates.MarketTimeframe{
		{Market: rates.Market{Base: "USD", Quote: "EUR"}, Timeframe: rates.Timeframe{Start: rates.DateString("2024-03-01")}},
		{Market: rates.Market{Base: "USD", Quote: "GBP"}},
	})
	assert.ErrorIs(t, err, ErrTimeframeStart)
	assert.ErrorContains(t, err, "USD/GBP")
}

func TestService_ByTimeframeParityStaysInRange(t *testing.T) {
	m := &mock{response: data("historicalRatesByTimeframe", `[
		{"value": 0.9, "date": "2024-03-01", "market": {"base": "USD", "quote": "EUR"}},
		{"value": 0.91, "date": "2024-03-02", "market": {"base": "USD", "quote": "EUR"}},
		{"value": 0.92, "date": "2024-03-03", "market": {"base": "USD", "quote": "EUR"}}
	]`)}
	s := NewService(m)

	got, err := s.HistoricalRatesByTimeframe(context.Background(), []rates.MarketTimeframe{
		{Market: rates.Market{Base: "USD", Quote: "EUR"}, Timeframe: rates.Timeframe{Start: rates.DateString("2024-03-01"), End: rates.DateString("2024-03-03")}},
		{Market: rates.Market{Base: "EUR", Quote: "EUR"}, Timeframe: rates.Timeframe{Start: rates.DateString("2024-03-02")}},
		{Market: rates.Market{Base: "GBP", Quote: "GBP"}, Timeframe: rates.Timeframe{Start: rates.DateString("2024-03-10")}},
	})
	require.NoError(t, err)

	dates := map[rates.Market][]string{}
	for _, rate := range got {
		dates[rate.Market] = append(dates[rate.Market], rate.Date)
	}
	assert.Equal(t, []string{"2024-03-02", "2024-03-03"}, dates[rates.Market{Base: "EUR", Quote: "EUR"}])
	assert.Equal(t, []string{"2024-03-10"}, dates[rates.Market{Base: "GBP", Quote: "GBP"}])
}
