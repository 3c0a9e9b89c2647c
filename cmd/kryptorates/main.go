// Command kryptorates queries a krypto-rates service.
//
//	kryptorates live --from USD --to EUR,GBP
//	kryptorates historical --to USD --from BTC,ETH --date 2024-03-01 --inverse
//	kryptorates timeframe --markets BTC/USD,ETH/EUR --start 2024-03-01 --end 2024-03-07
//	kryptorates currencies
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	rates "go-krypto-rates"
	"go-krypto-rates/api"
	"go-krypto-rates/client"
	"go-krypto-rates/config"
	"go-krypto-rates/graphql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "kryptorates:", err)
		stop()
		os.Exit(1)
	}
}

type query struct {
	from      []string
	to        []string
	markets   []string
	dates     []string
	start     string
	end       string
	inverse   bool
	precision int32
	metrics   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("kryptorates", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.Register(fs)
	var q query
	fs.StringSliceVar(&q.from, "from", nil, "base currencies")
	fs.StringSliceVar(&q.to, "to", nil, "quote currencies")
	fs.StringSliceVar(&q.markets, "markets", nil, "markets as BASE/QUOTE")
	fs.StringSliceVar(&q.dates, "date", nil, "dates of historical rates (YYYY-MM-DD)")
	fs.StringVar(&q.start, "start", "", "first day of the timeframe")
	fs.StringVar(&q.end, "end", "", "last day of the timeframe, omitted when empty")
	fs.BoolVar(&q.inverse, "inverse", false, "invert the rates")
	fs.Int32Var(&q.precision, "precision", 8, "decimal places of printed amounts")
	fs.StringVar(&q.metrics, "metrics-file", "", "write prometheus metrics to this file on exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected one of live, historical, timeframe or currencies")
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	w := log.NewSyncWriter(stderr)
	logger := log.NewLogfmtLogger(w)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	logger = level.NewFilter(logger, allow(cfg.LogLevel))

	options := []graphql.Option{
		graphql.WithTimeout(cfg.Timeout),
		graphql.WithUserAgent(cfg.UserAgent),
		graphql.WithLogger(log.With(logger, "component", "graphql")),
	}
	if cfg.RateLimit > 0 {
		options = append(options, graphql.WithRateLimit(cfg.RateLimit, cfg.Burst))
	}
	for key, value := range cfg.Headers {
		options = append(options, graphql.WithHeader(key, value))
	}
	registry := prometheus.NewRegistry()

	service := api.NewService(graphql.NewClient(cfg.URL, options...))
	service = api.NewLoggingService(level.Info(log.With(logger, "component", "api")), service)
	service = api.NewInstrumentingService(api.NewMetrics(registry), service)

	if q.metrics != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(q.metrics, registry); err != nil {
				level.Warn(logger).Log("msg", "writing metrics", "err", err)
			}
		}()
	}

	kr := client.New(service).LiveTTL(cfg.TTL)
	if q.inverse {
		kr = kr.Inverse()
	}

	switch command := fs.Arg(0); command {
	case "live":
		result, err := fetch(ctx, kr.Live(), q)
		if err != nil {
			return err
		}
		printMoney(stdout, "", result, q.precision)
	case "historical":
		if len(q.dates) == 0 {
			return errors.New("historical needs --date")
		}
		dates := make([]rates.Date, 0, len(q.dates))
		for _, d := range q.dates {
			dates = append(dates, rates.DateString(d))
		}
		result, err := fetch(ctx, kr.Historical(dates...), q)
		if err != nil {
			return err
		}
		printDateMoney(stdout, result, q.precision)
	case "timeframe":
		if q.start == "" {
			return errors.New("timeframe needs --start")
		}
		timeframe := rates.Timeframe{Start: rates.DateString(q.start)}
		if q.end != "" {
			timeframe.End = rates.DateString(q.end)
		}
		result, err := fetch(ctx, kr.Timeframe(timeframe), q)
		if err != nil {
			return err
		}
		printDateMoney(stdout, result, q.precision)
	case "currencies":
		currencies, err := service.Currencies(ctx)
		if err != nil {
			return err
		}
		for _, currency := range currencies {
			fmt.Fprintln(stdout, currency)
		}
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// fetch picks the terminal call of f from the currency flags of q.
func fetch[R any](ctx context.Context, f client.Fetch[R], q query) (R, error) {
	var zero R
	switch {
	case len(q.markets) > 0:
		markets := make([]rates.Market, 0, len(q.markets))
		for _, s := range q.markets {
			market, err := parseMarket(s)
			if err != nil {
				return zero, err
			}
			markets = append(markets, market)
		}
		return f.Markets(ctx, markets...)
	case len(q.from) == 1 && len(q.to) > 0:
		return f.From(currency(q.from[0])).To(ctx, currencies(q.to)...)
	case len(q.to) == 1 && len(q.from) > 0:
		return f.To(currency(q.to[0])).From(ctx, currencies(q.from)...)
	default:
		return zero, errors.New("need --markets, or a single --from with --to, or a single --to with --from")
	}
}

func parseMarket(s string) (rates.Market, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return rates.Market{}, fmt.Errorf("market %q is not BASE/QUOTE", s)
	}
	return rates.Market{Base: currency(base), Quote: currency(quote)}, nil
}

func currency(s string) rates.Currency {
	return rates.Currency(strings.ToUpper(strings.TrimSpace(s)))
}

func currencies(ss []string) []rates.Currency {
	cs := make([]rates.Currency, 0, len(ss))
	for _, s := range ss {
		cs = append(cs, currency(s))
	}
	return cs
}

func printMoney(w io.Writer, prefix string, dict rates.MoneyDict, precision int32) {
	keys := make([]string, 0, len(dict))
	for key := range dict {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	for _, key := range keys {
		money := dict[rates.Currency(key)]
		fmt.Fprintf(w, "%s%s\t%s %s\n", prefix, key, decimal.NewFromFloat(money.Amount).StringFixed(precision), money.Currency)
	}
}

func printDateMoney(w io.Writer, dict rates.DateMoneyDict, precision int32) {
	dates := make([]string, 0, len(dict))
	for date := range dict {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	for _, date := range dates {
		printMoney(w, date+"\t", dict[date], precision)
	}
}

func allow(logLevel string) level.Option {
	switch logLevel {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

