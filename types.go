// Package rates holds the value types of the krypto-rates service and the rules for folding
// flat lists of rates into currency and date keyed lookups.
package rates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Currency a currency symbol. Symbols are opaque, no validation is performed.
type Currency string

// Market an ordered base/quote pair. A rate on a market reads as
// "1 unit of Base = Value units of Quote".
type Market struct {
	Base  Currency `json:"base"`
	Quote Currency `json:"quote"`
}

// IsParity reports whether base and quote are the same currency.
func (m Market) IsParity() bool {
	return m.Base == m.Quote
}

func (m Market) String() string {
	return string(m.Base) + "/" + string(m.Quote)
}

// Timeframe an inclusive range of dates. Start is required. End may be nil, in which case
// the remote service picks the end of the range.
type Timeframe struct {
	Start Date
	End   Date
}

// MarketDate a market at a single date.
type MarketDate struct {
	Market Market
	Date   Date
}

// MarketTimeframe a market over a timeframe.
type MarketTimeframe struct {
	Market    Market
	Timeframe Timeframe
}

// Money an amount in a currency.
type Money struct {
	Amount   float64  `json:"amount"`
	Currency Currency `json:"currency"`
}

// MoneyDict maps a fold key to the money resolved for it.
type MoneyDict map[Currency]Money

// DateMoneyDict maps a date string (YYYY-MM-DD) to the MoneyDict of that date.
type DateMoneyDict map[string]MoneyDict

// ParitySource is the source of rates synthesized for markets whose base and quote match.
const ParitySource = "parity"

// Rate an exchange rate observed for a market.
type Rate struct {
	Market    Market    `json:"market"`
	Value     float64   `json:"value"`
	Timestamp Timestamp `json:"timestamp"`
	Date      string    `json:"date"`
	Source    string    `json:"source"`
	Bridged   bool      `json:"bridged"`
}

// Parity returns the rate of a market against itself on the given date.
func Parity(market Market, date string, ts time.Time) Rate {
	return Rate{
		Market:    market,
		Value:     1,
		Timestamp: Timestamp(ts.Unix()),
		Date:      date,
		Source:    ParitySource,
	}
}

// UnmarshalJSON decodes a rate and checks that the fields needed for folding are present.
func (r *Rate) UnmarshalJSON(data []byte) error {
	var wire struct {
		Market *struct {
			Base  *Currency `json:"base"`
			Quote *Currency `json:"quote"`
		} `json:"market"`
		Value     *float64  `json:"value"`
		Timestamp Timestamp `json:"timestamp"`
		Date      *string   `json:"date"`
		Source    string    `json:"source"`
		Bridged   bool      `json:"bridged"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return &MalformedResponseError{Reason: fmt.Sprintf("decoding rate: %v", err)}
	}
	switch {
	case wire.Market == nil:
		return &MalformedResponseError{Field: "market", Reason: "missing from rate"}
	case wire.Market.Base == nil:
		return &MalformedResponseError{Field: "market.base", Reason: "missing from rate"}
	case wire.Market.Quote == nil:
		return &MalformedResponseError{Field: "market.quote", Reason: "missing from rate"}
	case wire.Value == nil:
		return &MalformedResponseError{Field: "value", Reason: "missing from rate"}
	case wire.Date == nil:
		return &MalformedResponseError{Field: "date", Reason: "missing from rate"}
	}
	*r = Rate{
		Market:    Market{Base: *wire.Market.Base, Quote: *wire.Market.Quote},
		Value:     *wire.Value,
		Timestamp: wire.Timestamp,
		Date:      *wire.Date,
		Source:    wire.Source,
		Bridged:   wire.Bridged,
	}
	return nil
}

// Timestamp seconds since the unix epoch. On the wire it is either an integer or a date string.
type Timestamp int64

// Time returns the timestamp as a UTC time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(t), 10)), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, dateLayout} {
			if ts, err := time.Parse(layout, s); err == nil {
				*t = Timestamp(ts.Unix())
				return nil
			}
		}
		return fmt.Errorf("invalid timestamp %q", s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	*t = Timestamp(int64(f))
	return nil
}
