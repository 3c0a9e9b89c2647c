package api

import (
	"strings"
)

// rateFragment selects every field of a Rate.
const rateFragment = `fragment rate on Rate {
  value
  date
  timestamp
  source
  bridged
  market {
    base
    quote
  }
}`

// Variable a query variable and its GraphQL type.
type Variable struct {
	Name string
	Type string
}

// Query describes one remote query: the operation name, the variables it declares,
// the single top level field it reads and whether that field selects rates.
type Query struct {
	Name      string
	Field     string
	Variables []Variable
	// Rates is false for fields returning scalars.
	Rates bool
}

var (
	marketVar           = Variable{"market", "MarketInput!"}
	marketsVar          = Variable{"markets", "[MarketInput!]!"}
	ttlVar              = Variable{"ttl", "Int"}
	dateVar             = Variable{"date", "Date!"}
	datesVar            = Variable{"dates", "[Date!]!"}
	marketDatesVar      = Variable{"marketDates", "[MarketDateInput!]!"}
	timeframeVar        = Variable{"timeframe", "TimeframeInput!"}
	marketTimeframesVar = Variable{"marketTimeframes", "[MarketTimeframeInput!]!"}
)

// Queries of the krypto-rates service.
var (
	LiveRateQuery = Query{
		Name: "LiveRate", Field: "liveRate", Rates: true,
		Variables: []Variable{marketVar, ttlVar},
	}
	LiveRatesQuery = Query{
		Name: "LiveRates", Field: "liveRates", Rates: true,
		Variables: []Variable{marketsVar, ttlVar},
	}
	HistoricalRateForDateQuery = Query{
		Name: "HistoricalRateForDate", Field: "historicalRateForDate", Rates: true,
		Variables: []Variable{marketVar, dateVar},
	}
	HistoricalRatesForDateQuery = Query{
		Name: "HistoricalRatesForDate", Field: "historicalRatesForDate", Rates: true,
		Variables: []Variable{marketsVar, dateVar},
	}
	HistoricalRatesForDatesQuery = Query{
		Name: "HistoricalRatesForDates", Field: "historicalRatesForDates", Rates: true,
		Variables: []Variable{marketsVar, datesVar},
	}
	HistoricalRatesByDateQuery = Query{
		Name: "HistoricalRatesByDate", Field: "historicalRatesByDate", Rates: true,
		Variables: []Variable{marketDatesVar},
	}
	HistoricalRatesForTimeframeQuery = Query{
		Name: "HistoricalRatesForTimeframe", Field: "historicalRatesForTimeframe", Rates: true,
		Variables: []Variable{marketsVar, timeframeVar},
	}
	HistoricalRatesByTimeframeQuery = Query{
		Name: "HistoricalRatesByTimeframe", Field: "historicalRatesByTimeframe", Rates: true,
		Variables: []Variable{marketTimeframesVar},
	}
	CurrenciesQuery = Query{
		Name: "Currencies", Field: "currencies",
	}
)

// Document renders the query text.
func (q Query) Document() string {
	var b strings.Builder
	b.WriteString("query ")
	b.WriteString(q.Name)
	if len(q.Variables) > 0 {
		b.WriteString("(")
		for i, v := range q.Variables {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$" + v.Name + ": " + v.Type)
		}
		b.WriteString(")")
	}
	b.WriteString(" {\n  ")
	b.WriteString(q.Field)
	if len(q.Variables) > 0 {
		b.WriteString("(")
		for i, v := range q.Variables {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(v.Name + ": $" + v.Name)
		}
		b.WriteString(")")
	}
	if q.Rates {
		b.WriteString(" {\n    ...rate\n  }")
	}
	b.WriteString("\n}\n")
	if q.Rates {
		b.WriteString(rateFragment)
		b.WriteString("\n")
	}
	return b.String()
}
