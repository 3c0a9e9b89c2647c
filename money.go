package rates

import (
	"math"
)

// KeyFunc selects the key a rate is stored under when folding.
type KeyFunc func(market Market) Currency

// ByBase keys by the base currency.
func ByBase(market Market) Currency {
	return market.Base
}

// ByQuote keys by the quote currency.
func ByQuote(market Market) Currency {
	return market.Quote
}

// ByMarket keys by the concatenation of base and quote.
func ByMarket(market Market) Currency {
	return market.Base + market.Quote
}

// ToMoney converts a rate to money in the quote currency, or in the base currency when inverse.
func ToMoney(rate Rate, inverse bool) (Money, error) {
	money := Money{Amount: rate.Value, Currency: rate.Market.Quote}
	if inverse {
		money = Money{Amount: 1 / rate.Value, Currency: rate.Market.Base}
	}
	if math.IsInf(money.Amount, 0) || math.IsNaN(money.Amount) {
		return Money{}, &InvalidRateValueError{Market: rate.Market, Value: rate.Value, Inverse: inverse}
	}
	return money, nil
}

// ToMoneyDict folds rates by key. When two rates share a key the later one wins.
func ToMoneyDict(rates []Rate, key KeyFunc, inverse bool) (MoneyDict, error) {
	dict := make(MoneyDict, len(rates))
	for _, rate := range rates {
		money, err := ToMoney(rate, inverse)
		if err != nil {
			return nil, err
		}
		dict[key(rate.Market)] = money
	}
	return dict, nil
}

// ToDateMoneyDict partitions rates by date and folds each partition with ToMoneyDict.
func ToDateMoneyDict(rates []Rate, key KeyFunc, inverse bool) (DateMoneyDict, error) {
	partitions := map[string][]Rate{}
	for _, rate := range rates {
		partitions[rate.Date] = append(partitions[rate.Date], rate)
	}
	dict := make(DateMoneyDict, len(partitions))
	for date, partition := range partitions {
		moneyDict, err := ToMoneyDict(partition, key, inverse)
		if err != nil {
			return nil, err
		}
		dict[date] = moneyDict
	}
	return dict, nil
}
