// Package fx re-expresses reconciliation output in a second currency.
//
// Every monetary field is divided by the conversion rate of its own day, and
// the KPI bundles are then derived again from the converted daily series.
// Dividing a native aggregate by one rate would price every day at the same
// rate, which is wrong whenever the rate moves inside the window.
package fx

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

// ErrNoRates is returned when no usable conversion rate covers the request.
var ErrNoRates = errors.New("fx: no usable conversion rates")

// Rates maps a date key (model.DateKey) to the native-per-target rate.
type Rates map[string]decimal.Decimal

// Rate returns the rate for day.
func (r Rates) Rate(day time.Time) (decimal.Decimal, bool) {
	v, ok := r[model.DateKey(day)]
	return v, ok
}

// Align resolves a rate for every requested date. Gaps take the most recent
// earlier rate; dates before the first published rate take the earliest one.
// Non-positive rates are treated as missing.
func Align(rates []model.ConversionRate, dates []time.Time) (Rates, error) {
	usable := make([]model.ConversionRate, 0, len(rates))
	for _, r := range rates {
		if r.Rate.IsPositive() {
			usable = append(usable, model.ConversionRate{Date: model.Day(r.Date), Rate: r.Rate})
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoRates
	}
	sort.SliceStable(usable, func(i, j int) bool { return usable[i].Date.Before(usable[j].Date) })

	sortedDates := make([]time.Time, len(dates))
	for i, day := range dates {
		sortedDates[i] = model.Day(day)
	}
	sort.Slice(sortedDates, func(i, j int) bool { return sortedDates[i].Before(sortedDates[j]) })

	out := make(Rates, len(dates))
	next := 0
	current := usable[0].Rate
	for _, day := range sortedDates {
		for next < len(usable) && !usable[next].Date.After(day) {
			current = usable[next].Rate
			next++
		}
		out[model.DateKey(day)] = current
	}
	return out, nil
}

// NormalizeSpread converts the monetary fields of each record at its day's
// rate. NetRate is a ratio and is left as is. Records without a rate are
// dropped.
func NormalizeSpread(records []model.SpreadRecord, rates Rates) []model.SpreadRecord {
	if len(records) == 0 {
		return nil
	}
	out := make([]model.SpreadRecord, 0, len(records))
	for _, rec := range records {
		rate, ok := rates.Rate(rec.Date)
		if !ok {
			continue
		}
		rec.FundingCost = rec.FundingCost.Div(rate)
		rec.FundBalance = rec.FundBalance.Div(rate)
		rec.Debt = rec.Debt.Div(rate)
		rec.CapitalProductive = rec.CapitalProductive.Div(rate)
		rec.FundReturn = divNull(rec.FundReturn, rate)
		rec.Spread = divNull(rec.Spread, rate)
		rec.SpreadFull = divNull(rec.SpreadFull, rate)
		rec.OptimalCapital = divNull(rec.OptimalCapital, rate)
		out = append(out, rec)
	}
	return out
}

// NormalizeDaily converts the monetary fields of each daily record.
// Rates, unit holdings and utilization are unitless and unchanged.
func NormalizeDaily(days []model.DailyRecord, rates Rates) []model.DailyRecord {
	if len(days) == 0 {
		return nil
	}
	out := make([]model.DailyRecord, 0, len(days))
	for _, rec := range days {
		rate, ok := rates.Rate(rec.Date)
		if !ok {
			continue
		}
		rec.TotalDebt = rec.TotalDebt.Div(rate)
		rec.InterestCost = rec.InterestCost.Div(rate)
		rec.AssetValue = rec.AssetValue.Div(rate)
		rec.DailyGain = rec.DailyGain.Div(rate)
		rec.NetCarry = rec.NetCarry.Div(rate)
		out = append(out, rec)
	}
	return out
}

func divNull(v decimal.NullDecimal, rate decimal.Decimal) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	return decimal.NullDecimal{Decimal: v.Decimal.Div(rate), Valid: true}
}
