// Package valuation replays fund subscriptions and redemptions over a date
// window and marks the held units to market against each fund's price series.
package valuation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

// Position is the fund holding state at the end of one day.
type Position struct {
	Date       time.Time                  `json:"date"`
	HeldUnits  map[string]decimal.Decimal `json:"held_units"`
	AssetValue decimal.Decimal            `json:"asset_value"`
	DailyGain  decimal.Decimal            `json:"daily_gain"`
}

// PriceBook indexes price points by fund and calendar day.
type PriceBook map[string]map[string]decimal.Decimal

// NewPriceBook groups price points by fund. A later point for the same fund
// and day replaces an earlier one.
func NewPriceBook(points []model.PricePoint) PriceBook {
	book := make(PriceBook)
	for _, p := range points {
		byDay, ok := book[p.FundID]
		if !ok {
			byDay = make(map[string]decimal.Decimal)
			book[p.FundID] = byDay
		}
		byDay[model.DateKey(p.Date)] = p.Price
	}
	return book
}

// Price returns the fund's price on day, if published.
func (b PriceBook) Price(fundID string, day time.Time) (decimal.Decimal, bool) {
	p, ok := b[fundID][model.DateKey(day)]
	return p, ok
}

// holdings tracks incremental movement replay. Movements are sorted by
// timestamp; cursor advances as days progress.
type holdings struct {
	sorted []model.Movement
	cursor int
	units  map[string]decimal.Decimal
}

func newHoldings(movements []model.Movement) *holdings {
	sorted := make([]model.Movement, len(movements))
	copy(sorted, movements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &holdings{sorted: sorted, units: make(map[string]decimal.Decimal)}
}

// advanceThrough applies every movement whose effective day is <= day.
func (h *holdings) advanceThrough(day time.Time) {
	for h.cursor < len(h.sorted) {
		m := h.sorted[h.cursor]
		if model.Day(m.Timestamp).After(day) {
			break
		}
		h.units[m.FundID] = h.units[m.FundID].Add(m.UnitDelta())
		h.cursor++
	}
}

func (h *holdings) snapshot() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(h.units))
	for fund, u := range h.units {
		out[fund] = u
	}
	return out
}

// Value returns one Position per calendar day in [from, to].
//
// Movements dated before from seed the opening balance; every other movement
// takes effect on its own day, before that day is valued. Funds without a
// price on a day are left out of that day's asset value, and funds missing
// either today's or the previous day's price contribute no gain.
func Value(movements []model.Movement, prices PriceBook, from, to time.Time) []Position {
	h := newHoldings(movements)
	days := model.Days(from, to)
	out := make([]Position, 0, len(days))

	for _, day := range days {
		h.advanceThrough(day)
		pos := Position{Date: day, HeldUnits: h.snapshot()}

		prev := day.AddDate(0, 0, -1)
		for fund, units := range pos.HeldUnits {
			today, ok := prices.Price(fund, day)
			if !ok {
				continue
			}
			pos.AssetValue = pos.AssetValue.Add(units.Mul(today))

			if yesterday, ok := prices.Price(fund, prev); ok {
				pos.DailyGain = pos.DailyGain.Add(units.Mul(today.Sub(yesterday)))
			}
		}
		out = append(out, pos)
	}
	return out
}
