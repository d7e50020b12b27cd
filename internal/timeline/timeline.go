// Package timeline reconstructs the daily funding-debt timeline from a set of
// borrowing contracts: outstanding principal, principal-weighted rate and
// daily interest cost for every calendar day of a window.
//
// A contract is active on day d when StartDate <= d < MaturityDate. On a
// same-day rollover the maturing contract no longer counts and the new one
// does, so the rolled principal is never double counted.
package timeline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

// AllPortfolios matches contracts of every portfolio.
const AllPortfolios = "all"

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
)

// Reconstruct returns one DailyRecord skeleton per calendar day in [from, to].
// Only the funding fields are populated; asset fields are filled by the
// carry aggregator. An empty contract set (after filtering) yields nil.
func Reconstruct(contracts []model.Contract, portfolio string, from, to time.Time) []model.DailyRecord {
	selected := filter(contracts, portfolio)
	if len(selected) == 0 {
		return nil
	}

	days := model.Days(from, to)
	records := make([]model.DailyRecord, 0, len(days))
	for _, day := range days {
		records = append(records, dayRecord(selected, day))
	}
	return records
}

func dayRecord(contracts []model.Contract, day time.Time) model.DailyRecord {
	rec := model.DailyRecord{Date: day}

	weighted := decimal.Zero
	for _, c := range contracts {
		if !c.ActiveOn(day) {
			continue
		}
		rec.ActiveContracts++
		rec.TotalDebt = rec.TotalDebt.Add(c.Principal)
		weighted = weighted.Add(c.Rate.Mul(c.Principal))
	}

	if rec.TotalDebt.IsPositive() {
		rec.WeightedRate = weighted.Div(rec.TotalDebt)
		rec.InterestCost = rec.TotalDebt.Mul(rec.WeightedRate).Div(hundred).Div(daysPerYear)
	}
	return rec
}

// PeriodRate is the tenor-weighted funding rate of the window:
// Σ(principal×rate×tenor) / Σ(principal×tenor) over contracts whose activity
// interval overlaps [from, to]. It weights by contractual tenor rather than
// daily occurrence and is reported only as the window's average funding rate.
func PeriodRate(contracts []model.Contract, portfolio string, from, to time.Time) decimal.Decimal {
	num, den := decimal.Zero, decimal.Zero
	for _, c := range filter(contracts, portfolio) {
		if !c.Overlaps(from, to) {
			continue
		}
		w := c.Principal.Mul(decimal.NewFromInt(int64(c.TenorDays)))
		num = num.Add(w.Mul(c.Rate))
		den = den.Add(w)
	}
	if !den.IsPositive() {
		return decimal.Zero
	}
	return num.Div(den)
}

func filter(contracts []model.Contract, portfolio string) []model.Contract {
	if portfolio == "" || portfolio == AllPortfolios {
		return contracts
	}
	var out []model.Contract
	for _, c := range contracts {
		if c.PortfolioID == portfolio {
			out = append(out, c)
		}
	}
	return out
}
