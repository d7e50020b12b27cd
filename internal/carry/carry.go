// Package carry merges the daily funding timeline with the daily fund
// valuation and aggregates the window's funding KPIs.
package carry

import (
	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
	"github.com/argos/carry-engine/internal/valuation"
)

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
)

// Merge joins fund positions onto the funding days by date and derives net
// carry and utilization. Days without a matching position keep zero asset
// fields. The input slice is not modified.
func Merge(days []model.DailyRecord, positions []valuation.Position) []model.DailyRecord {
	if len(days) == 0 {
		return nil
	}

	byDate := make(map[string]valuation.Position, len(positions))
	for _, p := range positions {
		byDate[model.DateKey(p.Date)] = p
	}

	out := make([]model.DailyRecord, len(days))
	for i, rec := range days {
		if p, ok := byDate[model.DateKey(rec.Date)]; ok {
			rec.HeldUnits = p.HeldUnits
			rec.AssetValue = p.AssetValue
			rec.DailyGain = p.DailyGain
		}
		rec.NetCarry = rec.DailyGain.Sub(rec.InterestCost)
		rec.Utilization = decimal.Zero
		if rec.TotalDebt.IsPositive() {
			rec.Utilization = rec.AssetValue.Div(rec.TotalDebt)
		}
		out[i] = rec
	}
	return out
}

// Summarize aggregates the merged daily series. periodRate is the
// tenor-weighted funding rate of the window (see timeline.PeriodRate).
// Returns nil for an empty series.
func Summarize(days []model.DailyRecord, periodRate decimal.Decimal) *model.FundingKPIs {
	if len(days) == 0 {
		return nil
	}

	var debt, assets, interest, netCarry decimal.Decimal
	for _, rec := range days {
		debt = debt.Add(rec.TotalDebt)
		assets = assets.Add(rec.AssetValue)
		interest = interest.Add(rec.InterestCost)
		netCarry = netCarry.Add(rec.NetCarry)
	}

	n := decimal.NewFromInt(int64(len(days)))
	kpis := &model.FundingKPIs{
		Days:           len(days),
		AvgDebt:        debt.Div(n),
		AvgAssets:      assets.Div(n),
		TotalInterest:  interest,
		NetCarryAccum:  netCarry,
		AvgFundingRate: periodRate,
	}

	if kpis.AvgDebt.IsPositive() {
		kpis.ROBCPeriod = netCarry.Div(kpis.AvgDebt)
		kpis.ROBCAnnual = kpis.ROBCPeriod.Mul(daysPerYear).Div(n).Mul(hundred)
	}

	last := days[len(days)-1]
	kpis.CurrentDebt = last.TotalDebt
	kpis.CurrentUtilization = last.Utilization.Mul(hundred)
	return kpis
}
