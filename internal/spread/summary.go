package spread

import (
	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
)

// Summarize aggregates the records whose spread is known. maxLoss is the
// tolerable daily loss in the same currency as the records. Returns nil when
// no day has a valid spread.
func Summarize(records []model.SpreadRecord, maxLoss decimal.Decimal) *model.SpreadKPIs {
	k := &model.SpreadKPIs{MaxDailyLoss: maxLoss}

	var capital decimal.Decimal
	var last *model.SpreadRecord
	for i := range records {
		rec := &records[i]
		if !rec.Spread.Valid {
			continue
		}
		s := rec.Spread.Decimal

		k.DaysAnalyzed++
		k.AccumulatedSpread = k.AccumulatedSpread.Add(s)
		k.AccumulatedSpreadFull = k.AccumulatedSpreadFull.Add(rec.SpreadFull.Decimal)
		k.TotalFundReturn = k.TotalFundReturn.Add(rec.FundReturn.Decimal)
		k.TotalFundingCost = k.TotalFundingCost.Add(rec.FundingCost)
		capital = capital.Add(rec.CapitalProductive)

		switch {
		case s.IsPositive():
			k.PositiveDays++
		case s.IsNegative():
			k.NegativeDays++
		}

		if k.DaysAnalyzed == 1 || s.GreaterThan(k.BestDay.Spread) {
			k.BestDay = model.DaySpread{Date: rec.Date, Spread: s}
		}
		if k.DaysAnalyzed == 1 || s.LessThan(k.WorstDay.Spread) {
			k.WorstDay = model.DaySpread{Date: rec.Date, Spread: s}
		}
		last = rec
	}
	if last == nil {
		return nil
	}

	n := decimal.NewFromInt(int64(k.DaysAnalyzed))
	k.CarryLost = k.AccumulatedSpreadFull.Sub(k.AccumulatedSpread)
	k.AvgCapitalProductive = capital.Div(n)
	if k.AvgCapitalProductive.IsPositive() {
		k.ROIPeriod = k.AccumulatedSpread.Div(k.AvgCapitalProductive).Mul(hundred)
		k.ROIAnnualized = k.ROIPeriod.Mul(daysPerYear).Div(n)
	}

	k.LastDate = last.Date
	k.LastSpread = last.Spread.Decimal
	k.LastNetRate = last.NetRate.Decimal
	k.LastDebt = last.Debt
	k.LastCapitalProductive = last.CapitalProductive

	k.RiskStatus = Status(k.LastSpread, maxLoss)
	k.Sizing = SizingFor(k.LastNetRate, k.LastDebt, maxLoss)
	return k
}

// Status is the traffic light for a day's spread: GREEN when carry is
// positive, YELLOW for a loss within maxLoss, RED beyond it.
func Status(spread, maxLoss decimal.Decimal) model.RiskStatus {
	switch {
	case !spread.IsNegative():
		return model.StatusGreen
	case spread.Abs().LessThanOrEqual(maxLoss):
		return model.StatusYellow
	default:
		return model.StatusRed
	}
}

// SizingFor recommends the exposure for the next day. Reduce is set when the
// carry is losing money and the debt exceeds the optimal capital.
func SizingFor(netRate, debt, maxLoss decimal.Decimal) model.Sizing {
	optimal := OptimalCapital(netRate, debt, maxLoss)
	excess := debt.Sub(optimal)
	return model.Sizing{
		OptimalCapital: optimal,
		CurrentDebt:    debt,
		Excess:         excess,
		Reduce:         netRate.IsNegative() && excess.IsPositive(),
	}
}
