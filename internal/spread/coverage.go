package spread

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

var p75 = decimal.NewFromFloat(0.75)

// Coverage compares balance with the minimum operating balance: the 75th
// percentile of daily outstanding debt over the trailing coverage window,
// scaled by the coverage margin. Returns nil when there are no records or
// the window carried no debt.
func (e *Engine) Coverage(days []model.DailyRecord, balance decimal.Decimal) *model.CoverageSignal {
	if len(days) == 0 {
		return nil
	}

	window := days
	if len(window) > e.cfg.CoverageWindowDays {
		window = window[len(window)-e.cfg.CoverageWindowDays:]
	}
	debts := make([]decimal.Decimal, len(window))
	for i, rec := range window {
		debts[i] = rec.TotalDebt
	}

	ref := Percentile(debts, p75)
	minimum := ref.Mul(e.cfg.CoverageMargin)
	if !minimum.IsPositive() {
		return nil
	}

	ratio := balance.Div(minimum)
	return &model.CoverageSignal{
		WindowDays:     len(window),
		ReferenceP75:   ref,
		Margin:         e.cfg.CoverageMargin,
		MinimumBalance: minimum,
		Balance:        balance,
		Ratio:          ratio,
		Deficit:        minimum.Sub(balance),
		Status:         e.coverageStatus(ratio),
	}
}

func (e *Engine) coverageStatus(ratio decimal.Decimal) model.RiskStatus {
	switch {
	case ratio.LessThan(e.cfg.CoverageRedBelow):
		return model.StatusRed
	case ratio.GreaterThanOrEqual(e.cfg.CoverageGreenAt):
		return model.StatusGreen
	default:
		return model.StatusYellow
	}
}

// Percentile returns the q-th quantile (0..1) of values using linear
// interpolation between closest ranks. Zero for an empty slice.
func Percentile(values []decimal.Decimal, q decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	pos := q.Mul(decimal.NewFromInt(int64(len(sorted) - 1)))
	lo := int(pos.IntPart())
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos.Sub(decimal.NewFromInt(int64(lo)))
	return sorted[lo].Add(sorted[lo+1].Sub(sorted[lo]).Mul(frac))
}
