package fx

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argos/carry-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(n int) time.Time {
	return time.Date(2025, 3, 1+n, 0, 0, 0, 0, time.UTC)
}

func valid(f float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(f), Valid: true}
}

func series(values map[int]float64) []model.ConversionRate {
	var out []model.ConversionRate
	for n, v := range values {
		out = append(out, model.ConversionRate{Date: day(n), Rate: d(v)})
	}
	return out
}

func TestAlign_ForwardThenBackwardFill(t *testing.T) {
	rates := series(map[int]float64{1: 10, 3: 0, 4: 12})

	got, err := Align(rates, model.Days(day(0), day(4)))
	require.NoError(t, err)

	want := []float64{10, 10, 10, 10, 12}
	for i, w := range want {
		r, ok := got.Rate(day(i))
		require.True(t, ok, "day %d", i)
		assert.True(t, r.Equal(d(w)), "day %d: got %s", i, r)
	}
}

func TestAlign_NoUsableRates(t *testing.T) {
	_, err := Align(nil, []time.Time{day(0)})
	assert.ErrorIs(t, err, ErrNoRates)

	_, err = Align(series(map[int]float64{0: 0, 1: -3}), []time.Time{day(0)})
	assert.ErrorIs(t, err, ErrNoRates)
}

func TestNormalizeSpread_KeepsRatiosAndNulls(t *testing.T) {
	records := []model.SpreadRecord{
		{
			Date: day(0), FundingCost: d(10), FundBalance: d(1000), Debt: d(2000),
			CapitalProductive: d(1000), FundReturn: valid(30), Spread: valid(20),
			SpreadFull: valid(50), NetRate: valid(0.02), OptimalCapital: valid(2000),
		},
		{Date: day(1), FundingCost: d(10), Debt: d(2000)},
	}
	rates := Rates{model.DateKey(day(0)): d(2), model.DateKey(day(1)): d(4)}

	got := NormalizeSpread(records, rates)
	require.Len(t, got, 2)

	assert.True(t, got[0].FundingCost.Equal(d(5)))
	assert.True(t, got[0].FundBalance.Equal(d(500)))
	assert.True(t, got[0].Spread.Decimal.Equal(d(10)))
	assert.True(t, got[0].SpreadFull.Decimal.Equal(d(25)))
	assert.True(t, got[0].OptimalCapital.Decimal.Equal(d(1000)))
	assert.True(t, got[0].NetRate.Decimal.Equal(d(0.02)), "ratio is currency-free")

	assert.False(t, got[1].Spread.Valid)
	assert.True(t, got[1].Debt.Equal(d(500)))

	assert.True(t, records[0].Spread.Decimal.Equal(d(20)), "input left untouched")
}

func TestNormalizeDaily(t *testing.T) {
	days := []model.DailyRecord{{
		Date: day(0), TotalDebt: d(1000), WeightedRate: d(32), InterestCost: d(8),
		AssetValue: d(900), DailyGain: d(12), NetCarry: d(4), Utilization: d(0.9),
	}}

	got := NormalizeDaily(days, Rates{model.DateKey(day(0)): d(4)})
	require.Len(t, got, 1)
	assert.True(t, got[0].TotalDebt.Equal(d(250)))
	assert.True(t, got[0].InterestCost.Equal(d(2)))
	assert.True(t, got[0].AssetValue.Equal(d(225)))
	assert.True(t, got[0].DailyGain.Equal(d(3)))
	assert.True(t, got[0].NetCarry.Equal(d(1)))
	assert.True(t, got[0].WeightedRate.Equal(d(32)))
	assert.True(t, got[0].Utilization.Equal(d(0.9)))
}

func movingRateInput() Input {
	return Input{
		Daily: []model.DailyRecord{
			{Date: day(0), TotalDebt: d(1000), InterestCost: d(4), NetCarry: d(8)},
			{Date: day(1), TotalDebt: d(1000), InterestCost: d(4), NetCarry: d(8)},
		},
		Spread: []model.SpreadRecord{
			{Date: day(0), Spread: valid(100), SpreadFull: valid(100), FundReturn: valid(104), FundingCost: d(4), Debt: d(1000), CapitalProductive: d(1000), NetRate: valid(0.1)},
			{Date: day(1), Spread: valid(100), SpreadFull: valid(100), FundReturn: valid(104), FundingCost: d(4), Debt: d(1000), CapitalProductive: d(1000), NetRate: valid(0.1)},
		},
		PeriodRate:   d(30),
		MaxDailyLoss: d(1000),
	}
}

func TestRebase_AggregatesFromConvertedDays(t *testing.T) {
	in := movingRateInput()
	rates := series(map[int]float64{0: 1, 1: 4})

	view, err := Rebase("USD", in, rates)
	require.NoError(t, err)
	require.NotNil(t, view.SpreadKPIs)
	require.NotNil(t, view.Funding)

	assert.Equal(t, "USD", view.Currency)
	// 100/1 + 100/4
	assert.True(t, view.SpreadKPIs.AccumulatedSpread.Equal(d(125)), "got %s", view.SpreadKPIs.AccumulatedSpread)
	// Native total over the latest rate would be 200/4.
	assert.False(t, view.SpreadKPIs.AccumulatedSpread.Equal(d(50)))

	assert.True(t, view.Funding.AvgDebt.Equal(d(625)))
	assert.True(t, view.Funding.NetCarryAccum.Equal(d(10)))
	assert.True(t, view.SpreadKPIs.MaxDailyLoss.Equal(d(250)), "converted at last valid day")
	assert.True(t, view.SpreadKPIs.LastNetRate.Equal(d(0.1)))
}

func TestRebase_ReciprocalRoundTrip(t *testing.T) {
	in := movingRateInput()

	there, err := Rebase("USD", in, series(map[int]float64{0: 2, 1: 4}))
	require.NoError(t, err)

	back, err := Rebase("ARS", Input{
		Daily:        there.Daily,
		Spread:       there.Spread,
		PeriodRate:   in.PeriodRate,
		MaxDailyLoss: there.SpreadKPIs.MaxDailyLoss,
	}, series(map[int]float64{0: 0.5, 1: 0.25}))
	require.NoError(t, err)

	assert.True(t, back.SpreadKPIs.AccumulatedSpread.Equal(d(200)), "got %s", back.SpreadKPIs.AccumulatedSpread)
	assert.True(t, back.SpreadKPIs.MaxDailyLoss.Equal(d(1000)))
	assert.True(t, back.Funding.AvgDebt.Equal(d(1000)))
}

func TestRebase_NoRates(t *testing.T) {
	_, err := Rebase("USD", movingRateInput(), nil)
	assert.ErrorIs(t, err, ErrNoRates)
}

func TestRebase_EmptyInput(t *testing.T) {
	view, err := Rebase("USD", Input{}, series(map[int]float64{0: 2}))
	require.NoError(t, err)
	assert.Empty(t, view.Daily)
	assert.Nil(t, view.Funding)
	assert.Nil(t, view.SpreadKPIs)
}
