package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/contract"
	"github.com/argos/carry-engine/internal/model"
)

// Synthetic demo data parameters.
const (
	SyntheticPortfolio = "demo"
	SyntheticFundID    = "galpa"
	SyntheticDays      = 30
)

var (
	syntheticPrincipal   = decimal.NewFromInt(20_000_000)
	syntheticRate        = decimal.NewFromInt(32)
	syntheticTenor       = 7
	syntheticStartPrice  = decimal.NewFromInt(100)
	syntheticFundGrowth  = decimal.NewFromFloat(0.40).Div(decimal.NewFromInt(365))
	syntheticRedemption  = decimal.NewFromInt(2_000_000)
	syntheticStartFX     = decimal.NewFromInt(1000)
	syntheticFXDrift     = decimal.NewFromFloat(0.0005)
	syntheticPriceDigits = int32(6)
)

// NewSynthetic builds a deterministic demo data set ending on today:
// rolling 7-day contracts of 20,000,000 at 32% over the last 30 days, a
// money-market fund priced from 100 compounding at 40% a year, the initial
// subscription funded by the first contract, a partial redemption five days
// before today, and a conversion series that skips Sundays.
func NewSynthetic(today time.Time) (*MemoryStore, error) {
	today = model.Day(today)
	start := model.AddDays(today, -SyntheticDays)
	st := NewMemoryStore()

	for day := start; day.Before(today); day = model.AddDays(day, syntheticTenor) {
		c, err := contract.New(uuid.New().String(), SyntheticPortfolio, day,
			syntheticPrincipal, syntheticRate, syntheticTenor)
		if err != nil {
			return nil, fmt.Errorf("synthetic contract %s: %w", model.DateKey(day), err)
		}
		if _, err := st.AddContract(*c); err != nil {
			return nil, err
		}
	}

	st.AddFund(model.Fund{
		ID:     SyntheticFundID,
		Name:   "Galileo Premium A",
		Ticker: "GALPA",
		Kind:   "money_market",
	})

	prices := make(map[string]decimal.Decimal)
	price := syntheticStartPrice
	growth := decimal.NewFromInt(1).Add(syntheticFundGrowth)
	for _, day := range model.Days(start, today) {
		prices[model.DateKey(day)] = price
		st.AddPrices(model.PricePoint{FundID: SyntheticFundID, Date: day, Price: price})
		price = price.Mul(growth).Round(syntheticPriceDigits)
	}

	subUnits := syntheticPrincipal.Div(syntheticStartPrice)
	if _, err := st.AddMovement(model.Movement{
		FundID:    SyntheticFundID,
		Timestamp: start,
		Kind:      model.Subscription,
		Amount:    syntheticPrincipal,
		Units:     subUnits,
		Reason:    "funding_caucion",
	}); err != nil {
		return nil, err
	}

	redeemDay := model.AddDays(today, -5)
	redeemUnits := syntheticRedemption.Div(prices[model.DateKey(redeemDay)]).Round(syntheticPriceDigits)
	if _, err := st.AddMovement(model.Movement{
		FundID:    SyntheticFundID,
		Timestamp: redeemDay,
		Kind:      model.Redemption,
		Amount:    syntheticRedemption,
		Units:     redeemUnits,
		Reason:    "retiro_activos",
	}); err != nil {
		return nil, err
	}

	held := subUnits.Sub(redeemUnits)
	st.SetFundBalance(SyntheticFundID, held.Mul(prices[model.DateKey(today)]).Round(2))

	fx := syntheticStartFX
	step := decimal.NewFromInt(1).Add(syntheticFXDrift)
	for _, day := range model.Days(start, today) {
		if day.Weekday() != time.Sunday {
			st.AddConversionRates(model.ConversionRate{Date: day, Rate: fx.Round(2)})
		}
		fx = fx.Mul(step)
	}

	return st, nil
}
