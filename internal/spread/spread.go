// Package spread computes the daily carry spread between a fund's lagged
// return and the funding cost of the debt that finances it, and derives
// risk-sizing signals from it: optimal capital under a maximum daily loss,
// a full-deployment counterfactual, a traffic-light status and a coverage
// ratio.
//
// The fund's price is published with a one-day lag, so the return earned on
// day d is measured from price(d) to price(d+1). Days at the tail of a
// window, or before non-trading days, therefore carry a null return.
package spread

import (
	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
	"github.com/argos/carry-engine/internal/valuation"
)

// Engine computes spread records under a validated risk configuration.
// It is stateless; one Engine may serve any number of calls.
type Engine struct {
	cfg Config
}

// New validates cfg and creates an engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's risk configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Compute returns one SpreadRecord per daily record. prices must contain the
// selected fund's series through the day after the last record. balance is
// the fund's current mark-to-market value, applied to every day.
func (e *Engine) Compute(days []model.DailyRecord, fundID string, prices valuation.PriceBook, balance decimal.Decimal) []model.SpreadRecord {
	if len(days) == 0 {
		return nil
	}

	out := make([]model.SpreadRecord, 0, len(days))
	for _, day := range days {
		rec := model.SpreadRecord{
			Date:        day.Date,
			FundingCost: day.InterestCost,
			FundBalance: balance,
			Debt:        day.TotalDebt,
		}
		if day.TotalDebt.IsPositive() {
			rec.CapitalProductive = decimal.Min(balance, day.TotalDebt)
		}

		ret, ok := laggedReturn(prices, fundID, day, balance)
		if ok {
			spread := ret.Sub(rec.FundingCost)
			rec.FundReturn = valid(ret)
			rec.Spread = valid(spread)

			netRate := decimal.Zero
			if rec.CapitalProductive.IsPositive() {
				netRate = spread.Div(rec.CapitalProductive)
			}
			rec.NetRate = valid(netRate)

			full := spread
			if balance.IsPositive() && day.TotalDebt.IsPositive() {
				full = ret.Div(balance).Mul(day.TotalDebt).Sub(rec.FundingCost)
			}
			rec.SpreadFull = valid(full)
			rec.OptimalCapital = valid(OptimalCapital(netRate, day.TotalDebt, e.cfg.MaxDailyLoss))
		}
		out = append(out, rec)
	}
	return out
}

// laggedReturn is balance × (price(d+1) − price(d)) / price(d).
func laggedReturn(prices valuation.PriceBook, fundID string, day model.DailyRecord, balance decimal.Decimal) (decimal.Decimal, bool) {
	today, ok := prices.Price(fundID, day.Date)
	if !ok || today.IsZero() {
		return decimal.Zero, false
	}
	next, ok := prices.Price(fundID, model.AddDays(day.Date, 1))
	if !ok {
		return decimal.Zero, false
	}
	return balance.Mul(next.Sub(today)).Div(today), true
}

// OptimalCapital is the largest exposure whose expected daily loss at
// netRate stays within maxLoss. A non-negative rate needs no reduction and
// keeps the current debt.
func OptimalCapital(netRate, debt, maxLoss decimal.Decimal) decimal.Decimal {
	if !netRate.IsNegative() {
		return debt
	}
	magnitude := netRate.Abs()
	if magnitude.IsZero() {
		return decimal.Zero
	}
	return maxLoss.Div(magnitude)
}

func valid(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v, Valid: true}
}
