// Package contract builds and validates borrowing contracts (cauciones):
// maturity from tenor, simple interest over a 365-day year, and the
// amount-due invariant.
package contract

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

var (
	ErrNegativePrincipal    = errors.New("contract: principal must not be negative")
	ErrNegativeRate         = errors.New("contract: rate must not be negative")
	ErrInvalidTenor         = errors.New("contract: tenor must be at least one day")
	ErrMaturityBeforeStart  = errors.New("contract: maturity must be after start")
	ErrAmountDueMismatch    = errors.New("contract: amount due must equal principal plus interest")
	ErrInterestMismatch     = errors.New("contract: interest does not match principal, rate and tenor")
)

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)

	// InterestTolerance is the largest accepted difference between recorded
	// and computed interest. Brokers round interest to cents.
	InterestTolerance = decimal.NewFromInt(1)
)

// Interest computes simple interest: principal × rate/100 × tenor/365.
func Interest(principal, rate decimal.Decimal, tenorDays int) decimal.Decimal {
	return principal.Mul(rate).Div(hundred).
		Mul(decimal.NewFromInt(int64(tenorDays))).Div(daysPerYear)
}

// New creates a contract starting on start and maturing tenorDays later.
// Interest is rounded to cents and AmountDue = Principal + Interest.
func New(id, portfolioID string, start time.Time, principal, rate decimal.Decimal, tenorDays int) (*model.Contract, error) {
	start = model.Day(start)
	interest := Interest(principal, rate, tenorDays).Round(2)
	c := &model.Contract{
		ID:           id,
		PortfolioID:  portfolioID,
		StartDate:    start,
		MaturityDate: model.AddDays(start, tenorDays),
		Principal:    principal,
		Rate:         rate,
		TenorDays:    tenorDays,
		Interest:     interest,
		AmountDue:    principal.Add(interest),
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks a contract's structural and arithmetic invariants.
func Validate(c *model.Contract) error {
	if c.Principal.IsNegative() {
		return fmt.Errorf("%w: %s (contract %s)", ErrNegativePrincipal, c.Principal, c.ID)
	}
	if c.Rate.IsNegative() {
		return fmt.Errorf("%w: %s (contract %s)", ErrNegativeRate, c.Rate, c.ID)
	}
	if c.TenorDays < 1 {
		return fmt.Errorf("%w: %d (contract %s)", ErrInvalidTenor, c.TenorDays, c.ID)
	}
	if !model.Day(c.MaturityDate).After(model.Day(c.StartDate)) {
		return fmt.Errorf("%w: %s <= %s (contract %s)", ErrMaturityBeforeStart,
			model.DateKey(c.MaturityDate), model.DateKey(c.StartDate), c.ID)
	}
	if !c.AmountDue.Equal(c.Principal.Add(c.Interest)) {
		return fmt.Errorf("%w: %s != %s + %s (contract %s)", ErrAmountDueMismatch,
			c.AmountDue, c.Principal, c.Interest, c.ID)
	}
	expected := Interest(c.Principal, c.Rate, c.TenorDays)
	if c.Interest.Sub(expected).Abs().GreaterThan(InterestTolerance) {
		return fmt.Errorf("%w: recorded %s, expected %s (contract %s)", ErrInterestMismatch,
			c.Interest, expected.Round(2), c.ID)
	}
	return nil
}
