// Package model defines the core domain types shared across the carry engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Contract is a borrowing contract (caución): a short-term collateralized loan
// with fixed principal, rate and maturity. Immutable once created.
type Contract struct {
	ID           string          `json:"id" db:"id"`
	PortfolioID  string          `json:"portfolio_id" db:"portfolio_id"`
	StartDate    time.Time       `json:"start_date" db:"start_date"`
	MaturityDate time.Time       `json:"maturity_date" db:"maturity_date"`
	Principal    decimal.Decimal `json:"principal" db:"principal"`
	Rate         decimal.Decimal `json:"rate" db:"rate"` // annual %, e.g. 32.0
	TenorDays    int             `json:"tenor_days" db:"tenor_days"`
	AmountDue    decimal.Decimal `json:"amount_due" db:"amount_due"` // principal + interest
	Interest     decimal.Decimal `json:"interest" db:"interest"`
}

// ActiveOn reports whether the contract is outstanding on day d.
// Activity window is half-open: [StartDate, MaturityDate). On a same-day
// rollover only the contract starting that day is active.
func (c Contract) ActiveOn(d time.Time) bool {
	d = Day(d)
	return !Day(c.StartDate).After(d) && Day(c.MaturityDate).After(d)
}

// Overlaps reports whether the activity window intersects [from, to].
func (c Contract) Overlaps(from, to time.Time) bool {
	return !Day(c.StartDate).After(Day(to)) && Day(c.MaturityDate).After(Day(from))
}

// Fund is a money-market fund instrument (FCI).
type Fund struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Ticker string `json:"ticker,omitempty" db:"ticker"`
	Kind   string `json:"kind,omitempty" db:"kind"` // "money_market", "t+1"
}

// PricePoint is a fund's net asset value per unit (VCP) on one date.
type PricePoint struct {
	FundID string          `json:"fund_id" db:"fund_id"`
	Date   time.Time       `json:"date" db:"date"`
	Price  decimal.Decimal `json:"price" db:"price"`
}

// MovementKind is the direction of a fund movement.
type MovementKind string

const (
	Subscription MovementKind = "SUBSCRIPTION"
	Redemption   MovementKind = "REDEMPTION"
)

// Movement is a subscription to or redemption from a fund.
type Movement struct {
	ID        string          `json:"id" db:"id"`
	FundID    string          `json:"fund_id" db:"fund_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Kind      MovementKind    `json:"kind" db:"kind"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Units     decimal.Decimal `json:"units" db:"units"`
	Reason    string          `json:"reason,omitempty" db:"reason"` // "funding_caucion", "retiro_activos"
}

// ParseMovementKind maps a stored movement kind to a MovementKind. It
// accepts the Spanish broker vocabulary (SUSCRIPCION, RESCATE) and is case
// insensitive.
func ParseMovementKind(s string) (MovementKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Subscription), "SUSCRIPCION", "SUSCRIPCIÓN":
		return Subscription, nil
	case string(Redemption), "RESCATE":
		return Redemption, nil
	}
	return "", fmt.Errorf("unknown movement kind %q", s)
}

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	return k == Subscription || k == Redemption
}

// UnitDelta returns the signed change in held units. Subscriptions add,
// redemptions subtract, regardless of the sign stored on Units. Unknown
// kinds do not move the balance.
func (m Movement) UnitDelta() decimal.Decimal {
	switch m.Kind {
	case Subscription:
		return m.Units.Abs()
	case Redemption:
		return m.Units.Abs().Neg()
	}
	return decimal.Zero
}

// ConversionRate is the price of one unit of the second currency in native
// currency on a date (e.g. ARS per USD).
type ConversionRate struct {
	Date time.Time       `json:"date" db:"date"`
	Rate decimal.Decimal `json:"rate" db:"rate"`
}

// DataSource selects where reconciliation inputs come from. Callers choose it
// explicitly; the engine never swaps one for the other.
type DataSource string

const (
	SourceLive      DataSource = "live"
	SourceSynthetic DataSource = "synthetic"
)
