package spread

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidConfig is returned when a risk configuration is rejected.
var ErrInvalidConfig = errors.New("spread: invalid risk configuration")

// Default risk parameters.
const DefaultCoverageWindowDays = 21

var (
	DefaultMaxDailyLoss     = decimal.NewFromInt(10000)
	DefaultCoverageMargin   = decimal.NewFromFloat(1.15)
	DefaultCoverageRedBelow = decimal.NewFromFloat(0.85)
	DefaultCoverageGreenAt  = decimal.NewFromFloat(1.05)
)

// Config holds the risk-sizing parameters of the engine.
type Config struct {
	// MaxDailyLoss is the largest tolerable daily loss, in native currency.
	MaxDailyLoss decimal.Decimal `json:"max_daily_loss" yaml:"max_daily_loss"`

	// CoverageWindowDays is the trailing window for the coverage reference.
	CoverageWindowDays int `json:"coverage_window_days" yaml:"coverage_window_days"`

	// CoverageMargin scales the P75 reference into a minimum operating balance.
	CoverageMargin decimal.Decimal `json:"coverage_margin" yaml:"coverage_margin"`

	// A coverage ratio below CoverageRedBelow is RED, at or above
	// CoverageGreenAt is GREEN, anything between is YELLOW.
	CoverageRedBelow decimal.Decimal `json:"coverage_red_below" yaml:"coverage_red_below"`
	CoverageGreenAt  decimal.Decimal `json:"coverage_green_at" yaml:"coverage_green_at"`
}

// DefaultConfig returns the stock risk parameters.
func DefaultConfig() Config {
	return Config{
		MaxDailyLoss:       DefaultMaxDailyLoss,
		CoverageWindowDays: DefaultCoverageWindowDays,
		CoverageMargin:     DefaultCoverageMargin,
		CoverageRedBelow:   DefaultCoverageRedBelow,
		CoverageGreenAt:    DefaultCoverageGreenAt,
	}
}

// Validate rejects configurations the engine cannot compute with.
func (c Config) Validate() error {
	if c.MaxDailyLoss.IsNegative() {
		return fmt.Errorf("%w: max daily loss %s is negative", ErrInvalidConfig, c.MaxDailyLoss)
	}
	if c.CoverageWindowDays <= 0 {
		return fmt.Errorf("%w: coverage window %d must be positive", ErrInvalidConfig, c.CoverageWindowDays)
	}
	if !c.CoverageMargin.IsPositive() {
		return fmt.Errorf("%w: coverage margin %s must be positive", ErrInvalidConfig, c.CoverageMargin)
	}
	if !c.CoverageRedBelow.IsPositive() || !c.CoverageGreenAt.IsPositive() {
		return fmt.Errorf("%w: coverage thresholds must be positive", ErrInvalidConfig)
	}
	if c.CoverageRedBelow.GreaterThan(c.CoverageGreenAt) {
		return fmt.Errorf("%w: red threshold %s above green threshold %s",
			ErrInvalidConfig, c.CoverageRedBelow, c.CoverageGreenAt)
	}
	return nil
}
