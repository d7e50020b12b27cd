package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyRecord is the reconstructed funding/asset state of one calendar day.
// Created fresh on every reconciliation; never persisted.
type DailyRecord struct {
	Date            time.Time                  `json:"date"`
	TotalDebt       decimal.Decimal            `json:"total_debt"`
	WeightedRate    decimal.Decimal            `json:"weighted_rate"` // principal-weighted, annual %
	InterestCost    decimal.Decimal            `json:"interest_cost"`
	ActiveContracts int                        `json:"active_contracts"`
	HeldUnits       map[string]decimal.Decimal `json:"held_units,omitempty"`
	AssetValue      decimal.Decimal            `json:"asset_value"`
	DailyGain       decimal.Decimal            `json:"daily_gain"`
	NetCarry        decimal.Decimal            `json:"net_carry"`
	Utilization     decimal.Decimal            `json:"utilization"` // asset value / debt
}

// SpreadRecord compares one day's lagged fund return with its funding cost.
// Nullable fields are invalid when the price data for the day is missing.
type SpreadRecord struct {
	Date              time.Time           `json:"date"`
	FundingCost       decimal.Decimal     `json:"funding_cost"`
	FundReturn        decimal.NullDecimal `json:"fund_return"`
	Spread            decimal.NullDecimal `json:"spread"`
	FundBalance       decimal.Decimal     `json:"fund_balance"`
	Debt              decimal.Decimal     `json:"debt"`
	CapitalProductive decimal.Decimal     `json:"capital_productive"`
	NetRate           decimal.NullDecimal `json:"net_rate"`
	SpreadFull        decimal.NullDecimal `json:"spread_full"`
	OptimalCapital    decimal.NullDecimal `json:"optimal_capital"`
}

// FundingKPIs aggregates the daily funding series over a window.
// A nil *FundingKPIs is the empty bundle.
type FundingKPIs struct {
	Days               int             `json:"days"`
	AvgDebt            decimal.Decimal `json:"avg_debt"`
	AvgAssets          decimal.Decimal `json:"avg_assets"`
	TotalInterest      decimal.Decimal `json:"total_interest"`
	NetCarryAccum      decimal.Decimal `json:"net_carry_accum"`
	ROBCPeriod         decimal.Decimal `json:"robc_period"`
	ROBCAnnual         decimal.Decimal `json:"robc_annual"`      // %
	AvgFundingRate     decimal.Decimal `json:"avg_funding_rate"` // period-level, annual %
	CurrentDebt        decimal.Decimal `json:"current_debt"`
	CurrentUtilization decimal.Decimal `json:"current_utilization"` // %
}

// RiskStatus is the traffic-light state of a carry position.
type RiskStatus string

const (
	StatusGreen  RiskStatus = "GREEN"
	StatusYellow RiskStatus = "YELLOW"
	StatusRed    RiskStatus = "RED"
)

// DaySpread pins a spread value to its date.
type DaySpread struct {
	Date   time.Time       `json:"date"`
	Spread decimal.Decimal `json:"spread"`
}

// Sizing is the exposure recommendation derived from the last valid day.
type Sizing struct {
	OptimalCapital decimal.Decimal `json:"optimal_capital"`
	CurrentDebt    decimal.Decimal `json:"current_debt"`
	Excess         decimal.Decimal `json:"excess"` // current debt - optimal capital
	Reduce         bool            `json:"reduce"`
}

// SpreadKPIs aggregates the spread series over days with a valid spread.
// A nil *SpreadKPIs is the empty bundle.
type SpreadKPIs struct {
	DaysAnalyzed          int             `json:"days_analyzed"`
	AccumulatedSpread     decimal.Decimal `json:"accumulated_spread"`
	AccumulatedSpreadFull decimal.Decimal `json:"accumulated_spread_full"`
	CarryLost             decimal.Decimal `json:"carry_lost"`
	TotalFundReturn       decimal.Decimal `json:"total_fund_return"`
	TotalFundingCost      decimal.Decimal `json:"total_funding_cost"`
	AvgCapitalProductive  decimal.Decimal `json:"avg_capital_productive"`
	ROIPeriod             decimal.Decimal `json:"roi_period"`     // %
	ROIAnnualized         decimal.Decimal `json:"roi_annualized"` // %
	PositiveDays          int             `json:"positive_days"`
	NegativeDays          int             `json:"negative_days"`
	BestDay               DaySpread       `json:"best_day"`
	WorstDay              DaySpread       `json:"worst_day"`

	// Snapshots of the last valid day, used by the risk signal.
	LastDate              time.Time       `json:"last_date"`
	LastSpread            decimal.Decimal `json:"last_spread"`
	LastNetRate           decimal.Decimal `json:"last_net_rate"`
	LastDebt              decimal.Decimal `json:"last_debt"`
	LastCapitalProductive decimal.Decimal `json:"last_capital_productive"`

	MaxDailyLoss decimal.Decimal `json:"max_daily_loss"`
	RiskStatus   RiskStatus      `json:"risk_status"`
	Sizing       Sizing          `json:"sizing"`
}

// CoverageSignal compares the fund balance with a risk-derived minimum
// operating balance.
type CoverageSignal struct {
	WindowDays     int             `json:"window_days"`
	ReferenceP75   decimal.Decimal `json:"reference_p75"`
	Margin         decimal.Decimal `json:"margin"`
	MinimumBalance decimal.Decimal `json:"minimum_balance"`
	Balance        decimal.Decimal `json:"balance"`
	Ratio          decimal.Decimal `json:"ratio"`
	Deficit        decimal.Decimal `json:"deficit"` // negative = surplus
	Status         RiskStatus      `json:"status"`
}
