// Package store defines the read interface over the reconciliation inputs:
// borrowing contracts, fund movements, fund prices, conversion rates and
// fund balances. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and synthetic data).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the read interface used by the reconciliation service.
// Dates are calendar days; ranges are inclusive.
type Store interface {
	// --- Reference data ---

	// ListPortfolios returns the distinct portfolio ids holding contracts.
	ListPortfolios(ctx context.Context) ([]string, error)

	// ListFunds returns all known funds.
	ListFunds(ctx context.Context) ([]model.Fund, error)

	// --- Borrowing ---

	// GetContracts returns contracts of portfolio (or every portfolio for
	// "all") whose activity overlaps [from, to], ordered by id.
	GetContracts(ctx context.Context, portfolio string, from, to time.Time) ([]model.Contract, error)

	// --- Fund ---

	// GetMovements returns the movement history of fundID, or of every fund
	// when fundID is empty, ordered by timestamp.
	GetMovements(ctx context.Context, fundID string) ([]model.Movement, error)

	// GetPrices returns the published unit prices of fundID in [from, to],
	// ordered by date.
	GetPrices(ctx context.Context, fundID string, from, to time.Time) ([]model.PricePoint, error)

	// GetFundBalance returns the current mark-to-market balance of fundID.
	GetFundBalance(ctx context.Context, fundID string) (decimal.Decimal, error)

	// --- Currency ---

	// GetConversionRates returns the native-per-target rates in [from, to].
	GetConversionRates(ctx context.Context, from, to time.Time) ([]model.ConversionRate, error)
}
