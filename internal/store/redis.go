package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Window-keyed inputs (contracts, prices, rates) are cached for the
// TTL. Movements are appended over time under a fixed key, so they, balances
// and reference lists always hit the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetContracts(ctx context.Context, portfolio string, from, to time.Time) ([]model.Contract, error) {
	return readThrough(ctx, s, contractsKey(portfolio, from, to), func() ([]model.Contract, error) {
		return s.primary.GetContracts(ctx, portfolio, from, to)
	})
}

func (s *CachedStore) GetPrices(ctx context.Context, fundID string, from, to time.Time) ([]model.PricePoint, error) {
	return readThrough(ctx, s, pricesKey(fundID, from, to), func() ([]model.PricePoint, error) {
		return s.primary.GetPrices(ctx, fundID, from, to)
	})
}

func (s *CachedStore) GetConversionRates(ctx context.Context, from, to time.Time) ([]model.ConversionRate, error) {
	return readThrough(ctx, s, ratesKey(from, to), func() ([]model.ConversionRate, error) {
		return s.primary.GetConversionRates(ctx, from, to)
	})
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetMovements(ctx context.Context, fundID string) ([]model.Movement, error) {
	return s.primary.GetMovements(ctx, fundID)
}

func (s *CachedStore) ListPortfolios(ctx context.Context) ([]string, error) {
	return s.primary.ListPortfolios(ctx)
}

func (s *CachedStore) ListFunds(ctx context.Context) ([]model.Fund, error) {
	return s.primary.ListFunds(ctx)
}

func (s *CachedStore) GetFundBalance(ctx context.Context, fundID string) (decimal.Decimal, error) {
	return s.primary.GetFundBalance(ctx, fundID)
}

// --- Cache helpers ---

// readThrough returns the cached value under key, or loads it from the
// primary and caches it. Redis errors degrade to a primary read.
func readThrough[T any](ctx context.Context, s *CachedStore, key string, load func() ([]T, error)) ([]T, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached []T
		if json.Unmarshal(data, &cached) == nil {
			return cached, nil
		}
	}

	// Cache miss: read from primary.
	fresh, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(fresh); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return fresh, nil
}

func contractsKey(portfolio string, from, to time.Time) string {
	return fmt.Sprintf("contracts:%s:%s:%s", portfolio, model.DateKey(from), model.DateKey(to))
}

func pricesKey(fundID string, from, to time.Time) string {
	return fmt.Sprintf("prices:%s:%s:%s", fundID, model.DateKey(from), model.DateKey(to))
}

func ratesKey(from, to time.Time) string {
	return fmt.Sprintf("rates:%s:%s", model.DateKey(from), model.DateKey(to))
}
