package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/contract"
	"github.com/argos/carry-engine/internal/model"
	"github.com/argos/carry-engine/internal/timeline"
)

// MemoryStore implements Store with in-memory maps. Used for testing,
// development and the synthetic data source. Not suitable for production
// (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[string]model.Contract
	funds     map[string]model.Fund
	movements []model.Movement
	prices    map[string][]model.PricePoint // by fund id
	rates     []model.ConversionRate
	balances  map[string]decimal.Decimal
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts: make(map[string]model.Contract),
		funds:     make(map[string]model.Fund),
		prices:    make(map[string][]model.PricePoint),
		balances:  make(map[string]decimal.Decimal),
	}
}

// --- Seeding ---

// AddContract validates and stores c. An empty id is replaced by a new UUID.
func (s *MemoryStore) AddContract(c model.Contract) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if err := contract.Validate(&c); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contracts[c.ID]; exists {
		return "", fmt.Errorf("contract %s already exists", c.ID)
	}
	s.contracts[c.ID] = c
	return c.ID, nil
}

// AddFund registers a fund.
func (s *MemoryStore) AddFund(f model.Fund) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funds[f.ID] = f
}

// AddMovement stores a fund movement. An empty id is replaced by a new UUID.
func (s *MemoryStore) AddMovement(m model.Movement) (string, error) {
	if m.FundID == "" {
		return "", fmt.Errorf("movement without fund id")
	}
	kind, err := model.ParseMovementKind(string(m.Kind))
	if err != nil {
		return "", err
	}
	m.Kind = kind
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, m)
	return m.ID, nil
}

// AddPrices stores price points, replacing any existing price for the same
// fund and day.
func (s *MemoryStore) AddPrices(points ...model.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		p.Date = model.Day(p.Date)
		series := s.prices[p.FundID]
		replaced := false
		for i := range series {
			if series[i].Date.Equal(p.Date) {
				series[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			series = append(series, p)
		}
		s.prices[p.FundID] = series
	}
}

// AddConversionRates stores conversion rates.
func (s *MemoryStore) AddConversionRates(rates ...model.ConversionRate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = append(s.rates, rates...)
}

// SetFundBalance sets the current balance of a fund.
func (s *MemoryStore) SetFundBalance(fundID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[fundID] = balance
}

// --- Store ---

func (s *MemoryStore) ListPortfolios(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range s.contracts {
		seen[c.PortfolioID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) ListFunds(_ context.Context) ([]model.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Fund, 0, len(s.funds))
	for _, f := range s.funds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetContracts(_ context.Context, portfolio string, from, to time.Time) ([]model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Contract
	for _, c := range s.contracts {
		if portfolio != timeline.AllPortfolios && c.PortfolioID != portfolio {
			continue
		}
		if c.Overlaps(from, to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetMovements(_ context.Context, fundID string) ([]model.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Movement
	for _, m := range s.movements {
		if fundID == "" || m.FundID == fundID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) GetPrices(_ context.Context, fundID string, from, to time.Time) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = model.Day(from), model.Day(to)
	var out []model.PricePoint
	for _, p := range s.prices[fundID] {
		if !p.Date.Before(from) && !p.Date.After(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) GetFundBalance(_ context.Context, fundID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[fundID]
	if !ok {
		return decimal.Zero, fmt.Errorf("balance of fund %s: %w", fundID, ErrNotFound)
	}
	return b, nil
}

func (s *MemoryStore) GetConversionRates(_ context.Context, from, to time.Time) ([]model.ConversionRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = model.Day(from), model.Day(to)
	var out []model.ConversionRate
	for _, r := range s.rates {
		day := model.Day(r.Date)
		if !day.Before(from) && !day.After(to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
