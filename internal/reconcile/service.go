// Package reconcile runs the funding-carry reconciliation for a portfolio
// and fund over a date window, and serves it over HTTP and WebSocket.
//
// A run loads its inputs from the store registered for the requested data
// source, rebuilds the daily debt timeline and fund positions, merges them
// into carry records, and derives spread, risk and coverage signals.
// Failed store reads are reported in Result.Degraded and treated as empty
// input; they never cause a switch to another data source.
//
// All monetary values use shopspring/decimal, never float64.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/argos/carry-engine/internal/carry"
	"github.com/argos/carry-engine/internal/contract"
	"github.com/argos/carry-engine/internal/fx"
	"github.com/argos/carry-engine/internal/metrics"
	"github.com/argos/carry-engine/internal/model"
	"github.com/argos/carry-engine/internal/spread"
	"github.com/argos/carry-engine/internal/store"
	"github.com/argos/carry-engine/internal/timeline"
	"github.com/argos/carry-engine/internal/valuation"
)

var (
	// ErrInvalidRequest is returned for malformed reconciliation requests.
	ErrInvalidRequest = errors.New("reconcile: invalid request")

	// ErrSourceUnavailable is returned when no store is registered for the
	// requested data source.
	ErrSourceUnavailable = errors.New("reconcile: data source unavailable")
)

// Inputs reported in Result.Degraded.
const (
	InputContracts       = "contracts"
	InputMovements       = "movements"
	InputPrices          = "prices"
	InputFundBalance     = "fund_balance"
	InputConversionRates = "conversion_rates"

	// InputInvalidContracts marks a run whose contracts include at least
	// one that fails validation. Such contracts still count toward debt.
	InputInvalidContracts = InputContracts + ":invalid"

	// unknownSource labels metrics for requests naming no registered source.
	unknownSource = "unknown"
)

// Request selects what to reconcile.
type Request struct {
	Source      model.DataSource
	PortfolioID string // empty or "all" for every portfolio
	FundID      string // empty skips spread and coverage
	From        time.Time
	To          time.Time

	// Balance overrides the stored fund balance when valid.
	Balance decimal.NullDecimal

	// Currency requests a converted view; empty for native only.
	Currency string
}

// Result is one reconciliation run.
type Result struct {
	Source      model.DataSource      `json:"source"`
	PortfolioID string                `json:"portfolio_id"`
	FundID      string                `json:"fund_id,omitempty"`
	From        string                `json:"from"`
	To          string                `json:"to"`
	FundBalance decimal.Decimal       `json:"fund_balance"`
	PeriodRate  decimal.Decimal       `json:"period_rate"`
	Daily       []model.DailyRecord   `json:"daily"`
	Spread      []model.SpreadRecord  `json:"spread"`
	Funding     *model.FundingKPIs    `json:"funding_kpis"`
	SpreadKPIs  *model.SpreadKPIs     `json:"spread_kpis"`
	Coverage    *model.CoverageSignal `json:"coverage"`
	Converted   *fx.View              `json:"converted,omitempty"`
	Degraded    []string              `json:"degraded,omitempty"`
}

// Service orchestrates reconciliation runs. Stores are registered per data
// source at startup; a Service is safe for concurrent use afterwards.
type Service struct {
	sources map[model.DataSource]store.Store
	engine  *spread.Engine
	wsHub   *WSHub // optional WebSocket hub for status broadcasts
	now     func() time.Time
}

// NewService creates a reconciliation service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(engine *spread.Engine, hub *WSHub) *Service {
	return &Service{
		sources: make(map[model.DataSource]store.Store),
		engine:  engine,
		wsHub:   hub,
		now:     time.Now,
	}
}

// Register makes st the store for source.
func (s *Service) Register(source model.DataSource, st store.Store) {
	s.sources[source] = st
}

// Sources lists the registered data sources.
func (s *Service) Sources() []model.DataSource {
	out := make([]model.DataSource, 0, len(s.sources))
	for src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) storeFor(source model.DataSource) (store.Store, error) {
	st, ok := s.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceUnavailable, source)
	}
	return st, nil
}

// sourceLabel bounds metric cardinality to the registered sources.
func (s *Service) sourceLabel(source model.DataSource) string {
	if _, ok := s.sources[source]; !ok {
		return unknownSource
	}
	return string(source)
}

func (req *Request) validate() error {
	if req.From.IsZero() || req.To.IsZero() {
		return fmt.Errorf("%w: from and to are required", ErrInvalidRequest)
	}
	req.From, req.To = model.Day(req.From), model.Day(req.To)
	if req.To.Before(req.From) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidRequest,
			model.DateKey(req.From), model.DateKey(req.To))
	}
	if req.Balance.Valid && req.Balance.Decimal.IsNegative() {
		return fmt.Errorf("%w: balance must not be negative", ErrInvalidRequest)
	}
	if req.PortfolioID == "" {
		req.PortfolioID = timeline.AllPortfolios
	}
	return nil
}

// inputs holds everything a run reads from the store.
type inputs struct {
	contracts []model.Contract
	movements []model.Movement
	prices    []model.PricePoint
	rates     []model.ConversionRate
	balance   decimal.Decimal

	mu       sync.Mutex
	degraded []string
}

func (in *inputs) degrade(input string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.degraded = append(in.degraded, input)
}

// Reconcile runs the full pipeline for req.
func (s *Service) Reconcile(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := s.reconcile(ctx, req)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(res.Degraded) > 0:
		outcome = "degraded"
	}
	label := s.sourceLabel(req.Source)
	metrics.ReconciliationsTotal.WithLabelValues(label, outcome).Inc()
	metrics.ReconcileLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	s.publish(res)
	return res, nil
}

func (s *Service) reconcile(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	st, err := s.storeFor(req.Source)
	if err != nil {
		return nil, err
	}

	in, err := s.load(ctx, st, req)
	if err != nil {
		return nil, err
	}
	checkContracts(in, req)
	book := valuation.NewPriceBook(in.prices)

	// Timeline and valuation are independent; carry needs both.
	var days []model.DailyRecord
	var positions []valuation.Position
	var periodRate decimal.Decimal
	g := new(errgroup.Group)
	g.Go(func() error {
		days = timeline.Reconstruct(in.contracts, req.PortfolioID, req.From, req.To)
		periodRate = timeline.PeriodRate(in.contracts, req.PortfolioID, req.From, req.To)
		return nil
	})
	g.Go(func() error {
		positions = valuation.Value(in.movements, book, req.From, req.To)
		return nil
	})
	_ = g.Wait()

	daily := carry.Merge(days, positions)
	res := &Result{
		Source:      req.Source,
		PortfolioID: req.PortfolioID,
		FundID:      req.FundID,
		From:        model.DateKey(req.From),
		To:          model.DateKey(req.To),
		FundBalance: in.balance,
		PeriodRate:  periodRate,
		Daily:       nonNil(daily),
		Spread:      []model.SpreadRecord{},
		Funding:     carry.Summarize(daily, periodRate),
	}

	maxLoss := s.engine.Config().MaxDailyLoss
	if req.FundID != "" {
		res.Spread = nonNil(s.engine.Compute(daily, req.FundID, book, in.balance))
		res.SpreadKPIs = spread.Summarize(res.Spread, maxLoss)
		res.Coverage = s.engine.Coverage(daily, in.balance)
	}

	if req.Currency != "" {
		view, err := fx.Rebase(req.Currency, fx.Input{
			Daily:        res.Daily,
			Spread:       res.Spread,
			PeriodRate:   periodRate,
			MaxDailyLoss: maxLoss,
		}, in.rates)
		switch {
		case errors.Is(err, fx.ErrNoRates):
			slog.Warn("no conversion rates for window",
				"source", req.Source, "currency", req.Currency,
				"from", res.From, "to", res.To)
			in.degrade(InputConversionRates)
		case err != nil:
			return nil, err
		default:
			res.Converted = view
		}
	}

	sort.Strings(in.degraded)
	res.Degraded = in.degraded
	return res, nil
}

// checkContracts logs every loaded contract that fails validation and marks
// the run degraded. Invalid contracts are kept.
func checkContracts(in *inputs, req Request) {
	invalid := 0
	for i := range in.contracts {
		if err := contract.Validate(&in.contracts[i]); err != nil {
			slog.Warn("invalid contract",
				"source", req.Source, "portfolio", req.PortfolioID,
				"contract", in.contracts[i].ID, "err", err)
			invalid++
		}
	}
	if invalid > 0 {
		in.degrade(InputInvalidContracts)
	}
}

// load fetches the run's inputs. Store failures are logged, counted and
// recorded as degraded input; only cancellation of ctx aborts the run.
func (s *Service) load(ctx context.Context, st store.Store, req Request) (*inputs, error) {
	in := &inputs{}
	priceFrom, priceTo := model.AddDays(req.From, -1), model.AddDays(req.To, 1)

	fail := func(input string, err error) {
		slog.Error("store read failed",
			"source", req.Source, "input", input,
			"portfolio", req.PortfolioID, "fund", req.FundID, "err", err)
		metrics.StoreFailures.WithLabelValues(string(req.Source), input).Inc()
		in.degrade(input)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		contracts, err := st.GetContracts(gctx, req.PortfolioID, req.From, req.To)
		if err != nil {
			fail(InputContracts, err)
			return nil
		}
		in.contracts = contracts
		return nil
	})
	g.Go(func() error {
		movements, err := st.GetMovements(gctx, "")
		if err != nil {
			fail(InputMovements, err)
			return nil
		}
		in.movements = movements
		return nil
	})
	if req.Currency != "" {
		g.Go(func() error {
			rates, err := st.GetConversionRates(gctx, priceFrom, priceTo)
			if err != nil {
				fail(InputConversionRates, err)
				return nil
			}
			in.rates = rates
			return nil
		})
	}
	if req.FundID != "" {
		g.Go(func() error {
			if req.Balance.Valid {
				in.balance = req.Balance.Decimal
				return nil
			}
			balance, err := st.GetFundBalance(gctx, req.FundID)
			if err != nil {
				fail(InputFundBalance, err)
				return nil
			}
			in.balance = balance
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Prices for every fund held plus the selected one.
	funds := fundIDs(in.movements, req.FundID)
	series := make([][]model.PricePoint, len(funds))
	g, gctx = errgroup.WithContext(ctx)
	for i, fundID := range funds {
		i, fundID := i, fundID
		g.Go(func() error {
			points, err := st.GetPrices(gctx, fundID, priceFrom, priceTo)
			if err != nil {
				fail(InputPrices+":"+fundID, err)
				return nil
			}
			series[i] = points
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, points := range series {
		in.prices = append(in.prices, points...)
	}
	return in, nil
}

func fundIDs(movements []model.Movement, selected string) []string {
	seen := make(map[string]struct{})
	if selected != "" {
		seen[selected] = struct{}{}
	}
	for _, m := range movements {
		seen[m.FundID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// publish records the run's signals and broadcasts them to WebSocket clients.
func (s *Service) publish(res *Result) {
	msg := WSMessage{
		Type:        "reconciliation",
		Source:      string(res.Source),
		PortfolioID: res.PortfolioID,
		FundID:      res.FundID,
		From:        res.From,
		To:          res.To,
		Degraded:    res.Degraded,
	}
	if k := res.SpreadKPIs; k != nil {
		metrics.RiskStatus.WithLabelValues(string(res.Source), "spread").Set(metrics.StatusValue(k.RiskStatus))
		msg.Date = model.DateKey(k.LastDate)
		msg.RiskStatus = string(k.RiskStatus)
		msg.LastSpread = k.LastSpread.StringFixed(2)
		msg.Reduce = k.Sizing.Reduce
	}
	if c := res.Coverage; c != nil {
		metrics.RiskStatus.WithLabelValues(string(res.Source), "coverage").Set(metrics.StatusValue(c.Status))
		msg.CoverageStatus = string(c.Status)
		msg.CoverageRatio = c.Ratio.StringFixed(4)
	}

	slog.Info("reconciliation complete",
		"source", res.Source,
		"portfolio", res.PortfolioID,
		"fund", res.FundID,
		"from", res.From,
		"to", res.To,
		"days", len(res.Daily),
		"risk_status", msg.RiskStatus,
		"coverage_status", msg.CoverageStatus,
		"degraded", len(res.Degraded),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
