package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
	"github.com/argos/carry-engine/internal/timeline"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC and read back as TEXT for exact
// decimal precision.
//
// Tables: cauciones, funds, fund_prices, fund_movements, fund_balances,
// conversion_rates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store over an explicitly
// configured pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListPortfolios(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT portfolio_id FROM cauciones ORDER BY portfolio_id`)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListFunds(ctx context.Context) ([]model.Fund, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, COALESCE(ticker, ''), COALESCE(kind, '') FROM funds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	defer rows.Close()

	var out []model.Fund
	for rows.Next() {
		var f model.Fund
		if err := rows.Scan(&f.ID, &f.Name, &f.Ticker, &f.Kind); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetContracts(ctx context.Context, portfolio string, from, to time.Time) ([]model.Contract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portfolio_id, start_date, maturity_date,
		        principal::TEXT, rate::TEXT, tenor_days,
		        amount_due::TEXT, interest::TEXT
		 FROM cauciones
		 WHERE ($1::TEXT = $2::TEXT OR portfolio_id = $1)
		   AND start_date <= $4 AND maturity_date > $3
		 ORDER BY id`,
		portfolio, timeline.AllPortfolios, model.Day(from), model.Day(to))
	if err != nil {
		return nil, fmt.Errorf("get contracts %s: %w", portfolio, err)
	}
	defer rows.Close()

	return scanContracts(rows)
}

func (s *PostgresStore) GetMovements(ctx context.Context, fundID string) ([]model.Movement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fund_id, ts, kind, amount::TEXT, units::TEXT, COALESCE(reason, '')
		 FROM fund_movements
		 WHERE $1::TEXT = '' OR fund_id = $1
		 ORDER BY ts, id`, fundID)
	if err != nil {
		return nil, fmt.Errorf("get movements %s: %w", fundID, err)
	}
	defer rows.Close()
	return scanMovements(rows)
}

// scanMovements reads fund_movements rows. A row with an unknown kind fails
// the whole read.
func scanMovements(rows pgxRows) ([]model.Movement, error) {
	var out []model.Movement
	for rows.Next() {
		var m model.Movement
		var kind, amountS, unitsS string
		if err := rows.Scan(&m.ID, &m.FundID, &m.Timestamp, &kind, &amountS, &unitsS, &m.Reason); err != nil {
			return nil, err
		}
		var err error
		if m.Kind, err = model.ParseMovementKind(kind); err != nil {
			return nil, fmt.Errorf("movement %s: %w", m.ID, err)
		}
		if m.Amount, err = numeric("amount", amountS); err != nil {
			return nil, err
		}
		if m.Units, err = numeric("units", unitsS); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetPrices(ctx context.Context, fundID string, from, to time.Time) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fund_id, date, price::TEXT
		 FROM fund_prices
		 WHERE fund_id = $1 AND date BETWEEN $2 AND $3
		 ORDER BY date`, fundID, model.Day(from), model.Day(to))
	if err != nil {
		return nil, fmt.Errorf("get prices %s: %w", fundID, err)
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var priceS string
		if err := rows.Scan(&p.FundID, &p.Date, &priceS); err != nil {
			return nil, err
		}
		if p.Price, err = numeric("price", priceS); err != nil {
			return nil, err
		}
		p.Date = model.Day(p.Date)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetFundBalance(ctx context.Context, fundID string) (decimal.Decimal, error) {
	var balanceS string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::TEXT FROM fund_balances WHERE fund_id = $1`, fundID).
		Scan(&balanceS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("balance of fund %s: %w", fundID, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", fundID, err)
	}
	return numeric("balance", balanceS)
}

func (s *PostgresStore) GetConversionRates(ctx context.Context, from, to time.Time) ([]model.ConversionRate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, rate::TEXT
		 FROM conversion_rates
		 WHERE date BETWEEN $1 AND $2
		 ORDER BY date`, model.Day(from), model.Day(to))
	if err != nil {
		return nil, fmt.Errorf("get conversion rates: %w", err)
	}
	defer rows.Close()

	var out []model.ConversionRate
	for rows.Next() {
		var r model.ConversionRate
		var rateS string
		if err := rows.Scan(&r.Date, &rateS); err != nil {
			return nil, err
		}
		if r.Rate, err = numeric("rate", rateS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// pgxRows is the subset of pgx.Rows the scanners need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanContracts(rows pgxRows) ([]model.Contract, error) {
	var out []model.Contract
	for rows.Next() {
		var c model.Contract
		var principalS, rateS, dueS, interestS string

		if err := rows.Scan(&c.ID, &c.PortfolioID, &c.StartDate, &c.MaturityDate,
			&principalS, &rateS, &c.TenorDays, &dueS, &interestS); err != nil {
			return nil, err
		}

		var err error
		if c.Principal, err = numeric("principal", principalS); err != nil {
			return nil, err
		}
		if c.Rate, err = numeric("rate", rateS); err != nil {
			return nil, err
		}
		if c.AmountDue, err = numeric("amount_due", dueS); err != nil {
			return nil, err
		}
		if c.Interest, err = numeric("interest", interestS); err != nil {
			return nil, err
		}
		c.StartDate = model.Day(c.StartDate)
		c.MaturityDate = model.Day(c.MaturityDate)

		out = append(out, c)
	}
	return out, rows.Err()
}

func numeric(column, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %s: %w", column, err)
	}
	return v, nil
}
