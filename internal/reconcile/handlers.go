package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/argos/carry-engine/internal/model"
)

// DefaultWindowDays is the window used when from is omitted.
const DefaultWindowDays = 30

// Routes mounts the request/response endpoints on r. The WebSocket
// endpoint is mounted separately by the caller.
func (s *Service) Routes(r chi.Router) {
	r.Get("/sources", s.ListSources)
	r.Get("/portfolios", s.ListPortfolios)
	r.Get("/funds", s.ListFunds)
	r.Get("/reconciliation", s.GetReconciliation)
}

// ListSources handles GET /api/v1/sources
func (s *Service) ListSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{"sources": s.Sources()})
}

// ListPortfolios handles GET /api/v1/portfolios?source=
func (s *Service) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	source := sourceParam(r)
	st, err := s.storeFor(source)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	portfolios, err := st.ListPortfolios(r.Context())
	if err != nil {
		slog.Error("list portfolios failed", "source", source, "err", err)
		writeError(w, "failed to list portfolios", http.StatusBadGateway)
		return
	}
	if portfolios == nil {
		portfolios = []string{}
	}
	writeJSON(w, map[string]interface{}{"source": source, "portfolios": portfolios})
}

// ListFunds handles GET /api/v1/funds?source=
func (s *Service) ListFunds(w http.ResponseWriter, r *http.Request) {
	source := sourceParam(r)
	st, err := s.storeFor(source)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	funds, err := st.ListFunds(r.Context())
	if err != nil {
		slog.Error("list funds failed", "source", source, "err", err)
		writeError(w, "failed to list funds", http.StatusBadGateway)
		return
	}
	if funds == nil {
		funds = []model.Fund{}
	}
	writeJSON(w, map[string]interface{}{"source": source, "funds": funds})
}

// GetReconciliation handles
// GET /api/v1/reconciliation?source=&portfolio=&fund=&from=&to=&balance=&currency=
func (s *Service) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.Reconcile(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, res)
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSourceUnavailable):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, "reconciliation timed out", http.StatusGatewayTimeout)
	default:
		slog.Error("reconciliation failed", "source", req.Source, "err", err)
		writeError(w, "reconciliation failed", http.StatusInternalServerError)
	}
}

func (s *Service) parseRequest(r *http.Request) (Request, error) {
	q := r.URL.Query()
	req := Request{
		Source:      sourceParam(r),
		PortfolioID: q.Get("portfolio"),
		FundID:      q.Get("fund"),
		Currency:    strings.ToUpper(q.Get("currency")),
	}

	req.To = model.Day(s.now())
	if v := q.Get("to"); v != "" {
		to, err := model.ParseDate(v)
		if err != nil {
			return req, fmt.Errorf("%w: to: %v", ErrInvalidRequest, err)
		}
		req.To = to
	}
	req.From = model.AddDays(req.To, -DefaultWindowDays)
	if v := q.Get("from"); v != "" {
		from, err := model.ParseDate(v)
		if err != nil {
			return req, fmt.Errorf("%w: from: %v", ErrInvalidRequest, err)
		}
		req.From = from
	}

	if v := q.Get("balance"); v != "" {
		balance, err := decimal.NewFromString(v)
		if err != nil {
			return req, fmt.Errorf("%w: balance: %v", ErrInvalidRequest, err)
		}
		req.Balance = decimal.NullDecimal{Decimal: balance, Valid: true}
	}
	return req, nil
}

// sourceParam reads ?source=, defaulting to the live source. Synthetic data
// is only ever served when asked for by name.
func sourceParam(r *http.Request) model.DataSource {
	if v := r.URL.Query().Get("source"); v != "" {
		return model.DataSource(strings.ToLower(v))
	}
	return model.SourceLive
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
