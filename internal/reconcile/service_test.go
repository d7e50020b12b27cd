package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/argos/carry-engine/internal/contract"
	"github.com/argos/carry-engine/internal/metrics"
	"github.com/argos/carry-engine/internal/model"
	"github.com/argos/carry-engine/internal/reconcile"
	"github.com/argos/carry-engine/internal/spread"
	"github.com/argos/carry-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(n int) time.Time {
	return time.Date(2025, 3, 1+n, 0, 0, 0, 0, time.UTC)
}

const fundID = "fci"

// seedScenario loads one 7-day contract of 20,000,000 at 32% starting on
// day 0, funded into the fund at a unit price of 1000.
func seedScenario(t *testing.T, ms *store.MemoryStore) {
	t.Helper()
	c, err := contract.New("c1", "p1", day(0), d(20_000_000), d(32), 7)
	require.NoError(t, err)
	_, err = ms.AddContract(*c)
	require.NoError(t, err)

	ms.AddFund(model.Fund{ID: fundID, Name: "Money Market A"})
	for n, p := range []float64{999.04, 1000.0, 1000.96, 1001.92, 1002.88} {
		ms.AddPrices(model.PricePoint{FundID: fundID, Date: day(n - 1), Price: d(p)})
	}
	_, err = ms.AddMovement(model.Movement{
		FundID: fundID, Timestamp: day(0), Kind: model.Subscription,
		Amount: d(20_000_000), Units: d(20_000),
	})
	require.NoError(t, err)
	ms.SetFundBalance(fundID, d(20_000_000))
}

func newService(t *testing.T, hub *reconcile.WSHub) *reconcile.Service {
	t.Helper()
	engine, err := spread.New(spread.DefaultConfig())
	require.NoError(t, err)
	return reconcile.NewService(engine, hub)
}

// newTestEnv creates a Service with a seeded live in-memory store and a chi router.
func newTestEnv(t *testing.T) (*reconcile.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	seedScenario(t, ms)

	svc := newService(t, nil)
	svc.Register(model.SourceLive, ms)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return svc, ms, r
}

func scenarioRequest() reconcile.Request {
	return reconcile.Request{
		Source:      model.SourceLive,
		PortfolioID: "p1",
		FundID:      fundID,
		From:        day(0),
		To:          day(2),
	}
}

// --- Service ---

func TestReconcile_EndToEnd(t *testing.T) {
	svc, _, _ := newTestEnv(t)

	res, err := svc.Reconcile(context.Background(), scenarioRequest())
	require.NoError(t, err)
	assert.Empty(t, res.Degraded)

	require.Len(t, res.Daily, 3)
	first := res.Daily[0]
	assert.Equal(t, "17534.25", first.InterestCost.StringFixed(2))
	assert.True(t, first.AssetValue.Equal(d(20_000_000)))
	assert.Equal(t, 1, first.ActiveContracts)

	require.Len(t, res.Spread, 3)
	s := res.Spread[0]
	assert.Equal(t, "19200.00", s.FundReturn.Decimal.StringFixed(2))
	assert.Equal(t, "1665.75", s.Spread.Decimal.StringFixed(2))

	require.NotNil(t, res.Funding)
	assert.Equal(t, 3, res.Funding.Days)
	assert.True(t, res.Funding.AvgFundingRate.Equal(d(32)))

	require.NotNil(t, res.SpreadKPIs)
	assert.Equal(t, 3, res.SpreadKPIs.DaysAnalyzed)
	assert.Equal(t, model.StatusGreen, res.SpreadKPIs.RiskStatus)

	// 20M balance against a 23M minimum (20M × 1.15).
	require.NotNil(t, res.Coverage)
	assert.Equal(t, model.StatusYellow, res.Coverage.Status)
	assert.True(t, res.Coverage.MinimumBalance.Equal(d(23_000_000)))

	assert.Nil(t, res.Converted)
}

func TestReconcile_EmptyContracts(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	req := scenarioRequest()
	req.PortfolioID = "nobody"

	res, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)

	assert.NotNil(t, res.Daily)
	assert.Empty(t, res.Daily)
	assert.Empty(t, res.Spread)
	assert.Nil(t, res.Funding)
	assert.Nil(t, res.SpreadKPIs)
	assert.Nil(t, res.Coverage)
	assert.Empty(t, res.Degraded, "no data is not a failure")
}

func TestReconcile_Idempotent(t *testing.T) {
	svc, _, _ := newTestEnv(t)

	a, err := svc.Reconcile(context.Background(), scenarioRequest())
	require.NoError(t, err)
	b, err := svc.Reconcile(context.Background(), scenarioRequest())
	require.NoError(t, err)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestReconcile_BalanceOverride(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	req := scenarioRequest()
	req.Balance = decimal.NullDecimal{Decimal: d(10_000_000), Valid: true}

	res, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.FundBalance.Equal(d(10_000_000)))
	assert.True(t, res.Spread[0].CapitalProductive.Equal(d(10_000_000)))
}

func TestReconcile_MissingBalanceDegrades(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := newService(t, nil)
	svc.Register(model.SourceLive, ms)

	req := scenarioRequest()
	res, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{reconcile.InputFundBalance}, res.Degraded)
}

func TestReconcile_UnknownSourceNoFallback(t *testing.T) {
	synthetic := store.NewMemoryStore()
	seedScenario(t, synthetic)
	svc := newService(t, nil)
	svc.Register(model.SourceSynthetic, synthetic)

	_, err := svc.Reconcile(context.Background(), scenarioRequest())
	assert.ErrorIs(t, err, reconcile.ErrSourceUnavailable)
}

func TestReconcile_InvalidRequest(t *testing.T) {
	svc, _, _ := newTestEnv(t)

	req := scenarioRequest()
	req.From, req.To = day(5), day(1)
	_, err := svc.Reconcile(context.Background(), req)
	assert.ErrorIs(t, err, reconcile.ErrInvalidRequest)

	req = scenarioRequest()
	req.From = time.Time{}
	_, err = svc.Reconcile(context.Background(), req)
	assert.ErrorIs(t, err, reconcile.ErrInvalidRequest)

	req = scenarioRequest()
	req.Balance = decimal.NullDecimal{Decimal: d(-1), Valid: true}
	_, err = svc.Reconcile(context.Background(), req)
	assert.ErrorIs(t, err, reconcile.ErrInvalidRequest)
}

func TestReconcile_CancelledContext(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Reconcile(ctx, scenarioRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconcile_Currency(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	req := scenarioRequest()
	req.Currency = "USD"

	res, err := svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.Converted)
	assert.Equal(t, []string{reconcile.InputConversionRates}, res.Degraded)

	ms.AddConversionRates(
		model.ConversionRate{Date: day(0), Rate: d(1000)},
		model.ConversionRate{Date: day(2), Rate: d(1250)},
	)
	res, err = svc.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Degraded)
	require.NotNil(t, res.Converted)
	assert.Equal(t, "USD", res.Converted.Currency)
	require.Len(t, res.Converted.Daily, 3)
	assert.True(t, res.Converted.Daily[0].TotalDebt.Equal(d(20_000)))
	// Day 1 carries day 0's rate forward.
	assert.True(t, res.Converted.Daily[1].TotalDebt.Equal(d(20_000)))
	assert.True(t, res.Converted.Daily[2].TotalDebt.Equal(d(16_000)))
	require.NotNil(t, res.Converted.SpreadKPIs)
	assert.True(t, res.Converted.SpreadKPIs.MaxDailyLoss.Equal(d(8)))
}

// --- Degraded store reads ---

// mockStore is a testify mock implementation of store.Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListPortfolios(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) ListFunds(ctx context.Context) ([]model.Fund, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Fund), args.Error(1)
}

func (m *mockStore) GetContracts(ctx context.Context, portfolio string, from, to time.Time) ([]model.Contract, error) {
	args := m.Called(ctx, portfolio, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contract), args.Error(1)
}

func (m *mockStore) GetMovements(ctx context.Context, fundID string) ([]model.Movement, error) {
	args := m.Called(ctx, fundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Movement), args.Error(1)
}

func (m *mockStore) GetPrices(ctx context.Context, fundID string, from, to time.Time) ([]model.PricePoint, error) {
	args := m.Called(ctx, fundID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PricePoint), args.Error(1)
}

func (m *mockStore) GetFundBalance(ctx context.Context, fundID string) (decimal.Decimal, error) {
	args := m.Called(ctx, fundID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockStore) GetConversionRates(ctx context.Context, from, to time.Time) ([]model.ConversionRate, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ConversionRate), args.Error(1)
}

func TestReconcile_StoreFailuresDegrade(t *testing.T) {
	st := new(mockStore)
	down := errors.New("connection refused")
	st.On("GetContracts", mock.Anything, "p1", day(0), day(2)).Return(nil, down)
	st.On("GetMovements", mock.Anything, "").Return([]model.Movement{}, nil)
	st.On("GetFundBalance", mock.Anything, fundID).Return(d(1_000_000), nil)
	st.On("GetPrices", mock.Anything, fundID, day(-1), day(3)).Return(nil, down)

	svc := newService(t, nil)
	svc.Register(model.SourceLive, st)

	res, err := svc.Reconcile(context.Background(), scenarioRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{reconcile.InputContracts, reconcile.InputPrices + ":" + fundID}, res.Degraded)
	assert.Empty(t, res.Daily)
	assert.Nil(t, res.Funding)
	assert.True(t, res.FundBalance.Equal(d(1_000_000)))
	st.AssertExpectations(t)
}

func TestReconcile_PricesFetchedForHeldFunds(t *testing.T) {
	st := new(mockStore)
	st.On("GetContracts", mock.Anything, "all", day(0), day(0)).Return([]model.Contract{}, nil)
	st.On("GetMovements", mock.Anything, "").Return([]model.Movement{
		{FundID: "other", Timestamp: day(-3), Kind: model.Subscription, Units: d(1)},
	}, nil)
	st.On("GetPrices", mock.Anything, "other", day(-1), day(1)).Return([]model.PricePoint{}, nil)

	svc := newService(t, nil)
	svc.Register(model.SourceLive, st)

	res, err := svc.Reconcile(context.Background(), reconcile.Request{
		Source: model.SourceLive, From: day(0), To: day(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "all", res.PortfolioID)
	assert.Empty(t, res.Degraded)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "GetFundBalance", mock.Anything, mock.Anything)
}

func TestReconcile_InvalidContractFlaggedAndKept(t *testing.T) {
	c, err := contract.New("c1", "p1", day(0), d(20_000_000), d(32), 7)
	require.NoError(t, err)
	c.AmountDue = c.AmountDue.Add(d(5))

	st := new(mockStore)
	st.On("GetContracts", mock.Anything, "p1", day(0), day(2)).Return([]model.Contract{*c}, nil)
	st.On("GetMovements", mock.Anything, "").Return([]model.Movement{}, nil)

	svc := newService(t, nil)
	svc.Register(model.SourceLive, st)

	res, err := svc.Reconcile(context.Background(), reconcile.Request{
		Source: model.SourceLive, PortfolioID: "p1", From: day(0), To: day(2),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{reconcile.InputInvalidContracts}, res.Degraded)
	require.Len(t, res.Daily, 3)
	for _, rec := range res.Daily {
		assert.Equal(t, 1, rec.ActiveContracts)
		assert.True(t, rec.TotalDebt.Equal(d(20_000_000)))
	}
	st.AssertExpectations(t)
}

// --- Metrics ---

func TestReconcile_UnregisteredSourcesShareOneSeries(t *testing.T) {
	svc, _, _ := newTestEnv(t)
	ctx := context.Background()
	unknown := metrics.ReconciliationsTotal.WithLabelValues("unknown", "error")

	seriesBefore := testutil.CollectAndCount(metrics.ReconciliationsTotal)
	latencyBefore := testutil.CollectAndCount(metrics.ReconcileLatency)
	countBefore := testutil.ToFloat64(unknown)

	for i := 0; i < 20; i++ {
		req := scenarioRequest()
		req.Source = model.DataSource(fmt.Sprintf("junk-%d", i))
		_, err := svc.Reconcile(ctx, req)
		require.ErrorIs(t, err, reconcile.ErrSourceUnavailable)
	}

	assert.Equal(t, seriesBefore, testutil.CollectAndCount(metrics.ReconciliationsTotal))
	assert.LessOrEqual(t, testutil.CollectAndCount(metrics.ReconcileLatency), latencyBefore+1)
	assert.Equal(t, countBefore+20, testutil.ToFloat64(unknown))
}

// --- WebSocket ---

func TestReconcile_BroadcastsStatus(t *testing.T) {
	hub := reconcile.NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ms := store.NewMemoryStore()
	seedScenario(t, ms)
	svc := newService(t, hub)
	svc.Register(model.SourceLive, ms)

	r := chi.NewRouter()
	r.Get("/api/v1/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv.URL+"/api/v1/ws")
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err := svc.Reconcile(context.Background(), scenarioRequest())
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg reconcile.WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "reconciliation", msg.Type)
	assert.Equal(t, "live", msg.Source)
	assert.Equal(t, "GREEN", msg.RiskStatus)
	assert.Equal(t, "YELLOW", msg.CoverageStatus)
	assert.Equal(t, "2025-03-03", msg.Date)
}

// --- HTTP ---

func get(t *testing.T, router http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w
}

func TestGetReconciliation_OK(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/reconciliation?source=live&portfolio=p1&fund=fci&from=2025-03-01&to=2025-03-03&balance=20000000")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var res reconcile.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, model.SourceLive, res.Source)
	assert.Equal(t, "2025-03-01", res.From)
	require.Len(t, res.Spread, 3)
	assert.Equal(t, "1665.75", res.Spread[0].Spread.Decimal.StringFixed(2))
}

func TestGetReconciliation_EmptyWindowJSON(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/reconciliation?portfolio=nobody&from=2025-03-01&to=2025-03-03")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.JSONEq(t, `[]`, string(body["daily"]))
	assert.JSONEq(t, `null`, string(body["funding_kpis"]))
}

func TestGetReconciliation_Errors(t *testing.T) {
	_, _, router := newTestEnv(t)

	tests := []struct {
		name string
		url  string
		code int
	}{
		{"from after to", "/api/v1/reconciliation?from=2025-03-05&to=2025-03-01", http.StatusBadRequest},
		{"bad date", "/api/v1/reconciliation?from=03/01/2025", http.StatusBadRequest},
		{"bad balance", "/api/v1/reconciliation?to=2025-03-01&balance=lots", http.StatusBadRequest},
		{"unconfigured source", "/api/v1/reconciliation?source=synthetic&to=2025-03-01", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, tt.url)
			assert.Equal(t, tt.code, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestListEndpoints(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := get(t, router, "/api/v1/portfolios")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"source":"live","portfolios":["p1"]}`, w.Body.String())

	w = get(t, router, "/api/v1/funds?source=live")
	require.Equal(t, http.StatusOK, w.Code)
	var funds struct {
		Funds []model.Fund `json:"funds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &funds))
	require.Len(t, funds.Funds, 1)
	assert.Equal(t, fundID, funds.Funds[0].ID)

	w = get(t, router, "/api/v1/funds?source=synthetic")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, router, "/api/v1/sources")
	assert.JSONEq(t, `{"sources":["live"]}`, w.Body.String())
}
