package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpscope/internal/aggregator"
	"perpscope/internal/exchange"
	"perpscope/internal/marketdata"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAdapter struct {
	name    exchange.Name
	snaps   []exchange.ContractSnapshot
	history []exchange.FundingPoint
	consts  []exchange.Constituent
	histErr error
}

func (a *stubAdapter) Name() exchange.Name { return a.name }
func (a *stubAdapter) FetchPerps(ctx context.Context) []exchange.ContractSnapshot {
	return a.snaps
}
func (a *stubAdapter) FetchFundingHistory(ctx context.Context, symbol string) ([]exchange.FundingPoint, []exchange.Constituent, error) {
	return a.history, a.consts, a.histErr
}

type stubResolver struct {
	entries map[string]marketdata.Entry
}

func (r *stubResolver) Resolve(ctx context.Context, symbols []string) map[string]marketdata.Entry {
	out := map[string]marketdata.Entry{}
	for _, s := range symbols {
		out[s] = r.entries[s]
	}
	return out
}

func newTestRouter(h *PerpHandler) *gin.Engine {
	r := gin.New()
	h.Register(r)
	return r
}

func get(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func mc(v float64) *float64 { return &v }

func testHandler() *PerpHandler {
	adapter := &stubAdapter{
		name: exchange.Binance,
		snaps: []exchange.ContractSnapshot{{
			Symbol:                "BTCUSDT",
			MarkPrice:             50000,
			OpenInterestContracts: 100,
			OpenInterestNotional:  5_000_000,
			InsuranceFundBalance:  500,
			FundingIntervalHours:  8,
		}},
		history: []exchange.FundingPoint{{Time: 1, Rate: 0.0001}, {Time: 2, Rate: 0.0002}},
		consts:  []exchange.Constituent{{Exchange: "binance", Symbol: "BTCUSDT", Weight: 1}},
	}
	resolver := &stubResolver{entries: map[string]marketdata.Entry{
		"BTCUSDT": {ID: "bitcoin", MarketCap: mc(1e12), FDV: mc(1.1e12)},
	}}
	return &PerpHandler{
		Aggregator: &aggregator.Service{Adapters: []exchange.Adapter{adapter}, Resolver: resolver},
		Resolver:   resolver,
	}
}

func TestListPerps(t *testing.T) {
	w, body := get(t, newTestRouter(testHandler()), "/api/perps")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.NotZero(t, body["timestamp"])

	data, ok := body["data"].([]any)
	require.True(t, ok, "data must be an array")
	require.Len(t, data, 1)
	record := data[0].(map[string]any)
	assert.Equal(t, "BTCUSDT", record["symbol"])
	assert.Equal(t, "binance", record["exchange"])
	assert.Equal(t, 5_000_000.0, record["openInterestValue"])
	assert.Equal(t, 0.01, record["fundOiRatio"])
	assert.Equal(t, 1e12, record["marketCap"])
}

func TestListPerps_AggregationFailure(t *testing.T) {
	h := &PerpHandler{Aggregator: &aggregator.Service{}} // no adapters -> error
	w, body := get(t, newTestRouter(h), "/api/perps")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
	data, ok := body["data"].([]any)
	require.True(t, ok, "failure must still carry an empty data array")
	assert.Empty(t, data)
}

func TestListPerps_ServesFreshSnapshot(t *testing.T) {
	h := testHandler()
	h.Snapshot = &aggregator.SnapshotCache{}
	h.MaxAge = time.Minute
	h.Snapshot.Refresh(context.Background(), h.Aggregator, nil)

	// Break the live path: if the snapshot were ignored the request would 502.
	h.Aggregator = &aggregator.Service{}

	w, body := get(t, newTestRouter(h), "/api/perps")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
}

func TestMarketData(t *testing.T) {
	w, body := get(t, newTestRouter(testHandler()), "/api/market-data?symbols=BTCUSDT,NOPEUSDT")

	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	btc := data["BTCUSDT"].(map[string]any)
	assert.Equal(t, 1e12, btc["marketCap"])
	assert.Equal(t, 1.1e12, btc["fdv"])

	nope := data["NOPEUSDT"].(map[string]any)
	assert.Nil(t, nope["marketCap"])
	assert.Nil(t, nope["fdv"])
}

func TestMarketData_MissingParam(t *testing.T) {
	for _, path := range []string{"/api/market-data", "/api/market-data?symbols=", "/api/market-data?symbols=,,"} {
		w, body := get(t, newTestRouter(testHandler()), path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, false, body["success"], path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestFundingHistory(t *testing.T) {
	w, body := get(t, newTestRouter(testHandler()), "/api/funding-history?symbol=BTCUSDT&exchange=binance")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, 1.0, first["time"])
	assert.Equal(t, 0.0001, first["rate"])

	consts := body["constituents"].([]any)
	require.Len(t, consts, 1)
}

func TestFundingHistory_ParamValidation(t *testing.T) {
	router := newTestRouter(testHandler())

	w, _ := get(t, router, "/api/funding-history?symbol=BTCUSDT")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = get(t, router, "/api/funding-history?exchange=binance")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := get(t, router, "/api/funding-history?symbol=BTCUSDT&exchange=okx")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "unknown exchange")
}

func TestFundingHistory_UpstreamFailure(t *testing.T) {
	adapter := &stubAdapter{name: exchange.Binance, histErr: errors.New("venue down")}
	h := &PerpHandler{
		Aggregator: &aggregator.Service{Adapters: []exchange.Adapter{adapter}},
		Resolver:   &stubResolver{},
	}

	w, body := get(t, newTestRouter(h), "/api/funding-history?symbol=BTCUSDT&exchange=binance")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, body["success"])
}
