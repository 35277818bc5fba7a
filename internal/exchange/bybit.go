package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"perpscope/internal/batch"
)

// BybitAdapter covers USDT linear perpetuals on Bybit v5 (api.bybit.com).
// The bulk tickers call already carries mark/last price, funding rate and
// open interest, so per-symbol batches only fill the gaps: open interest for
// symbols the ticker omits and funding-interval inference for instruments
// that do not declare one.
type BybitAdapter struct {
	HTTP   *http.Client
	Logger *zap.Logger

	BaseURL    string
	BatchSize  int
	BatchDelay time.Duration
}

func (a *BybitAdapter) Name() Name { return Bybit }

type bybitInstrument struct {
	symbol        string
	intervalHours int
}

type bybitTicker struct {
	markPrice       float64
	lastPrice       float64
	fundingRate     float64
	nextFundingTime int64
	openInterest    float64
	turnover24h     float64
	hasOpenInterest bool
}

func (a *BybitAdapter) FetchPerps(ctx context.Context) []ContractSnapshot {
	instruments, err := a.fetchInstruments(ctx)
	if err != nil {
		a.warn("bybit instruments fetch failed", err)
		return nil
	}
	if len(instruments) == 0 {
		return nil
	}

	tickers, err := a.fetchTickers(ctx)
	if err != nil {
		a.warn("bybit tickers fetch failed", err)
		tickers = map[string]bybitTicker{}
	}
	insurance, err := a.fetchInsurancePools(ctx)
	if err != nil {
		a.warn("bybit insurance fetch failed", err)
		insurance = map[string]float64{}
	}

	// Gap fill: symbols whose ticker lacks open interest or whose
	// instrument metadata lacks a funding interval.
	type gap struct {
		index        int
		needOI       bool
		needInterval bool
	}
	var gaps []gap
	for i, inst := range instruments {
		g := gap{index: i}
		if t, ok := tickers[inst.symbol]; !ok || !t.hasOpenInterest {
			g.needOI = true
		}
		if inst.intervalHours < 1 {
			g.needInterval = true
		}
		if g.needOI || g.needInterval {
			gaps = append(gaps, g)
		}
	}

	openInterest := make([]float64, len(instruments))
	intervals := make([]int, len(instruments))
	_ = batch.Run(ctx, len(gaps), batch.Options{Size: a.BatchSize, Delay: a.BatchDelay}, func(ctx context.Context, i int) {
		g := gaps[i]
		sym := instruments[g.index].symbol

		if g.needOI {
			oi, err := a.fetchOpenInterest(ctx, sym)
			if err != nil {
				a.warn("bybit open interest fetch failed", err, zap.String("symbol", sym))
				oi = 0
			}
			openInterest[g.index] = oi
		}
		if g.needInterval {
			hours, err := a.inferFundingInterval(ctx, sym)
			if err != nil {
				a.warn("bybit funding interval inference failed", err, zap.String("symbol", sym))
				hours = defaultFundingIntervalHours
			}
			intervals[g.index] = hours
		}
	})

	out := make([]ContractSnapshot, 0, len(instruments))
	for i, inst := range instruments {
		tick := tickers[inst.symbol]
		if tick.markPrice <= 0 && tick.lastPrice <= 0 {
			continue
		}

		price := tick.markPrice
		if price <= 0 {
			price = tick.lastPrice
		}

		oi := tick.openInterest
		if !tick.hasOpenInterest {
			oi = openInterest[i]
		}

		hours := inst.intervalHours
		if hours < 1 {
			hours = intervals[i]
		}
		if hours < 1 {
			hours = defaultFundingIntervalHours
		}

		out = append(out, ContractSnapshot{
			Symbol:                inst.symbol,
			MarkPrice:             tick.markPrice,
			LastPrice:             tick.lastPrice,
			OpenInterestContracts: oi,
			OpenInterestNotional:  oi * price,
			InsuranceFundBalance:  insurance[inst.symbol],
			Volume24h:             tick.turnover24h,
			FundingRate:           tick.fundingRate,
			NextFundingTime:       tick.nextFundingTime,
			FundingIntervalHours:  hours,
		})
	}
	return out
}

// bybitEnvelope is the v5 response wrapper; retCode 0 means success.
func (a *BybitAdapter) getResult(ctx context.Context, path string, params url.Values, result any) error {
	u := a.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var parsed struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := getJSON(ctx, a.HTTP, u, &parsed); err != nil {
		return err
	}
	if parsed.RetCode != 0 {
		return fmt.Errorf("bybit retCode %d: %s", parsed.RetCode, parsed.RetMsg)
	}
	return json.Unmarshal(parsed.Result, result)
}

func (a *BybitAdapter) fetchInstruments(ctx context.Context) ([]bybitInstrument, error) {
	var out []bybitInstrument
	cursor := ""
	for {
		params := url.Values{}
		params.Set("category", "linear")
		params.Set("limit", "1000")
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var result struct {
			List []struct {
				Symbol          string `json:"symbol"`
				Status          string `json:"status"`
				ContractType    string `json:"contractType"`
				QuoteCoin       string `json:"quoteCoin"`
				FundingInterval int    `json:"fundingInterval"`
			} `json:"list"`
			NextPageCursor string `json:"nextPageCursor"`
		}
		if err := a.getResult(ctx, "/v5/market/instruments-info", params, &result); err != nil {
			return nil, err
		}
		for _, inst := range result.List {
			if inst.Status != "Trading" || inst.ContractType != "LinearPerpetual" || inst.QuoteCoin != "USDT" {
				continue
			}
			// fundingInterval is minutes; round to whole hours.
			hours := inst.FundingInterval / 60
			out = append(out, bybitInstrument{symbol: inst.Symbol, intervalHours: hours})
		}
		if result.NextPageCursor == "" || len(result.List) == 0 {
			return out, nil
		}
		cursor = result.NextPageCursor
	}
}

func (a *BybitAdapter) fetchTickers(ctx context.Context) (map[string]bybitTicker, error) {
	params := url.Values{}
	params.Set("category", "linear")
	var result struct {
		List []struct {
			Symbol          string `json:"symbol"`
			MarkPrice       string `json:"markPrice"`
			LastPrice       string `json:"lastPrice"`
			FundingRate     string `json:"fundingRate"`
			NextFundingTime string `json:"nextFundingTime"`
			OpenInterest    string `json:"openInterest"`
			Turnover24h     string `json:"turnover24h"`
		} `json:"list"`
	}
	if err := a.getResult(ctx, "/v5/market/tickers", params, &result); err != nil {
		return nil, err
	}
	out := make(map[string]bybitTicker, len(result.List))
	for _, t := range result.List {
		out[t.Symbol] = bybitTicker{
			markPrice:       parseFloat(t.MarkPrice),
			lastPrice:       parseFloat(t.LastPrice),
			fundingRate:     parseFloat(t.FundingRate),
			nextFundingTime: parseMs(t.NextFundingTime),
			openInterest:    parseFloat(t.OpenInterest),
			turnover24h:     parseFloat(t.Turnover24h),
			hasOpenInterest: t.OpenInterest != "",
		}
	}
	return out, nil
}

// fetchInsurancePools maps symbol -> insurance pool balance in quote value.
// Bybit reports one pool per margin coin with the symbols it covers; every
// covered symbol gets the full pool, the max wins on overlap.
func (a *BybitAdapter) fetchInsurancePools(ctx context.Context) (map[string]float64, error) {
	var result struct {
		List []struct {
			Coin    string `json:"coin"`
			Symbols string `json:"symbols"`
			Value   string `json:"value"`
		} `json:"list"`
	}
	if err := a.getResult(ctx, "/v5/market/insurance", nil, &result); err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for _, pool := range result.List {
		value := parseFloat(pool.Value)
		for _, sym := range strings.Split(pool.Symbols, ",") {
			sym = strings.TrimSpace(sym)
			if sym == "" {
				continue
			}
			if value > out[sym] {
				out[sym] = value
			}
		}
	}
	return out, nil
}

func (a *BybitAdapter) fetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("intervalTime", "5min")
	params.Set("limit", "1")
	var result struct {
		List []struct {
			OpenInterest string `json:"openInterest"`
		} `json:"list"`
	}
	if err := a.getResult(ctx, "/v5/market/open-interest", params, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, nil
	}
	return parseFloat(result.List[0].OpenInterest), nil
}

func (a *BybitAdapter) inferFundingInterval(ctx context.Context, symbol string) (int, error) {
	points, err := a.fetchFundingRates(ctx, symbol, 2)
	if err != nil {
		return 0, err
	}
	if len(points) < 2 {
		return defaultFundingIntervalHours, nil
	}
	return inferIntervalHours(points[0].Time, points[1].Time), nil
}

// FetchFundingHistory returns Bybit funding settlements oldest to newest.
// Bybit has no composite-index constituents endpoint, so that slice is
// always empty.
func (a *BybitAdapter) FetchFundingHistory(ctx context.Context, symbol string) ([]FundingPoint, []Constituent, error) {
	points, err := a.fetchFundingRates(ctx, symbol, 200)
	if err != nil {
		return nil, nil, err
	}
	return points, nil, nil
}

func (a *BybitAdapter) fetchFundingRates(ctx context.Context, symbol string, limit int) ([]FundingPoint, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("limit", fmt.Sprintf("%d", limit))
	var result struct {
		List []struct {
			FundingRate          string `json:"fundingRate"`
			FundingRateTimestamp string `json:"fundingRateTimestamp"`
		} `json:"list"`
	}
	if err := a.getResult(ctx, "/v5/market/funding/history", params, &result); err != nil {
		return nil, err
	}
	out := make([]FundingPoint, 0, len(result.List))
	for _, p := range result.List {
		out = append(out, FundingPoint{Time: parseMs(p.FundingRateTimestamp), Rate: parseFloat(p.FundingRate)})
	}
	// Bybit returns newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (a *BybitAdapter) warn(msg string, err error, fields ...zap.Field) {
	if a.Logger == nil {
		return
	}
	a.Logger.Warn(msg, append(fields, zap.Error(err))...)
}

// parseMs parses an epoch-milliseconds timestamp that Bybit serializes as a
// string.
func parseMs(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
