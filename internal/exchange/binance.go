package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"perpscope/internal/batch"
)

// BinanceAdapter covers USDT-margined perpetuals on Binance futures
// (fapi.binance.com). Prices, volume and funding come from two bulk calls;
// open interest and the funding-interval inference are per-symbol and run
// through the rate-limited batch runner.
type BinanceAdapter struct {
	HTTP   *http.Client
	Logger *zap.Logger

	BaseURL    string
	BatchSize  int
	BatchDelay time.Duration
}

func (a *BinanceAdapter) Name() Name { return Binance }

type binancePremium struct {
	markPrice       float64
	fundingRate     float64
	nextFundingTime int64
}

type binanceTicker struct {
	lastPrice   float64
	quoteVolume float64
}

func (a *BinanceAdapter) FetchPerps(ctx context.Context) []ContractSnapshot {
	symbols, err := a.fetchSymbols(ctx)
	if err != nil {
		a.warn("binance symbol universe fetch failed", err)
		return nil
	}
	if len(symbols) == 0 {
		return nil
	}

	premiums, err := a.fetchPremiums(ctx)
	if err != nil {
		a.warn("binance premium index fetch failed", err)
		premiums = map[string]binancePremium{}
	}
	tickers, err := a.fetchTickers(ctx)
	if err != nil {
		a.warn("binance 24h tickers fetch failed", err)
		tickers = map[string]binanceTicker{}
	}
	insurance, err := a.fetchInsurancePools(ctx)
	if err != nil {
		a.warn("binance insurance balance fetch failed", err)
		insurance = map[string]float64{}
	}
	intervalOverrides, err := a.fetchFundingIntervals(ctx)
	if err != nil {
		a.warn("binance funding info fetch failed", err)
		intervalOverrides = map[string]int{}
	}

	openInterest := make([]float64, len(symbols))
	intervals := make([]int, len(symbols))
	_ = batch.Run(ctx, len(symbols), batch.Options{Size: a.BatchSize, Delay: a.BatchDelay}, func(ctx context.Context, i int) {
		sym := symbols[i]

		oi, err := a.fetchOpenInterest(ctx, sym)
		if err != nil {
			a.warn("binance open interest fetch failed", err, zap.String("symbol", sym))
			oi = 0
		}
		openInterest[i] = oi

		if hours, ok := intervalOverrides[sym]; ok && hours >= 1 {
			intervals[i] = hours
			return
		}
		hours, err := a.inferFundingInterval(ctx, sym)
		if err != nil {
			a.warn("binance funding interval inference failed", err, zap.String("symbol", sym))
			hours = defaultFundingIntervalHours
		}
		intervals[i] = hours
	})

	out := make([]ContractSnapshot, 0, len(symbols))
	for i, sym := range symbols {
		prem := premiums[sym]
		tick := tickers[sym]
		if prem.markPrice <= 0 && tick.lastPrice <= 0 {
			continue
		}

		price := prem.markPrice
		if price <= 0 {
			price = tick.lastPrice
		}

		hours := intervals[i]
		if hours < 1 {
			hours = defaultFundingIntervalHours
		}

		out = append(out, ContractSnapshot{
			Symbol:                sym,
			MarkPrice:             prem.markPrice,
			LastPrice:             tick.lastPrice,
			OpenInterestContracts: openInterest[i],
			OpenInterestNotional:  openInterest[i] * price,
			InsuranceFundBalance:  insurance[sym],
			Volume24h:             tick.quoteVolume,
			FundingRate:           prem.fundingRate,
			NextFundingTime:       prem.nextFundingTime,
			FundingIntervalHours:  hours,
		})
	}
	return out
}

func (a *BinanceAdapter) fetchSymbols(ctx context.Context) ([]string, error) {
	var parsed struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
			QuoteAsset   string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := getJSON(ctx, a.HTTP, a.BaseURL+"/fapi/v1/exchangeInfo", &parsed); err != nil {
		return nil, err
	}
	var out []string
	for _, s := range parsed.Symbols {
		if s.Status != "TRADING" || s.ContractType != "PERPETUAL" || s.QuoteAsset != "USDT" {
			continue
		}
		out = append(out, s.Symbol)
	}
	return out, nil
}

func (a *BinanceAdapter) fetchPremiums(ctx context.Context) (map[string]binancePremium, error) {
	var parsed []struct {
		Symbol          string `json:"symbol"`
		MarkPrice       string `json:"markPrice"`
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	if err := getJSON(ctx, a.HTTP, a.BaseURL+"/fapi/v1/premiumIndex", &parsed); err != nil {
		return nil, err
	}
	out := make(map[string]binancePremium, len(parsed))
	for _, p := range parsed {
		out[p.Symbol] = binancePremium{
			markPrice:       parseFloat(p.MarkPrice),
			fundingRate:     parseFloat(p.LastFundingRate),
			nextFundingTime: p.NextFundingTime,
		}
	}
	return out, nil
}

func (a *BinanceAdapter) fetchTickers(ctx context.Context) (map[string]binanceTicker, error) {
	var parsed []struct {
		Symbol      string `json:"symbol"`
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := getJSON(ctx, a.HTTP, a.BaseURL+"/fapi/v1/ticker/24hr", &parsed); err != nil {
		return nil, err
	}
	out := make(map[string]binanceTicker, len(parsed))
	for _, t := range parsed {
		out[t.Symbol] = binanceTicker{
			lastPrice:   parseFloat(t.LastPrice),
			quoteVolume: parseFloat(t.QuoteVolume),
		}
	}
	return out, nil
}

// stablecoin margin assets counted toward a pool's quote-currency balance
var binanceInsuranceAssets = map[string]bool{
	"USDT":  true,
	"USDC":  true,
	"BUSD":  true,
	"FDUSD": true,
}

// fetchInsurancePools returns symbol -> insurance fund balance. Binance
// reports the fund as pools, each covering a list of symbols; every symbol in
// a pool is assigned the full pool balance. A symbol appearing in several
// pools keeps the largest balance seen (heuristic, see DESIGN.md).
func (a *BinanceAdapter) fetchInsurancePools(ctx context.Context) (map[string]float64, error) {
	var parsed []struct {
		Symbols []string `json:"symbols"`
		Assets  []struct {
			Asset         string `json:"asset"`
			MarginBalance string `json:"marginBalance"`
		} `json:"assets"`
	}
	if err := getJSON(ctx, a.HTTP, a.BaseURL+"/fapi/v1/insuranceBalance", &parsed); err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for _, pool := range parsed {
		var balance float64
		for _, asset := range pool.Assets {
			if binanceInsuranceAssets[asset.Asset] {
				balance += parseFloat(asset.MarginBalance)
			}
		}
		for _, sym := range pool.Symbols {
			if balance > out[sym] {
				out[sym] = balance
			}
		}
	}
	return out, nil
}

// fetchFundingIntervals returns the non-default settlement intervals Binance
// publishes in bulk. Symbols missing from the response fall back to
// timestamp inference.
func (a *BinanceAdapter) fetchFundingIntervals(ctx context.Context) (map[string]int, error) {
	var parsed []struct {
		Symbol               string `json:"symbol"`
		FundingIntervalHours int    `json:"fundingIntervalHours"`
	}
	if err := getJSON(ctx, a.HTTP, a.BaseURL+"/fapi/v1/fundingInfo", &parsed); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(parsed))
	for _, p := range parsed {
		out[p.Symbol] = p.FundingIntervalHours
	}
	return out, nil
}

func (a *BinanceAdapter) fetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	var parsed struct {
		OpenInterest string `json:"openInterest"`
	}
	url := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", a.BaseURL, symbol)
	if err := getJSON(ctx, a.HTTP, url, &parsed); err != nil {
		return 0, err
	}
	return parseFloat(parsed.OpenInterest), nil
}

// inferFundingInterval derives the settlement interval from the two most
// recent funding timestamps; Binance does not expose it in the bulk tickers.
func (a *BinanceAdapter) inferFundingInterval(ctx context.Context, symbol string) (int, error) {
	points, err := a.fetchFundingRates(ctx, symbol, 2)
	if err != nil {
		return 0, err
	}
	if len(points) < 2 {
		return defaultFundingIntervalHours, nil
	}
	return inferIntervalHours(points[0].Time, points[1].Time), nil
}

func (a *BinanceAdapter) FetchFundingHistory(ctx context.Context, symbol string) ([]FundingPoint, []Constituent, error) {
	points, err := a.fetchFundingRates(ctx, symbol, 100)
	if err != nil {
		return nil, nil, err
	}

	constituents, err := a.fetchConstituents(ctx, symbol)
	if err != nil {
		a.warn("binance index constituents fetch failed", err, zap.String("symbol", symbol))
		constituents = nil
	}
	return points, constituents, nil
}

func (a *BinanceAdapter) fetchFundingRates(ctx context.Context, symbol string, limit int) ([]FundingPoint, error) {
	var parsed []struct {
		FundingTime int64  `json:"fundingTime"`
		FundingRate string `json:"fundingRate"`
	}
	url := fmt.Sprintf("%s/fapi/v1/fundingRate?symbol=%s&limit=%d", a.BaseURL, symbol, limit)
	if err := getJSON(ctx, a.HTTP, url, &parsed); err != nil {
		return nil, err
	}
	out := make([]FundingPoint, 0, len(parsed))
	for _, p := range parsed {
		out = append(out, FundingPoint{Time: p.FundingTime, Rate: parseFloat(p.FundingRate)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (a *BinanceAdapter) fetchConstituents(ctx context.Context, symbol string) ([]Constituent, error) {
	var parsed struct {
		Constituents []struct {
			Exchange string `json:"exchange"`
			Symbol   string `json:"symbol"`
			Weight   string `json:"weight"`
		} `json:"constituents"`
	}
	url := fmt.Sprintf("%s/fapi/v1/constituents?symbol=%s", a.BaseURL, symbol)
	if err := getJSON(ctx, a.HTTP, url, &parsed); err != nil {
		return nil, err
	}
	out := make([]Constituent, 0, len(parsed.Constituents))
	for _, c := range parsed.Constituents {
		out = append(out, Constituent{
			Exchange: c.Exchange,
			Symbol:   c.Symbol,
			Weight:   parseFloat(c.Weight),
		})
	}
	return out, nil
}

func (a *BinanceAdapter) warn(msg string, err error, fields ...zap.Field) {
	if a.Logger == nil {
		return
	}
	a.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
