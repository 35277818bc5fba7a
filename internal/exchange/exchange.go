// Package exchange contains one adapter per derivatives venue. Each adapter
// polls the venue's public REST endpoints and normalizes whatever it gets
// into ContractSnapshot; upstream failures degrade to empty or zero values so
// one bad sub-call never voids the venue's whole dataset.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

type Name string

const (
	Binance Name = "binance"
	Bybit   Name = "bybit"
)

func ParseName(s string) (Name, error) {
	switch Name(s) {
	case Binance, Bybit:
		return Name(s), nil
	}
	return "", fmt.Errorf("unknown exchange %q", s)
}

// ContractSnapshot is the normalized per-contract record every adapter emits.
// Monetary fields are quote-currency denominated and non-negative except
// FundingRate, which is fractional and may be negative.
type ContractSnapshot struct {
	Symbol                string
	MarkPrice             float64
	LastPrice             float64
	OpenInterestContracts float64
	OpenInterestNotional  float64
	InsuranceFundBalance  float64
	Volume24h             float64
	FundingRate           float64
	NextFundingTime       int64
	FundingIntervalHours  int
}

// FundingPoint is one settled funding rate. Time is epoch milliseconds.
type FundingPoint struct {
	Time int64   `json:"time"`
	Rate float64 `json:"rate"`
}

// Constituent is one weighted sub-instrument of an index-priced contract.
type Constituent struct {
	Exchange string  `json:"exchange"`
	Symbol   string  `json:"symbol"`
	Weight   float64 `json:"weight,omitempty"`
}

type Adapter interface {
	Name() Name

	// FetchPerps never fails: whole-venue trouble yields an empty slice,
	// per-symbol trouble yields zeroed fields on that symbol.
	FetchPerps(ctx context.Context) []ContractSnapshot

	// FetchFundingHistory returns settled funding points ordered oldest to
	// newest, plus the index constituents when the venue exposes them.
	// Constituents are best-effort; their absence is not an error.
	FetchFundingHistory(ctx context.Context, symbol string) ([]FundingPoint, []Constituent, error)
}

const defaultFundingIntervalHours = 8

// inferIntervalHours derives a funding interval from two consecutive
// settlement timestamps (epoch ms), rounded to the nearest whole hour and
// floored at 1. Used when a venue does not expose the interval directly.
func inferIntervalHours(earlierMs, laterMs int64) int {
	delta := laterMs - earlierMs
	if delta <= 0 {
		return defaultFundingIntervalHours
	}
	const hourMs = 3_600_000
	hours := int((delta + hourMs/2) / hourMs)
	if hours < 1 {
		return 1
	}
	return hours
}

// parseFloat parses a venue string-encoded number. Venues serialize prices
// and balances as JSON strings; shopspring keeps the intermediate exact.
// Malformed or empty input parses to 0.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
