package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func bybitFixtureMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v5/market/instruments-info", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BTCUSDT","status":"Trading","contractType":"LinearPerpetual","quoteCoin":"USDT","fundingInterval":480},
			{"symbol":"ETHUSDT","status":"Trading","contractType":"LinearPerpetual","quoteCoin":"USDT","fundingInterval":0},
			{"symbol":"BTCPERP","status":"Trading","contractType":"LinearPerpetual","quoteCoin":"USDC","fundingInterval":480},
			{"symbol":"BTC-26SEP25","status":"Trading","contractType":"LinearFutures","quoteCoin":"USDT","fundingInterval":0},
			{"symbol":"DEADUSDT","status":"Closed","contractType":"LinearPerpetual","quoteCoin":"USDT","fundingInterval":480}
		],"nextPageCursor":""}}`)
	})
	mux.HandleFunc("/v5/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BTCUSDT","markPrice":"50000","lastPrice":"50010","fundingRate":"0.0001","nextFundingTime":"1700000000000","openInterest":"100","turnover24h":"123456789"},
			{"symbol":"ETHUSDT","markPrice":"3000","lastPrice":"2999","fundingRate":"-0.0002","nextFundingTime":"1700000000000","openInterest":"","turnover24h":"9876543"}
		]}}`)
	})
	mux.HandleFunc("/v5/market/insurance", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"coin":"USDT","symbols":"BTCUSDT,ETHUSDT","balance":"900000","value":"1000000"},
			{"coin":"USDT","symbols":"BTCUSDT","balance":"1","value":"250000"}
		]}}`)
	})
	mux.HandleFunc("/v5/market/open-interest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"openInterest":"2000","timestamp":"1700000000000"}]}}`)
	})
	mux.HandleFunc("/v5/market/funding/history", func(w http.ResponseWriter, r *http.Request) {
		// Newest first, 4h apart, as Bybit returns it.
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"fundingRate":"0.0002","fundingRateTimestamp":"1700000000000"},
			{"fundingRate":"0.0001","fundingRateTimestamp":"1699985600000"}
		]}}`)
	})
	return mux
}

func newBybitTestAdapter(t *testing.T, override *http.ServeMux) *BybitAdapter {
	t.Helper()
	base := bybitFixtureMux()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if override != nil {
			if h, pattern := override.Handler(r); pattern != "" {
				h.ServeHTTP(w, r)
				return
			}
		}
		base.ServeHTTP(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &BybitAdapter{
		HTTP:      srv.Client(),
		BaseURL:   srv.URL,
		BatchSize: 5,
	}
}

func TestBybitFetchPerps(t *testing.T) {
	a := newBybitTestAdapter(t, nil)
	snaps := a.FetchPerps(context.Background())

	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2 (only trading USDT linear perps)", len(snaps))
	}

	btc := findSnapshot(t, snaps, "BTCUSDT")
	if btc.FundingIntervalHours != 8 {
		t.Fatalf("btc interval = %d, want 8 from instrument metadata", btc.FundingIntervalHours)
	}
	if btc.OpenInterestContracts != 100 {
		t.Fatalf("btc OI = %v, want from bulk ticker", btc.OpenInterestContracts)
	}
	if btc.OpenInterestNotional != 100*50000 {
		t.Fatalf("btc notional = %v", btc.OpenInterestNotional)
	}
	// USD value of the pool, full amount per covered symbol.
	if btc.InsuranceFundBalance != 1000000 {
		t.Fatalf("btc insurance = %v, want max pool 1000000", btc.InsuranceFundBalance)
	}

	eth := findSnapshot(t, snaps, "ETHUSDT")
	// Ticker had empty openInterest, so the per-symbol endpoint filled it.
	if eth.OpenInterestContracts != 2000 {
		t.Fatalf("eth OI = %v, want 2000 from per-symbol call", eth.OpenInterestContracts)
	}
	// fundingInterval 0 in metadata, so it was inferred from history (4h).
	if eth.FundingIntervalHours != 4 {
		t.Fatalf("eth interval = %d, want inferred 4", eth.FundingIntervalHours)
	}
	if eth.InsuranceFundBalance != 1000000 {
		t.Fatalf("eth insurance = %v, want full shared pool", eth.InsuranceFundBalance)
	}
}

func TestBybitFetchPerps_RetCodeErrorAbortsVenue(t *testing.T) {
	override := http.NewServeMux()
	override.HandleFunc("/v5/market/instruments-info", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10006,"retMsg":"rate limit","result":{}}`)
	})
	snaps := newBybitTestAdapter(t, override).FetchPerps(context.Background())
	if len(snaps) != 0 {
		t.Fatalf("got %d snapshots, want 0 when the instrument universe fails", len(snaps))
	}
}

func TestBybitFetchPerps_InsuranceFailureDegradesToZero(t *testing.T) {
	override := http.NewServeMux()
	override.HandleFunc("/v5/market/insurance", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	snaps := newBybitTestAdapter(t, override).FetchPerps(context.Background())
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want venue data despite insurance failure", len(snaps))
	}
	for _, s := range snaps {
		if s.InsuranceFundBalance != 0 {
			t.Fatalf("%s insurance = %v, want 0", s.Symbol, s.InsuranceFundBalance)
		}
	}
}

func TestBybitFundingHistory_OldestToNewest(t *testing.T) {
	a := newBybitTestAdapter(t, nil)
	points, constituents, err := a.FetchFundingHistory(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].Time != 1699985600000 || points[1].Time != 1700000000000 {
		t.Fatalf("points not reordered oldest-to-newest: %+v", points)
	}
	if len(constituents) != 0 {
		t.Fatalf("bybit has no constituents, got %+v", constituents)
	}
}

func TestBybitInstrumentsPagination(t *testing.T) {
	page := 0
	override := http.NewServeMux()
	override.HandleFunc("/v5/market/instruments-info", func(w http.ResponseWriter, r *http.Request) {
		page++
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
				{"symbol":"AUSDT","status":"Trading","contractType":"LinearPerpetual","quoteCoin":"USDT","fundingInterval":480}
			],"nextPageCursor":"page2"}}`)
			return
		}
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BUSDT","status":"Trading","contractType":"LinearPerpetual","quoteCoin":"USDT","fundingInterval":480}
		],"nextPageCursor":""}}`)
	})
	override.HandleFunc("/v5/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"AUSDT","markPrice":"1","lastPrice":"1","fundingRate":"0","nextFundingTime":"0","openInterest":"5","turnover24h":"1"},
			{"symbol":"BUSDT","markPrice":"2","lastPrice":"2","fundingRate":"0","nextFundingTime":"0","openInterest":"5","turnover24h":"1"}
		]}}`)
	})
	snaps := newBybitTestAdapter(t, override).FetchPerps(context.Background())
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want both pages merged", len(snaps))
	}
	if page != 2 {
		t.Fatalf("made %d instrument calls, want 2", page)
	}
}
