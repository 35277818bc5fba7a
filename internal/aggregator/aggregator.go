// Package aggregator fans out to every exchange adapter, merges the venues'
// snapshots into unified per-contract records, and enriches them with one
// batched market-data lookup.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"perpscope/internal/exchange"
	"perpscope/internal/marketdata"
	"perpscope/internal/models"
)

// MarketData is what the aggregator needs from the market-data resolver;
// *marketdata.Resolver satisfies it, tests substitute a deterministic fake.
type MarketData interface {
	Resolve(ctx context.Context, symbols []string) map[string]marketdata.Entry
}

type Service struct {
	Adapters []exchange.Adapter
	Resolver MarketData
	Logger   *zap.Logger
}

// Aggregate runs all adapters concurrently, merges their output keyed by
// (symbol, exchange) and writes market data onto every record. Record order
// is unspecified; the dashboard sorts client-side. A venue that fails
// outright simply contributes nothing this cycle.
func (s *Service) Aggregate(ctx context.Context) ([]models.UnifiedPerpRecord, error) {
	if len(s.Adapters) == 0 {
		return nil, errors.New("no exchange adapters configured")
	}

	venueSnaps := make([][]exchange.ContractSnapshot, len(s.Adapters))
	var wg sync.WaitGroup
	for i, adapter := range s.Adapters {
		wg.Add(1)
		go func(i int, adapter exchange.Adapter) {
			defer wg.Done()
			// Adapters absorb their own failures; the recover is the
			// outer guard so one faulting venue cannot sink the pass.
			defer func() {
				if rec := recover(); rec != nil && s.Logger != nil {
					s.Logger.Error("exchange adapter panicked",
						zap.String("exchange", string(adapter.Name())),
						zap.Any("panic", rec))
				}
			}()
			venueSnaps[i] = adapter.FetchPerps(ctx)
		}(i, adapter)
	}
	wg.Wait()

	type key struct {
		symbol   string
		exchange exchange.Name
	}
	merged := map[key]bool{}
	records := make([]models.UnifiedPerpRecord, 0, 256)
	symbolSeen := map[string]bool{}
	var symbols []string

	for i, adapter := range s.Adapters {
		venue := adapter.Name()
		for _, snap := range venueSnaps[i] {
			k := key{symbol: snap.Symbol, exchange: venue}
			if merged[k] {
				// A venue may not contribute the same symbol twice.
				continue
			}
			merged[k] = true

			ratio := 0.0
			if snap.OpenInterestNotional > 0 {
				ratio = snap.InsuranceFundBalance / snap.OpenInterestNotional * 100
			}

			records = append(records, models.UnifiedPerpRecord{
				Symbol:               snap.Symbol,
				Exchange:             string(venue),
				MarkPrice:            snap.MarkPrice,
				LastPrice:            snap.LastPrice,
				OpenInterest:         snap.OpenInterestContracts,
				OpenInterestValue:    snap.OpenInterestNotional,
				InsuranceFund:        snap.InsuranceFundBalance,
				FundOIRatio:          ratio,
				Volume24h:            snap.Volume24h,
				FundingRate:          snap.FundingRate,
				NextFundingTime:      snap.NextFundingTime,
				FundingIntervalHours: snap.FundingIntervalHours,
			})

			if !symbolSeen[snap.Symbol] {
				symbolSeen[snap.Symbol] = true
				symbols = append(symbols, snap.Symbol)
			}
		}
	}

	if s.Resolver != nil && len(symbols) > 0 {
		// One resolver call for the distinct symbol set; a base asset
		// listed on several venues gets identical fields everywhere.
		entries := s.Resolver.Resolve(ctx, symbols)
		for i := range records {
			entry := entries[records[i].Symbol]
			records[i].MarketCap = entry.MarketCap
			records[i].FDV = entry.FDV
			records[i].CoinName = entry.Name
			records[i].CoinImage = entry.Image
		}
	}

	return records, nil
}

// FundingHistory routes the on-demand history lookup to the named venue.
func (s *Service) FundingHistory(ctx context.Context, symbol string, venue exchange.Name) ([]exchange.FundingPoint, []exchange.Constituent, error) {
	for _, adapter := range s.Adapters {
		if adapter.Name() == venue {
			return adapter.FetchFundingHistory(ctx, symbol)
		}
	}
	return nil, nil, fmt.Errorf("exchange %q not configured", venue)
}
