// Package marketdata resolves contract base assets to CoinGecko and fetches
// market cap / FDV for them through a TTL cache, so repeated dashboard polls
// inside the window never touch the network.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"perpscope/internal/batch"
	"perpscope/internal/cache"
)

// Entry is the cached market-data record for one CoinGecko id. MarketCap and
// FDV stay nil when the provider has no figure; callers never see an error
// for an unresolvable symbol.
type Entry struct {
	ID        string   `json:"id"`
	MarketCap *float64 `json:"marketCap"`
	FDV       *float64 `json:"fdv"`
	Name      string   `json:"name,omitempty"`
	Image     string   `json:"image,omitempty"`
}

const (
	idKeyPrefix   = "cg:id:"
	dataKeyPrefix = "cg:md:"

	// unresolvable marks a base symbol the search API could not match, so
	// the next poll does not repeat the search immediately.
	unresolvable = "!none"
)

type Resolver struct {
	HTTP   *http.Client
	Logger *zap.Logger
	Cache  cache.Store

	BaseURL string
	// TTL bounds both the per-id market-data entries and the negative
	// search results. Ticker->id hits are cached without expiry.
	TTL time.Duration

	PageSize  int
	PageDelay time.Duration

	SearchConcurrency int
	SearchDelay       time.Duration
}

// Resolve maps every contract symbol to its market-data entry. Symbols that
// cannot be resolved, or whose asset has no provider data, map to an Entry
// with nil MarketCap and FDV.
func (r *Resolver) Resolve(ctx context.Context, contracts []string) map[string]Entry {
	out := make(map[string]Entry, len(contracts))

	baseOf := make(map[string]string, len(contracts))
	var bases []string
	seen := map[string]bool{}
	for _, contract := range contracts {
		base := BaseSymbol(contract)
		baseOf[contract] = base
		if base != "" && !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}

	idOf := r.resolveIDs(ctx, bases)

	idSeen := map[string]bool{}
	var ids []string
	for _, id := range idOf {
		if id != "" && !idSeen[id] {
			idSeen[id] = true
			ids = append(ids, id)
		}
	}

	entries := r.fetchEntries(ctx, ids)

	for _, contract := range contracts {
		entry := Entry{}
		if id := idOf[baseOf[contract]]; id != "" {
			if e, ok := entries[id]; ok {
				entry = e
			}
		}
		out[contract] = entry
	}
	return out
}

// resolveIDs maps base symbols to CoinGecko ids: static table first, then
// the id cache, then a rate-limited fan-out to the search API for whatever
// is left. Ticker->id is stable, so positive results never expire.
func (r *Resolver) resolveIDs(ctx context.Context, bases []string) map[string]string {
	out := make(map[string]string, len(bases))
	var unknown []string
	for _, base := range bases {
		if id, ok := staticIDs[base]; ok {
			out[base] = id
			continue
		}
		if raw, found, err := r.Cache.Get(ctx, idKeyPrefix+base); err == nil && found {
			if id := string(raw); id != unresolvable {
				out[base] = id
			}
			continue
		}
		unknown = append(unknown, base)
	}
	if len(unknown) == 0 {
		return out
	}

	var mu sync.Mutex
	_ = batch.Run(ctx, len(unknown), batch.Options{Size: r.SearchConcurrency, Delay: r.SearchDelay}, func(ctx context.Context, i int) {
		base := unknown[i]
		id, err := r.searchID(ctx, base)
		if err != nil {
			r.warn("coingecko search failed", err, zap.String("symbol", base))
			return
		}
		if id == "" {
			_ = r.Cache.Set(ctx, idKeyPrefix+base, []byte(unresolvable), r.TTL)
			return
		}
		_ = r.Cache.Set(ctx, idKeyPrefix+base, []byte(id), 0)
		mu.Lock()
		out[base] = id
		mu.Unlock()
	})
	return out
}

// searchID queries /search and takes the first coin whose ticker matches the
// base symbol exactly, case-insensitively. Empty return means no match.
func (r *Resolver) searchID(ctx context.Context, base string) (string, error) {
	u := fmt.Sprintf("%s/api/v3/search?query=%s", r.BaseURL, url.QueryEscape(base))
	var parsed struct {
		Coins []struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
		} `json:"coins"`
	}
	if err := r.getJSON(ctx, u, &parsed); err != nil {
		return "", err
	}
	for _, coin := range parsed.Coins {
		if strings.EqualFold(coin.Symbol, base) {
			return coin.ID, nil
		}
	}
	return "", nil
}

// fetchEntries returns market data for the given ids, serving from cache
// when possible and batch-fetching the rest from /coins/markets in pages.
func (r *Resolver) fetchEntries(ctx context.Context, ids []string) map[string]Entry {
	out := make(map[string]Entry, len(ids))
	var missing []string
	for _, id := range ids {
		raw, found, err := r.Cache.Get(ctx, dataKeyPrefix+id)
		if err == nil && found {
			var e Entry
			if json.Unmarshal(raw, &e) == nil {
				out[id] = e
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	pageSize := r.PageSize
	if pageSize <= 0 {
		pageSize = 250
	}
	pages := (len(missing) + pageSize - 1) / pageSize

	var mu sync.Mutex
	// Size 1 keeps the pages sequential with PageDelay between them.
	_ = batch.Run(ctx, pages, batch.Options{Size: 1, Delay: r.PageDelay}, func(ctx context.Context, page int) {
		start := page * pageSize
		end := start + pageSize
		if end > len(missing) {
			end = len(missing)
		}
		fetched, err := r.fetchMarketsPage(ctx, missing[start:end])
		if err != nil {
			r.warn("coingecko markets fetch failed", err, zap.Int("page", page))
			return
		}
		mu.Lock()
		for id, e := range fetched {
			out[id] = e
		}
		mu.Unlock()
		for id, e := range fetched {
			if raw, err := json.Marshal(e); err == nil {
				_ = r.Cache.Set(ctx, dataKeyPrefix+id, raw, r.TTL)
			}
		}
	})
	return out
}

func (r *Resolver) fetchMarketsPage(ctx context.Context, ids []string) (map[string]Entry, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("ids", strings.Join(ids, ","))
	params.Set("per_page", fmt.Sprintf("%d", len(ids)))
	params.Set("page", "1")
	u := r.BaseURL + "/api/v3/coins/markets?" + params.Encode()

	var parsed []struct {
		ID                    string   `json:"id"`
		Name                  string   `json:"name"`
		Image                 string   `json:"image"`
		MarketCap             *float64 `json:"market_cap"`
		FullyDilutedValuation *float64 `json:"fully_diluted_valuation"`
	}
	if err := r.getJSON(ctx, u, &parsed); err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(parsed))
	for _, coin := range parsed {
		out[coin.ID] = Entry{
			ID:        coin.ID,
			MarketCap: coin.MarketCap,
			FDV:       coin.FullyDilutedValuation,
			Name:      coin.Name,
			Image:     coin.Image,
		}
	}
	return out, nil
}

func (r *Resolver) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r *Resolver) warn(msg string, err error, fields ...zap.Field) {
	if r.Logger == nil {
		return
	}
	r.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
