package models

// UnifiedPerpRecord is one venue's view of one perpetual contract after
// aggregation, enriched with market data for the contract's base asset.
// Identity is (Symbol, Exchange): the same ticker can appear once per venue.
// Records are built fresh on every aggregation pass and never mutated after
// construction.
type UnifiedPerpRecord struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`

	MarkPrice float64 `json:"markPrice"`
	LastPrice float64 `json:"lastPrice"`

	// OpenInterest is in base-asset contracts, OpenInterestValue in quote
	// currency (contracts x mark price).
	OpenInterest      float64 `json:"openInterest"`
	OpenInterestValue float64 `json:"openInterestValue"`

	InsuranceFund float64 `json:"insuranceFund"`

	// FundOIRatio = InsuranceFund / OpenInterestValue * 100, 0 when the
	// notional is 0.
	FundOIRatio float64 `json:"fundOiRatio"`

	Volume24h float64 `json:"volume24h"`

	FundingRate          float64 `json:"fundingRate"`
	NextFundingTime      int64   `json:"nextFundingTime"`
	FundingIntervalHours int     `json:"fundingIntervalHours"`

	MarketCap *float64 `json:"marketCap"`
	FDV       *float64 `json:"fdv"`
	CoinName  string   `json:"coinName,omitempty"`
	CoinImage string   `json:"coinImage,omitempty"`
}
