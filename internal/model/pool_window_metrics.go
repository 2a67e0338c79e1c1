package model

import "time"

// PoolWindowMetrics stores aggregated metrics for a pool window.
// TVL is the pool's own reserves at the last Sync of the window.
type PoolWindowMetrics struct {
	ChainID        uint64    `json:"chain_id"`
	PoolAddress    string    `json:"pool_address"`
	WindowSizeSecs int64     `json:"window_size_seconds"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	SwapCount      uint64    `json:"swap_count"`
	MintCount      uint64    `json:"mint_count"`
	BurnCount      uint64    `json:"burn_count"`
	Volume0        string    `json:"volume0"`
	Volume1        string    `json:"volume1"`
	Fee0           string    `json:"fee0"`
	Fee1           string    `json:"fee1"`
	FeeRate0       *string   `json:"fee_rate0,omitempty"`
	FeeRate1       *string   `json:"fee_rate1,omitempty"`
	TVL0           *string   `json:"tvl0,omitempty"`
	TVL1           *string   `json:"tvl1,omitempty"`
	APR            *string   `json:"apr,omitempty"`
	FeeMethod      string    `json:"fee_method"`
	TVLMethod      string    `json:"tvl_method"`
}
