package model

// SwapEventData is the decoded Swap event payload.
type SwapEventData struct {
	To         string `json:"to"`
	Amount0In  string `json:"amount0_in"`
	Amount1In  string `json:"amount1_in"`
	Amount0Out string `json:"amount0_out"`
	Amount1Out string `json:"amount1_out"`
}

// MintEventData is the decoded Mint event payload.
type MintEventData struct {
	To        string `json:"to"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Liquidity string `json:"liquidity"`
}

// BurnEventData is the decoded Burn event payload.
type BurnEventData struct {
	To        string `json:"to"`
	Liquidity string `json:"liquidity"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// SyncEventData is the decoded Sync event payload.
type SyncEventData struct {
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

// PairCreatedEventData is the decoded registry PairCreated payload.
type PairCreatedEventData struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	Pair   string `json:"pair"`
	FeeBps uint16 `json:"fee_bps"`
	Index  string `json:"index"`
}
