package model

// PoolMeta captures immutable pair metadata with the last known reserves.
type PoolMeta struct {
	Token0   string `json:"token0"`
	Token1   string `json:"token1"`
	FeeBps   uint16 `json:"fee_bps"`
	Reserve0 string `json:"reserve0,omitempty"`
	Reserve1 string `json:"reserve1,omitempty"`
}
