package model

// ReserveSnapshot is the state of one pool after a replay batch.
type ReserveSnapshot struct {
	ChainID     uint64 `json:"chain_id"`
	PoolAddress string `json:"pool_address"`
	Seq         uint64 `json:"seq"`
	Reserve0    string `json:"reserve0"`
	Reserve1    string `json:"reserve1"`
	TotalShares string `json:"total_shares"`
	Timestamp   uint64 `json:"timestamp"`
}
