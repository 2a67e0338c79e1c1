package model

// DecodeError records a failure to decode one input line. Line is the
// 1-based line number in the input file.
type DecodeError struct {
	Line        uint64 `json:"line"`
	ChainID     uint64 `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index,omitempty"`
	Address     string `json:"address,omitempty"`
	Topic0      string `json:"topic0,omitempty"`
	Error       string `json:"error"`
}
