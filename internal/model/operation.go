package model

// Operation kinds accepted by the replay runner.
const (
	OpFund         = "fund"
	OpApprove      = "approve"
	OpTransfer     = "transfer"
	OpAdd          = "add"
	OpRemove       = "remove"
	OpSwapExactIn  = "swap_exact_in"
	OpSwapExactOut = "swap_exact_out"
	OpSkim         = "skim"
	OpSync         = "sync"
)

// Operation is one line of a replay script. Amounts are decimal strings;
// empty optional amounts mean zero (or unlimited for approve).
type Operation struct {
	Op        string   `json:"op"`
	Sender    string   `json:"sender,omitempty"`
	Asset     string   `json:"asset,omitempty"`
	AssetA    string   `json:"asset_a,omitempty"`
	AssetB    string   `json:"asset_b,omitempty"`
	Spender   string   `json:"spender,omitempty"`
	Recipient string   `json:"recipient,omitempty"`
	Amount    string   `json:"amount,omitempty"`
	AmountA   string   `json:"amount_a,omitempty"`
	AmountB   string   `json:"amount_b,omitempty"`
	MinA      string   `json:"min_a,omitempty"`
	MinB      string   `json:"min_b,omitempty"`
	Limit     string   `json:"limit,omitempty"`
	Path      []string `json:"path,omitempty"`
	// Timestamp is the unix second the operation executes at.
	Timestamp uint64 `json:"timestamp,omitempty"`
	// Deadline in unix seconds; zero means the operation's own time.
	Deadline uint64 `json:"deadline,omitempty"`
}

// OperationError records an operation rejected by the core.
type OperationError struct {
	Seq   uint64    `json:"seq"`
	Op    Operation `json:"op"`
	Error string    `json:"error"`
}
