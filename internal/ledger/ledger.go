// Package ledger provides the fungible-asset ledger the exchange core moves
// assets through.
package ledger

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSupplyOverflow        = errors.New("supply overflow")
)

// DeadAccount holds shares that are permanently locked out of circulation.
var DeadAccount = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// Ledger maps (asset, account) pairs to balances.
type Ledger interface {
	BalanceOf(asset, account common.Address) *uint256.Int
	Allowance(asset, owner, spender common.Address) *uint256.Int
	TotalSupply(asset common.Address) *uint256.Int
	Transfer(asset, from, to common.Address, amount *uint256.Int) error
	TransferFrom(asset, owner, spender, to common.Address, amount *uint256.Int) error
	Approve(asset, owner, spender common.Address, amount *uint256.Int) error
	Mint(asset, to common.Address, amount *uint256.Int) error
	Burn(asset, from common.Address, amount *uint256.Int) error
}
