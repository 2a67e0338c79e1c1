package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var maxUint256 = new(uint256.Int).SetAllOne()

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// Memory is an in-process Ledger. An allowance of 2^256-1 is never consumed.
type Memory struct {
	mu         sync.RWMutex
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     map[common.Address]*uint256.Int
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supply:     make(map[common.Address]*uint256.Int),
	}
}

// BalanceOf returns a copy of the account balance.
func (m *Memory) BalanceOf(asset, account common.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance(asset, account).Clone()
}

// Allowance returns a copy of the spender allowance granted by owner.
func (m *Memory) Allowance(asset, owner, spender common.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.allowances[allowanceKey{asset, owner, spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

// TotalSupply returns the outstanding supply of an asset.
func (m *Memory) TotalSupply(asset common.Address) *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.supply[asset]; ok {
		return s.Clone()
	}
	return new(uint256.Int)
}

// Assets lists every asset with a recorded supply, sorted by address.
func (m *Memory) Assets() []common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]common.Address, 0, len(m.supply))
	for asset := range m.supply {
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func (m *Memory) Transfer(asset, from, to common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(asset, from, to, amount)
}

func (m *Memory) TransferFrom(asset, owner, spender, to common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := allowanceKey{asset, owner, spender}
	allowance, ok := m.allowances[key]
	if !ok {
		allowance = new(uint256.Int)
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s allows %s, need %s", ErrInsufficientAllowance, owner.Hex(), allowance.Dec(), amount.Dec())
	}
	if err := m.move(asset, owner, to, amount); err != nil {
		return err
	}
	if !allowance.Eq(maxUint256) {
		m.allowances[key] = new(uint256.Int).Sub(allowance, amount)
	}
	return nil
}

func (m *Memory) Approve(asset, owner, spender common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{asset, owner, spender}] = amount.Clone()
	return nil
}

// Mint creates amount of asset in the to account.
func (m *Memory) Mint(asset, to common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(m.supplyOf(asset), amount)
	if overflow {
		return fmt.Errorf("%w: mint %s of %s", ErrSupplyOverflow, amount.Dec(), asset.Hex())
	}
	// balance <= supply, so this cannot overflow once the supply check passed
	bal := new(uint256.Int).Add(m.balance(asset, to), amount)
	m.supply[asset] = supply
	m.setBalance(asset, to, bal)
	return nil
}

// Burn destroys amount of asset held by from.
func (m *Memory) Burn(asset, from common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balance(asset, from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, burn %s", ErrInsufficientBalance, from.Hex(), bal.Dec(), asset.Hex(), amount.Dec())
	}
	m.setBalance(asset, from, new(uint256.Int).Sub(bal, amount))
	m.supply[asset] = new(uint256.Int).Sub(m.supplyOf(asset), amount)
	return nil
}

func (m *Memory) move(asset, from, to common.Address, amount *uint256.Int) error {
	bal := m.balance(asset, from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, need %s", ErrInsufficientBalance, from.Hex(), bal.Dec(), asset.Hex(), amount.Dec())
	}
	if from == to {
		return nil
	}
	m.setBalance(asset, from, new(uint256.Int).Sub(bal, amount))
	m.setBalance(asset, to, new(uint256.Int).Add(m.balance(asset, to), amount))
	return nil
}

func (m *Memory) balance(asset, account common.Address) *uint256.Int {
	if accounts, ok := m.balances[asset]; ok {
		if bal, ok := accounts[account]; ok {
			return bal
		}
	}
	return new(uint256.Int)
}

func (m *Memory) setBalance(asset, account common.Address, bal *uint256.Int) {
	accounts, ok := m.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		m.balances[asset] = accounts
	}
	if bal.IsZero() {
		delete(accounts, account)
		return
	}
	accounts[account] = bal
}

func (m *Memory) supplyOf(asset common.Address) *uint256.Int {
	if s, ok := m.supply[asset]; ok {
		return s
	}
	return new(uint256.Int)
}
