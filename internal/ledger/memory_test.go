package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	asset   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	owner   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	spender = common.HexToAddress("0x0000000000000000000000000000000000000002")
	dest    = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

func TestMemoryTransfer(t *testing.T) {
	m := NewMemory()
	if err := m.Mint(asset, owner, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Transfer(asset, owner, dest, uint256.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := m.Transfer(asset, owner, dest, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := m.BalanceOf(asset, owner).Uint64(); got != 60 {
		t.Fatalf("owner balance mismatch: got %d want 60", got)
	}
	if got := m.BalanceOf(asset, dest).Uint64(); got != 40 {
		t.Fatalf("dest balance mismatch: got %d want 40", got)
	}
	if err := m.Transfer(asset, owner, owner, uint256.NewInt(60)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if got := m.BalanceOf(asset, owner).Uint64(); got != 60 {
		t.Fatalf("self transfer changed balance: got %d", got)
	}
}

func TestMemoryTransferFromAllowance(t *testing.T) {
	m := NewMemory()
	if err := m.Mint(asset, owner, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.TransferFrom(asset, owner, spender, dest, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := m.Approve(asset, owner, spender, uint256.NewInt(50)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := m.TransferFrom(asset, owner, spender, dest, uint256.NewInt(30)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := m.Allowance(asset, owner, spender).Uint64(); got != 20 {
		t.Fatalf("allowance mismatch: got %d want 20", got)
	}

	if err := m.Approve(asset, owner, spender, new(uint256.Int).SetAllOne()); err != nil {
		t.Fatalf("approve max: %v", err)
	}
	if err := m.TransferFrom(asset, owner, spender, dest, uint256.NewInt(70)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if !m.Allowance(asset, owner, spender).Eq(new(uint256.Int).SetAllOne()) {
		t.Fatalf("max allowance was consumed")
	}
	if err := m.TransferFrom(asset, owner, spender, dest, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestMemoryMintBurnSupply(t *testing.T) {
	m := NewMemory()
	if err := m.Mint(asset, owner, uint256.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Mint(asset, dest, new(uint256.Int).SetAllOne()); !errors.Is(err, ErrSupplyOverflow) {
		t.Fatalf("expected ErrSupplyOverflow, got %v", err)
	}
	if err := m.Burn(asset, owner, uint256.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := m.Burn(asset, owner, uint256.NewInt(4)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := m.TotalSupply(asset).Uint64(); got != 6 {
		t.Fatalf("supply mismatch: got %d want 6", got)
	}
	if assets := m.Assets(); len(assets) != 1 || assets[0] != asset {
		t.Fatalf("assets mismatch: %v", assets)
	}
}

func TestMemoryBalancesAreCopies(t *testing.T) {
	m := NewMemory()
	if err := m.Mint(asset, owner, uint256.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bal := m.BalanceOf(asset, owner)
	bal.SetUint64(1000)
	if got := m.BalanceOf(asset, owner).Uint64(); got != 10 {
		t.Fatalf("balance aliased caller value: got %d", got)
	}
}
