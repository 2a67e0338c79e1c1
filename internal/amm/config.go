package amm

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Config controls registry and pool behavior.
type Config struct {
	// Address is the registry account that pool addresses are derived from.
	Address common.Address
	// FeeBps is charged on every swap input, out of FeeDenominator.
	FeeBps uint64
	// MinimumLiquidity shares are locked in ledger.DeadAccount on the first
	// mint of a pool. Zero disables the lock.
	MinimumLiquidity uint64
	// Sink receives pool and registry events. Nil discards them.
	Sink EventSink
	// Clock stamps reserve updates. Nil means time.Now.
	Clock func() time.Time
}

// DefaultConfig returns a 0.3% fee with no minimum-liquidity lock.
func DefaultConfig() Config {
	return Config{
		Address: common.HexToAddress("0x00000000000000000000000000000000000a3f00"),
		FeeBps:  DefaultFeeBps,
	}
}

// Validate checks fee bounds.
func (c Config) Validate() error {
	if c.FeeBps >= FeeDenominator {
		return fmt.Errorf("%w: fee %d bps must be below %d", ErrInvalidConfig, c.FeeBps, FeeDenominator)
	}
	if c.Address == (common.Address{}) {
		return fmt.Errorf("%w: registry address is required", ErrInvalidConfig)
	}
	return nil
}

func (c Config) minimumLiquidity() *uint256.Int {
	return uint256.NewInt(c.MinimumLiquidity)
}

func (c Config) clock() func() time.Time {
	if c.Clock == nil {
		return time.Now
	}
	return c.Clock
}

func (c Config) sink() EventSink {
	if c.Sink == nil {
		return nopSink{}
	}
	return c.Sink
}
