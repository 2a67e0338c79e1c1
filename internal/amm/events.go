package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is emitted by pools and the registry after a state change.
type Event interface {
	EventName() string
	// Emitter is the account that produced the event.
	Emitter() common.Address
}

// EventSink receives events synchronously, while the emitting pool is locked.
// Implementations must not call back into the pool.
type EventSink interface {
	Emit(event Event)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// PairCreatedEvent is emitted once per pool by the registry.
type PairCreatedEvent struct {
	Registry common.Address
	Token0   common.Address
	Token1   common.Address
	Pool     common.Address
	FeeBps   uint64
	Index    uint64
}

func (e PairCreatedEvent) EventName() string       { return "PairCreated" }
func (e PairCreatedEvent) Emitter() common.Address { return e.Registry }

type MintEvent struct {
	Pool    common.Address
	To      common.Address
	Amount0 *uint256.Int
	Amount1 *uint256.Int
	Shares  *uint256.Int
}

func (e MintEvent) EventName() string       { return "Mint" }
func (e MintEvent) Emitter() common.Address { return e.Pool }

type BurnEvent struct {
	Pool    common.Address
	To      common.Address
	Shares  *uint256.Int
	Amount0 *uint256.Int
	Amount1 *uint256.Int
}

func (e BurnEvent) EventName() string       { return "Burn" }
func (e BurnEvent) Emitter() common.Address { return e.Pool }

type SwapEvent struct {
	Pool       common.Address
	To         common.Address
	Amount0In  *uint256.Int
	Amount1In  *uint256.Int
	Amount0Out *uint256.Int
	Amount1Out *uint256.Int
}

func (e SwapEvent) EventName() string       { return "Swap" }
func (e SwapEvent) Emitter() common.Address { return e.Pool }

// SyncEvent carries the reserves after every reserve update.
type SyncEvent struct {
	Pool     common.Address
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

func (e SyncEvent) EventName() string       { return "Sync" }
func (e SyncEvent) Emitter() common.Address { return e.Pool }
