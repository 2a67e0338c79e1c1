package amm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityCore/internal/ledger"
)

// txn groups the ledger movements, pool state changes and events of one
// logical operation. Either commit publishes the events or abort undoes
// everything recorded so far.
type txn struct {
	ledger ledger.Ledger
	undo   []func() error
	events []Event
}

func newTxn(l ledger.Ledger) *txn {
	return &txn{ledger: l}
}

func (tx *txn) transfer(asset, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.ledger.Transfer(asset, from, to, amount); err != nil {
		return err
	}
	tx.onAbort(func() error {
		return tx.ledger.Transfer(asset, to, from, amount)
	})
	return nil
}

// transferFrom moves owner funds with spender's allowance. Undoing it returns
// the funds and resets the allowance to its prior value.
func (tx *txn) transferFrom(asset, owner, spender, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	allowance := tx.ledger.Allowance(asset, owner, spender)
	if err := tx.ledger.TransferFrom(asset, owner, spender, to, amount); err != nil {
		return err
	}
	tx.onAbort(func() error {
		if err := tx.ledger.Transfer(asset, to, owner, amount); err != nil {
			return err
		}
		return tx.ledger.Approve(asset, owner, spender, allowance)
	})
	return nil
}

func (tx *txn) mint(asset, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.ledger.Mint(asset, to, amount); err != nil {
		return err
	}
	tx.onAbort(func() error {
		return tx.ledger.Burn(asset, to, amount)
	})
	return nil
}

func (tx *txn) burn(asset, from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.ledger.Burn(asset, from, amount); err != nil {
		return err
	}
	tx.onAbort(func() error {
		return tx.ledger.Mint(asset, from, amount)
	})
	return nil
}

func (tx *txn) onAbort(fn func() error) {
	tx.undo = append(tx.undo, fn)
}

func (tx *txn) emit(ev Event) {
	tx.events = append(tx.events, ev)
}

func (tx *txn) commit(sink EventSink) {
	for _, ev := range tx.events {
		sink.Emit(ev)
	}
	tx.undo, tx.events = nil, nil
}

// abort reverses every recorded step, newest first, drops pending events and
// returns cause annotated with any undo failure.
func (tx *txn) abort(cause error) error {
	var errs []error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](); err != nil {
			errs = append(errs, err)
		}
	}
	tx.undo, tx.events = nil, nil
	if len(errs) > 0 {
		return fmt.Errorf("%w (rollback failed: %v)", cause, errors.Join(errs...))
	}
	return cause
}
