// Package vm executes the transactions carried inside a decided block's
// body against ledger state. There is only one transaction kind —
// transfer — so there is no handler registry; applyTx dispatches directly.
package vm

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tolelom/quorum/core"
	"github.com/tolelom/quorum/events"
)

// Context is passed to transaction application and provides access to the
// chain state, the current block, the triggering transaction, and the
// event emitter.
type Context struct {
	State   core.State
	Block   *core.Block
	Tx      *core.Transaction
	Emitter *events.Emitter
}

// Executor applies transactions to the state.
type Executor struct {
	state   core.State
	emitter *events.Emitter
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter}
}

// ExecuteBlock applies all transactions in block sequentially and stops
// with an error at the first failing transaction; transactions before it
// stay applied, so callers snapshot the state first and revert on error.
// app.Host.VerifyProposal uses this to reject a block body. The decider
// does not call VerifyProposal, so a Proposal is admitted and voted on
// without this check.
func (e *Executor) ExecuteBlock(block *core.Block) error {
	for _, tx := range block.Transactions {
		if err := e.ExecuteTx(block, tx); err != nil {
			return fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
	}
	return nil
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if err := e.applyTx(block, tx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	if e.emitter != nil {
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return nil
}

// applyTx deducts the fee, increments the nonce, then applies the transfer.
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction) error {
	if tx.Type != core.TxTransfer {
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}

	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("insufficient balance for fee: have %d need %d", acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}

	var payload core.TransferPayload
	if err := json.Unmarshal(tx.Payload, &payload); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if acc.Balance < tx.Fee+payload.Amount {
		return fmt.Errorf("insufficient balance: have %d need %d", acc.Balance, tx.Fee+payload.Amount)
	}

	to, err := e.state.GetAccount(payload.To)
	if err != nil {
		return fmt.Errorf("get recipient account: %w", err)
	}

	acc.Balance -= tx.Fee + payload.Amount
	acc.Nonce++
	to.Balance += payload.Amount

	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	return e.state.SetAccount(to)
}
