// Package bounty implements the externally invokable operations of the
// bounty-escrow ledger: initialize, deposit, list, lookup and award. Each
// operation is a single state-machine transition over one bounty key, built
// on the persistent index and the ledger state record.
//
// A bounty key is either Unfunded (no index entry, balance zero) or Funded
// (entry present, balance strictly positive). Deposits move a key to Funded
// or grow its balance; award is the only transition back to Unfunded.
package bounty

import (
	"math/big"

	"bountyledger/core/state"
	"bountyledger/core/types"
	"bountyledger/runtime"
	"bountyledger/storage/hamt"
)

// Engine executes bounty operations against a host runtime. Every operation
// follows the same ordering: decode, authorize, read, mutate in memory,
// flush the index, save the record. The record save is always the last
// state-visible action, so an abort at any earlier point publishes nothing.
type Engine struct {
	emitter Emitter
}

// NewEngine creates an engine with a no-op event emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets it to a no-op implementation.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Initialize creates the empty bounty index and the first ledger state
// record, naming the supplied address as the trusted awarding authority.
// Only the host's bootstrap authority may call it.
func (e *Engine) Initialize(rt runtime.Runtime, authority types.Address) error {
	if rt.Caller() != rt.BootstrapAuthority() {
		return forbiddenf("initialize invoked by %s, want bootstrap authority %s",
			rt.Caller().Hex(), rt.BootstrapAuthority().Hex())
	}
	bounties := hamt.NewEmpty(rt.Blockstore())
	root, err := bounties.Flush()
	if err != nil {
		return illegalStatef("create bounty index: %v", err)
	}
	rec := &state.Record{TrustedAuthority: authority, Bounties: root}
	if _, err := state.Save(rt, rec); err != nil {
		return illegalStatef("save initial record: %v", err)
	}
	return nil
}

// Deposit adds the value attached to the call to the balance held against
// key. A deposit of zero value is a true no-op: no entry is written, the
// index is not flushed and the record is not re-saved.
func (e *Engine) Deposit(rt runtime.Runtime, key types.BountyKey) error {
	value := rt.ValueReceived()
	if value.Sign() == 0 {
		return nil
	}

	rec, err := state.Load(rt)
	if err != nil {
		return illegalStatef("%v", err)
	}
	bounties, err := hamt.Load(rt.Blockstore(), rec.Bounties)
	if err != nil {
		return illegalStatef("load bounty index: %v", err)
	}
	keyBytes, err := key.Canonical()
	if err != nil {
		return serializationf("%v", err)
	}

	balance, err := loadBalance(bounties, keyBytes)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(balance, value)

	encoded, err := types.BountyValue{Amount: total}.Encode()
	if err != nil {
		return serializationf("%v", err)
	}
	if err := bounties.Set(keyBytes, encoded); err != nil {
		return illegalStatef("update bounty index: %v", err)
	}
	root, err := bounties.Flush()
	if err != nil {
		return illegalStatef("flush bounty index: %v", err)
	}
	rec.Bounties = root
	if _, err := state.Save(rt, rec); err != nil {
		return illegalStatef("save record: %v", err)
	}

	e.emit(NewDepositedEvent(key, value, total))
	return nil
}

// List returns every funded bounty with its accumulated balance. The order
// is the index's internal hash-bucket order: deterministic for a given
// content set, unrelated to deposit order.
func (e *Engine) List(rt runtime.Runtime) ([]types.PostedBounty, error) {
	rec, err := state.Load(rt)
	if err != nil {
		return nil, illegalStatef("%v", err)
	}
	bounties, err := hamt.Load(rt.Blockstore(), rec.Bounties)
	if err != nil {
		return nil, illegalStatef("load bounty index: %v", err)
	}

	out := []types.PostedBounty{}
	err = bounties.ForEach(func(keyBytes, valueBytes []byte) error {
		key, err := types.DecodeBountyKey(keyBytes)
		if err != nil {
			return illegalStatef("decode stored key: %v", err)
		}
		value, err := types.DecodeBountyValue(valueBytes)
		if err != nil {
			return illegalStatef("decode stored value: %v", err)
		}
		out = append(out, types.PostedBounty{
			PieceCID:  key.PieceCID,
			Depositor: key.Depositor,
			Amount:    value.Amount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup returns the balance held against key, or zero if the key is
// unfunded.
func (e *Engine) Lookup(rt runtime.Runtime, key types.BountyKey) (*big.Int, error) {
	rec, err := state.Load(rt)
	if err != nil {
		return nil, illegalStatef("%v", err)
	}
	bounties, err := hamt.Load(rt.Blockstore(), rec.Bounties)
	if err != nil {
		return nil, illegalStatef("load bounty index: %v", err)
	}
	keyBytes, err := key.Canonical()
	if err != nil {
		return nil, serializationf("%v", err)
	}
	return loadBalance(bounties, keyBytes)
}

// Award pays the full balance held against key out to the payout address and
// removes the entry. Only the trusted authority recorded in the ledger state
// may call it. Awarding an unfunded key is a no-op: no transfer is requested
// and no error is returned.
//
// The outbound transfer and the entry deletion succeed or fail together: the
// transfer is requested first, and any failure aborts the call before the
// deletion is flushed or the record saved.
func (e *Engine) Award(rt runtime.Runtime, key types.BountyKey, payout types.Address) error {
	rec, err := state.Load(rt)
	if err != nil {
		return illegalStatef("%v", err)
	}
	if rt.Caller() != rec.TrustedAuthority {
		return forbiddenf("award invoked by %s, want trusted authority %s",
			rt.Caller().Hex(), rec.TrustedAuthority.Hex())
	}
	bounties, err := hamt.Load(rt.Blockstore(), rec.Bounties)
	if err != nil {
		return illegalStatef("load bounty index: %v", err)
	}
	keyBytes, err := key.Canonical()
	if err != nil {
		return serializationf("%v", err)
	}
	balance, err := loadBalance(bounties, keyBytes)
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return nil
	}

	if err := rt.Transfer(payout, balance); err != nil {
		return illegalStatef("transfer %s to %s: %v", balance, payout.Hex(), err)
	}
	if _, err := bounties.Delete(keyBytes); err != nil {
		return illegalStatef("delete bounty entry: %v", err)
	}
	root, err := bounties.Flush()
	if err != nil {
		return illegalStatef("flush bounty index: %v", err)
	}
	rec.Bounties = root
	if _, err := state.Save(rt, rec); err != nil {
		return illegalStatef("save record: %v", err)
	}

	e.emit(NewAwardedEvent(key, payout, balance))
	return nil
}

func loadBalance(bounties *hamt.Map, keyBytes []byte) (*big.Int, error) {
	raw, found, err := bounties.Get(keyBytes)
	if err != nil {
		return nil, illegalStatef("query bounty index: %v", err)
	}
	if !found {
		return big.NewInt(0), nil
	}
	value, err := types.DecodeBountyValue(raw)
	if err != nil {
		return nil, illegalStatef("decode stored value: %v", err)
	}
	return value.Amount, nil
}
