package bounty

import (
	"math/big"

	"bountyledger/core/types"
)

const (
	EventTypeDeposited = "bounty.deposited"
	EventTypeAwarded   = "bounty.awarded"
)

// Event is a structured notification emitted after a successful mutating
// operation. Events are observability output only; no ledger logic reads
// them back.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter receives events from the engine.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// NewDepositedEvent returns the canonical event payload for a deposit that
// raised a bounty balance.
func NewDepositedEvent(key types.BountyKey, value, total *big.Int) Event {
	return Event{
		Type: EventTypeDeposited,
		Attributes: map[string]string{
			"pieceCid":  key.PieceCID.String(),
			"depositor": key.Depositor.Hex(),
			"value":     value.String(),
			"total":     total.String(),
		},
	}
}

// NewAwardedEvent returns the canonical event payload for a payout that
// drained a bounty balance.
func NewAwardedEvent(key types.BountyKey, payout types.Address, amount *big.Int) Event {
	return Event{
		Type: EventTypeAwarded,
		Attributes: map[string]string{
			"pieceCid":  key.PieceCID.String(),
			"depositor": key.Depositor.Hex(),
			"payout":    payout.Hex(),
			"amount":    amount.String(),
		},
	}
}
