// Package runtime defines the host capability surface the ledger core runs
// against, and a local in-process implementation of it.
package runtime

import (
	"math/big"

	"github.com/ipfs/go-cid"

	"bountyledger/core/types"
	"bountyledger/storage"
)

// Runtime is everything the ledger core is allowed to ask of its execution
// host during one call: the current-root pointer, content-addressed block
// storage, the caller's identity, the value attached to the call, and
// outbound value transfers.
//
// The host guarantees call-level atomicity: either every mutation performed
// during a call is durably applied, or none is. The core relies on this
// instead of implementing its own transactions.
type Runtime interface {
	// Root returns the CID of the current ledger state record. It is an
	// error if no root has ever been published.
	Root() (cid.Cid, error)
	// SetRoot publishes a new current root. Callers must ensure the block
	// it references is already stored.
	SetRoot(c cid.Cid) error
	// Blockstore is the content-addressed block storage capability.
	Blockstore() storage.Blockstore
	// Caller is the authenticated identity of the calling account.
	Caller() types.Address
	// ValueReceived is the amount attached to this call. Never negative.
	ValueReceived() *big.Int
	// Transfer sends value held by the ledger to another account. A failed
	// transfer must abort the whole call.
	Transfer(to types.Address, amount *big.Int) error
	// BootstrapAuthority is the only identity allowed to run initialize.
	BootstrapAuthority() types.Address
}
