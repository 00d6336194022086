// Package state manages the root-level ledger record and its load/save
// lifecycle against the host's current-root pointer.
package state

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"bountyledger/core/codec"
	"bountyledger/core/types"
	"bountyledger/storage"
)

// Host is the capability surface the lifecycle needs: the externally managed
// current-root pointer plus the content-addressed block store.
type Host interface {
	Root() (cid.Cid, error)
	SetRoot(c cid.Cid) error
	Blockstore() storage.Blockstore
}

// Record is the root-level ledger state: the authority allowed to award
// bounties and the root of the bounty index. Records are immutable values;
// a mutation constructs a new record and publishes a new root.
type Record struct {
	TrustedAuthority types.Address
	Bounties         cid.Cid
}

type recordWire struct {
	_                struct{} `cbor:",toarray"`
	TrustedAuthority []byte
	Bounties         []byte
}

// Load fetches the current root from the host, reads the corresponding block
// and decodes it. Every failure is fatal to the enclosing call: a missing
// root, a missing block and a decode mismatch all mean the ledger state is
// unusable.
func Load(h Host) (*Record, error) {
	root, err := h.Root()
	if err != nil {
		return nil, fmt.Errorf("state: get current root: %w", err)
	}
	data, err := h.Blockstore().Get(root)
	if err != nil {
		return nil, fmt.Errorf("state: load record %s: %w", root, err)
	}
	var wire recordWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("state: decode record %s: %w", root, err)
	}
	authority, err := types.AddressFromBytes(wire.TrustedAuthority)
	if err != nil {
		return nil, fmt.Errorf("state: decode record: %w", err)
	}
	bounties, err := cid.Cast(wire.Bounties)
	if err != nil {
		return nil, fmt.Errorf("state: decode record index root: %w", err)
	}
	return &Record{TrustedAuthority: authority, Bounties: bounties}, nil
}

// Save canonically encodes the record, stores it as a new block, then
// publishes its CID as the new current root. Publishing is the last step, so
// a record referenced by the root pointer is always already durable. Save
// must be the final state-visible action of a successful mutating call.
func Save(h Host, rec *Record) (cid.Cid, error) {
	if !rec.Bounties.Defined() {
		return cid.Undef, fmt.Errorf("state: save record: undefined index root")
	}
	data, err := codec.Marshal(recordWire{
		TrustedAuthority: rec.TrustedAuthority.Bytes(),
		Bounties:         rec.Bounties.Bytes(),
	})
	if err != nil {
		return cid.Undef, fmt.Errorf("state: encode record: %w", err)
	}
	c, err := h.Blockstore().Put(data)
	if err != nil {
		return cid.Undef, fmt.Errorf("state: store record: %w", err)
	}
	if err := h.SetRoot(c); err != nil {
		return cid.Undef, fmt.Errorf("state: publish root %s: %w", c, err)
	}
	return c, nil
}
