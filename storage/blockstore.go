package storage

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Blockstore stores immutable byte blocks addressed by the hash of their
// contents. Equal bytes always map to the same CID, so writes are idempotent
// and a block can never be overwritten with different data.
type Blockstore interface {
	Put(data []byte) (cid.Cid, error)
	Get(c cid.Cid) ([]byte, error)
	Has(c cid.Cid) (bool, error)
}

// ErrBlockNotFound is returned by Get when no block exists for the CID.
var ErrBlockNotFound = errors.New("storage: block not found")

// blockHashCode is the multihash used for every block written by this store.
// It is part of the published state roots and must never change for an
// existing ledger.
const blockHashCode = mh.BLAKE2B_MIN + 31 // blake2b-256

type dbBlockstore struct {
	db Database
}

// NewBlockstore creates a content-addressed block store backed by the given
// database. Blocks are keyed by the raw bytes of their CID.
func NewBlockstore(db Database) Blockstore {
	return &dbBlockstore{db: db}
}

func (bs *dbBlockstore) Put(data []byte) (cid.Cid, error) {
	hash, err := mh.Sum(data, blockHashCode, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("storage: hash block: %w", err)
	}
	c := cid.NewCidV1(cid.DagCBOR, hash)
	if err := bs.db.Put(c.Bytes(), data); err != nil {
		return cid.Undef, fmt.Errorf("storage: store block %s: %w", c, err)
	}
	return c, nil
}

func (bs *dbBlockstore) Get(c cid.Cid) ([]byte, error) {
	if !c.Defined() {
		return nil, fmt.Errorf("storage: get block: undefined cid")
	}
	data, err := bs.db.Get(c.Bytes())
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, c)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load block %s: %w", c, err)
	}
	// Re-derive the address before handing the bytes out so a corrupted
	// backend can never satisfy a lookup with the wrong content.
	prefix := c.Prefix()
	sum, err := prefix.Sum(data)
	if err != nil {
		return nil, fmt.Errorf("storage: verify block %s: %w", c, err)
	}
	if !sum.Equals(c) {
		return nil, fmt.Errorf("storage: block %s failed content verification", c)
	}
	return data, nil
}

func (bs *dbBlockstore) Has(c cid.Cid) (bool, error) {
	if !c.Defined() {
		return false, nil
	}
	return bs.db.Has(c.Bytes())
}
