package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"

	"bountyledger/core/codec"
)

// Address identifies an account known to the host environment.
type Address = common.Address

// AddressLength is the size of an encoded address in bytes.
const AddressLength = common.AddressLength

// BountyKey is the composite identity of one bounty slot: the piece being
// bountied and the depositor who opened the slot. Two keys address the same
// slot iff their canonical encodings are byte-identical.
type BountyKey struct {
	PieceCID  cid.Cid
	Depositor Address
}

// BountyValue is the accumulated balance held against a bounty key. Amount is
// always strictly positive for a persisted entry; a zero balance is
// represented by the entry's absence.
type BountyValue struct {
	Amount *big.Int
}

// PostedBounty is one entry of a bounty listing: the key fields decoded back
// out of the index together with the current balance.
type PostedBounty struct {
	PieceCID  cid.Cid
	Depositor Address
	Amount    *big.Int
}

type bountyKeyWire struct {
	_         struct{} `cbor:",toarray"`
	PieceCID  []byte
	Depositor []byte
}

type bountyValueWire struct {
	_      struct{} `cbor:",toarray"`
	Amount []byte
}

type postedBountyWire struct {
	_         struct{} `cbor:",toarray"`
	PieceCID  []byte
	Depositor []byte
	Amount    []byte
}

// Canonical returns the canonical byte encoding of the key, used as the
// lookup key of the persistent index.
func (k BountyKey) Canonical() ([]byte, error) {
	if !k.PieceCID.Defined() {
		return nil, fmt.Errorf("types: bounty key: undefined piece cid")
	}
	return codec.Marshal(bountyKeyWire{
		PieceCID:  k.PieceCID.Bytes(),
		Depositor: k.Depositor.Bytes(),
	})
}

// DecodeBountyKey decodes a canonical key encoding back into its fields.
func DecodeBountyKey(data []byte) (BountyKey, error) {
	var wire bountyKeyWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return BountyKey{}, fmt.Errorf("types: decode bounty key: %w", err)
	}
	pieceCID, err := cid.Cast(wire.PieceCID)
	if err != nil {
		return BountyKey{}, fmt.Errorf("types: decode bounty key cid: %w", err)
	}
	addr, err := AddressFromBytes(wire.Depositor)
	if err != nil {
		return BountyKey{}, fmt.Errorf("types: decode bounty key: %w", err)
	}
	return BountyKey{PieceCID: pieceCID, Depositor: addr}, nil
}

// Encode serializes the value for storage in the persistent index.
func (v BountyValue) Encode() ([]byte, error) {
	amount, err := BigToBytes(v.Amount)
	if err != nil {
		return nil, fmt.Errorf("types: encode bounty value: %w", err)
	}
	return codec.Marshal(bountyValueWire{Amount: amount})
}

// DecodeBountyValue deserializes a stored bounty value.
func DecodeBountyValue(data []byte) (BountyValue, error) {
	var wire bountyValueWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return BountyValue{}, fmt.Errorf("types: decode bounty value: %w", err)
	}
	return BountyValue{Amount: BigFromBytes(wire.Amount)}, nil
}

// EncodePostedBounties serializes a listing result payload.
func EncodePostedBounties(bounties []PostedBounty) ([]byte, error) {
	wire := make([]postedBountyWire, 0, len(bounties))
	for _, b := range bounties {
		amount, err := BigToBytes(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("types: encode bounty listing: %w", err)
		}
		wire = append(wire, postedBountyWire{
			PieceCID:  b.PieceCID.Bytes(),
			Depositor: b.Depositor.Bytes(),
			Amount:    amount,
		})
	}
	return codec.Marshal(wire)
}

// DecodePostedBounties deserializes a listing result payload.
func DecodePostedBounties(data []byte) ([]PostedBounty, error) {
	var wire []postedBountyWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("types: decode bounty listing: %w", err)
	}
	out := make([]PostedBounty, 0, len(wire))
	for _, w := range wire {
		pieceCID, err := cid.Cast(w.PieceCID)
		if err != nil {
			return nil, fmt.Errorf("types: decode bounty listing cid: %w", err)
		}
		addr, err := AddressFromBytes(w.Depositor)
		if err != nil {
			return nil, fmt.Errorf("types: decode bounty listing: %w", err)
		}
		out = append(out, PostedBounty{
			PieceCID:  pieceCID,
			Depositor: addr,
			Amount:    BigFromBytes(w.Amount),
		})
	}
	return out, nil
}

// AddressFromBytes converts raw bytes to an Address, rejecting any length
// other than AddressLength.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("types: address must be %d bytes, got %d", AddressLength, len(b))
	}
	return common.BytesToAddress(b), nil
}

// BigToBytes encodes a non-negative big integer as minimal big-endian bytes.
// nil and zero both encode to the empty string.
func BigToBytes(v *big.Int) ([]byte, error) {
	if v == nil {
		return []byte{}, nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("types: negative amount %s", v)
	}
	return v.Bytes(), nil
}

// BigFromBytes decodes a big-endian byte amount. Empty input decodes to zero.
func BigFromBytes(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
