package bounty

import (
	"github.com/ipfs/go-cid"

	"bountyledger/core/codec"
	"bountyledger/core/types"
	"bountyledger/runtime"
)

// Method numbers of the externally invokable operations.
const (
	MethodInitialize uint64 = 1
	MethodDeposit    uint64 = 2
	MethodList       uint64 = 3
	MethodLookup     uint64 = 4
	MethodAward      uint64 = 5
)

type initializeParams struct {
	_         struct{} `cbor:",toarray"`
	Authority []byte
}

type awardParams struct {
	_         struct{} `cbor:",toarray"`
	PieceCID  []byte
	Depositor []byte
	Payout    []byte
}

// Dispatch routes a numeric method selector to its operation, decoding the
// canonical CBOR parameter tuple and encoding the result payload. A nil
// return payload means the operation produces no data. An unknown selector
// fails with ErrUnhandledOperation.
func (e *Engine) Dispatch(rt runtime.Runtime, method uint64, params []byte) ([]byte, error) {
	switch method {
	case MethodInitialize:
		var wire initializeParams
		if err := codec.Unmarshal(params, &wire); err != nil {
			return nil, serializationf("decode initialize params: %v", err)
		}
		authority, err := types.AddressFromBytes(wire.Authority)
		if err != nil {
			return nil, serializationf("decode initialize params: %v", err)
		}
		return nil, e.Initialize(rt, authority)

	case MethodDeposit:
		key, err := decodeKeyParams(params)
		if err != nil {
			return nil, err
		}
		return nil, e.Deposit(rt, key)

	case MethodList:
		bounties, err := e.List(rt)
		if err != nil {
			return nil, err
		}
		payload, err := types.EncodePostedBounties(bounties)
		if err != nil {
			return nil, serializationf("encode listing: %v", err)
		}
		return payload, nil

	case MethodLookup:
		key, err := decodeKeyParams(params)
		if err != nil {
			return nil, err
		}
		balance, err := e.Lookup(rt, key)
		if err != nil {
			return nil, err
		}
		payload, err := types.BountyValue{Amount: balance}.Encode()
		if err != nil {
			return nil, serializationf("encode balance: %v", err)
		}
		return payload, nil

	case MethodAward:
		var wire awardParams
		if err := codec.Unmarshal(params, &wire); err != nil {
			return nil, serializationf("decode award params: %v", err)
		}
		pieceCID, err := cid.Cast(wire.PieceCID)
		if err != nil {
			return nil, serializationf("decode award piece cid: %v", err)
		}
		depositor, err := types.AddressFromBytes(wire.Depositor)
		if err != nil {
			return nil, serializationf("decode award depositor: %v", err)
		}
		payout, err := types.AddressFromBytes(wire.Payout)
		if err != nil {
			return nil, serializationf("decode award payout: %v", err)
		}
		key := types.BountyKey{PieceCID: pieceCID, Depositor: depositor}
		return nil, e.Award(rt, key, payout)

	default:
		return nil, ErrUnhandledOperation
	}
}

// decodeKeyParams decodes the (pieceCID, depositor) parameter tuple shared by
// deposit and lookup. The tuple encoding is identical to the canonical index
// key encoding.
func decodeKeyParams(params []byte) (types.BountyKey, error) {
	key, err := types.DecodeBountyKey(params)
	if err != nil {
		return types.BountyKey{}, serializationf("decode bounty key params: %v", err)
	}
	return key, nil
}

// EncodeInitializeParams builds the parameter tuple for MethodInitialize.
func EncodeInitializeParams(authority types.Address) ([]byte, error) {
	return codec.Marshal(initializeParams{Authority: authority.Bytes()})
}

// EncodeKeyParams builds the parameter tuple for MethodDeposit and
// MethodLookup.
func EncodeKeyParams(key types.BountyKey) ([]byte, error) {
	return key.Canonical()
}

// EncodeAwardParams builds the parameter tuple for MethodAward.
func EncodeAwardParams(key types.BountyKey, payout types.Address) ([]byte, error) {
	return codec.Marshal(awardParams{
		PieceCID:  key.PieceCID.Bytes(),
		Depositor: key.Depositor.Bytes(),
		Payout:    payout.Bytes(),
	})
}
