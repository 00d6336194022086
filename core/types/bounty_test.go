package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

func testCID(t *testing.T, seed string) cid.Cid {
	t.Helper()
	hash, err := mh.Sum([]byte(seed), mh.BLAKE2B_MIN+31, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, hash)
}

func TestBountyKeyCanonicalRoundTrip(t *testing.T) {
	key := BountyKey{
		PieceCID:  testCID(t, "piece"),
		Depositor: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}

	encoded, err := key.Canonical()
	require.NoError(t, err)

	decoded, err := DecodeBountyKey(encoded)
	require.NoError(t, err)
	require.Equal(t, key, decoded)

	// Canonical means equal keys encode identically.
	again, err := key.Canonical()
	require.NoError(t, err)
	require.Equal(t, encoded, again)
}

func TestBountyKeyCanonicalDistinguishesFields(t *testing.T) {
	base := BountyKey{
		PieceCID:  testCID(t, "piece"),
		Depositor: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
	otherPiece := BountyKey{
		PieceCID:  testCID(t, "other piece"),
		Depositor: base.Depositor,
	}
	otherDepositor := BountyKey{
		PieceCID:  base.PieceCID,
		Depositor: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}

	b1, err := base.Canonical()
	require.NoError(t, err)
	b2, err := otherPiece.Canonical()
	require.NoError(t, err)
	b3, err := otherDepositor.Canonical()
	require.NoError(t, err)

	require.NotEqual(t, b1, b2)
	require.NotEqual(t, b1, b3)
}

func TestBountyKeyUndefinedCIDRejected(t *testing.T) {
	key := BountyKey{Depositor: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	_, err := key.Canonical()
	require.Error(t, err)
}

func TestBountyValueRoundTrip(t *testing.T) {
	for _, amount := range []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(123456789),
		new(big.Int).Lsh(big.NewInt(1), 128), // larger than any machine word
	} {
		encoded, err := BountyValue{Amount: amount}.Encode()
		require.NoError(t, err)

		decoded, err := DecodeBountyValue(encoded)
		require.NoError(t, err)
		require.Zero(t, amount.Cmp(decoded.Amount))
	}
}

func TestBountyValueRejectsNegative(t *testing.T) {
	_, err := BountyValue{Amount: big.NewInt(-1)}.Encode()
	require.Error(t, err)
}

func TestPostedBountiesRoundTrip(t *testing.T) {
	bounties := []PostedBounty{
		{
			PieceCID:  testCID(t, "p1"),
			Depositor: common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Amount:    big.NewInt(5),
		},
		{
			PieceCID:  testCID(t, "p2"),
			Depositor: common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Amount:    big.NewInt(12),
		},
	}

	payload, err := EncodePostedBounties(bounties)
	require.NoError(t, err)

	decoded, err := DecodePostedBounties(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	for i := range bounties {
		require.Equal(t, bounties[i].PieceCID, decoded[i].PieceCID)
		require.Equal(t, bounties[i].Depositor, decoded[i].Depositor)
		require.Zero(t, bounties[i].Amount.Cmp(decoded[i].Amount))
	}
}

func TestAddressFromBytesLength(t *testing.T) {
	_, err := AddressFromBytes(make([]byte, 19))
	require.Error(t, err)
	_, err = AddressFromBytes(make([]byte, 21))
	require.Error(t, err)

	addr, err := AddressFromBytes(make([]byte, 20))
	require.NoError(t, err)
	require.Equal(t, Address{}, addr)
}
