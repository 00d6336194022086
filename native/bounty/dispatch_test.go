package bounty

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"bountyledger/core/types"
	"bountyledger/runtime"
	"bountyledger/storage"
)

func dispatchOn(t *testing.T, local *runtime.Local, engine *Engine, caller types.Address, value int64, method uint64, params []byte) ([]byte, error) {
	t.Helper()
	return local.Invoke(caller, big.NewInt(value), func(rt runtime.Runtime) ([]byte, error) {
		return engine.Dispatch(rt, method, params)
	})
}

func TestDispatchUnknownMethod(t *testing.T) {
	local := runtime.NewLocal(storage.NewMemDB(), bootstrapAddr)
	engine := NewEngine()

	_, err := dispatchOn(t, local, engine, bootstrapAddr, 0, 99, nil)
	require.ErrorIs(t, err, ErrUnhandledOperation)
}

func TestDispatchRejectsMalformedParams(t *testing.T) {
	local := runtime.NewLocal(storage.NewMemDB(), bootstrapAddr)
	engine := NewEngine()

	for _, method := range []uint64{MethodInitialize, MethodDeposit, MethodLookup, MethodAward} {
		_, err := dispatchOn(t, local, engine, bootstrapAddr, 0, method, []byte{0xff, 0x00})
		require.ErrorIs(t, err, ErrSerialization, "method %d", method)
	}
}

func TestDispatchFullLifecycle(t *testing.T) {
	local := runtime.NewLocal(storage.NewMemDB(), bootstrapAddr)
	engine := NewEngine()
	key := testKey(t, "dispatched piece")

	initParams, err := EncodeInitializeParams(trustedAddr)
	require.NoError(t, err)
	ret, err := dispatchOn(t, local, engine, bootstrapAddr, 0, MethodInitialize, initParams)
	require.NoError(t, err)
	require.Nil(t, ret)

	keyParams, err := EncodeKeyParams(key)
	require.NoError(t, err)

	ret, err = dispatchOn(t, local, engine, depositorAddr, 25, MethodDeposit, keyParams)
	require.NoError(t, err)
	require.Nil(t, ret)

	payload, err := dispatchOn(t, local, engine, types.Address{}, 0, MethodLookup, keyParams)
	require.NoError(t, err)
	value, err := types.DecodeBountyValue(payload)
	require.NoError(t, err)
	require.Equal(t, int64(25), value.Amount.Int64())

	payload, err = dispatchOn(t, local, engine, types.Address{}, 0, MethodList, nil)
	require.NoError(t, err)
	bounties, err := types.DecodePostedBounties(payload)
	require.NoError(t, err)
	require.Len(t, bounties, 1)
	require.Equal(t, key.PieceCID, bounties[0].PieceCID)
	require.Equal(t, key.Depositor, bounties[0].Depositor)

	awardParams, err := EncodeAwardParams(key, payoutAddr)
	require.NoError(t, err)
	ret, err = dispatchOn(t, local, engine, trustedAddr, 0, MethodAward, awardParams)
	require.NoError(t, err)
	require.Nil(t, ret)
	require.Equal(t, int64(25), local.BalanceOf(payoutAddr).Int64())

	payload, err = dispatchOn(t, local, engine, types.Address{}, 0, MethodLookup, keyParams)
	require.NoError(t, err)
	value, err = types.DecodeBountyValue(payload)
	require.NoError(t, err)
	require.Zero(t, value.Amount.Sign())
}
