package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"bountyledger/native/bounty"
	"bountyledger/runtime"
	"bountyledger/storage"
)

var (
	bootstrapHex = "0x0000000000000000000000000000000000000001"
	trustedHex   = "0x00000000000000000000000000000000000000aa"
	depositorHex = "0x00000000000000000000000000000000000000bb"
	payoutHex    = "0x00000000000000000000000000000000000000cc"
	strangerHex  = "0x00000000000000000000000000000000000000dd"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	local := runtime.NewLocal(storage.NewMemDB(), common.HexToAddress(bootstrapHex))
	engine := bounty.NewEngine()

	params, err := bounty.EncodeInitializeParams(common.HexToAddress(trustedHex))
	require.NoError(t, err)
	_, err = local.Invoke(common.HexToAddress(bootstrapHex), big.NewInt(0), func(rt runtime.Runtime) ([]byte, error) {
		return engine.Dispatch(rt, bounty.MethodInitialize, params)
	})
	require.NoError(t, err)

	s := NewServer(local, engine, nil, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func testPieceCID(t *testing.T) string {
	t.Helper()
	hash, err := mh.Sum([]byte("a piece"), mh.BLAKE2B_MIN+31, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, hash).String()
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDepositLookupList(t *testing.T) {
	_, ts := newTestServer(t)
	piece := testPieceCID(t)

	resp := postJSON(t, ts.URL+"/bounty/deposit", depositRequest{
		Caller:    depositorHex,
		Value:     "41",
		PieceCID:  piece,
		Depositor: depositorHex,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/bounty/lookup", lookupRequest{
		PieceCID:  piece,
		Depositor: depositorHex,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lookupBody map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lookupBody))
	require.Equal(t, "41", lookupBody["amount"])

	resp, err := http.Get(ts.URL + "/bounty/list")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []bountyEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	require.Equal(t, piece, entries[0].PieceCID)
	require.Equal(t, "41", entries[0].Amount)
}

func TestAwardRequiresTrustedAuthority(t *testing.T) {
	_, ts := newTestServer(t)
	piece := testPieceCID(t)

	resp := postJSON(t, ts.URL+"/bounty/deposit", depositRequest{
		Caller:    depositorHex,
		Value:     "10",
		PieceCID:  piece,
		Depositor: depositorHex,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/bounty/award", awardRequest{
		Caller:    strangerHex,
		PieceCID:  piece,
		Depositor: depositorHex,
		Payout:    payoutHex,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAwardPaysOut(t *testing.T) {
	s, ts := newTestServer(t)
	piece := testPieceCID(t)

	resp := postJSON(t, ts.URL+"/bounty/deposit", depositRequest{
		Caller:    depositorHex,
		Value:     "10",
		PieceCID:  piece,
		Depositor: depositorHex,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/bounty/award", awardRequest{
		Caller:    trustedHex,
		PieceCID:  piece,
		Depositor: depositorHex,
		Payout:    payoutHex,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, int64(10), s.rt.BalanceOf(common.HexToAddress(payoutHex)).Int64())

	resp = postJSON(t, ts.URL+"/bounty/lookup", lookupRequest{
		PieceCID:  piece,
		Depositor: depositorHex,
	})
	defer resp.Body.Close()
	var lookupBody map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lookupBody))
	require.Equal(t, "0", lookupBody["amount"])
}

func TestMalformedRequestRejected(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/bounty/deposit", depositRequest{
		Caller:    "not-an-address",
		Value:     "1",
		PieceCID:  testPieceCID(t),
		Depositor: depositorHex,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/bounty/lookup", lookupRequest{
		PieceCID:  "not-a-cid",
		Depositor: depositorHex,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
