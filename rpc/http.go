// Package rpc exposes the bounty operations over a local HTTP surface for
// the daemon. Request bodies are JSON envelopes; they are re-encoded into
// the canonical binary parameter tuples before dispatch so the HTTP layer
// exercises exactly the same call path as any other host.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ipfs/go-cid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bountyledger/core/types"
	"bountyledger/native/bounty"
	"bountyledger/observability/metrics"
	"bountyledger/runtime"
)

// Server routes HTTP requests to the bounty engine over a local runtime.
type Server struct {
	rt      *runtime.Local
	engine  *bounty.Engine
	log     *slog.Logger
	metrics *metrics.BountyMetrics
	router  chi.Router
}

// NewServer wires the HTTP surface. metrics may be nil to disable the
// /metrics endpoint.
func NewServer(rt *runtime.Local, engine *bounty.Engine, log *slog.Logger, m *metrics.BountyMetrics) *Server {
	s := &Server{rt: rt, engine: engine, log: log, metrics: m}
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	if m != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Post("/bounty/initialize", s.handleInitialize)
	r.Post("/bounty/deposit", s.handleDeposit)
	r.Get("/bounty/list", s.handleList)
	r.Post("/bounty/lookup", s.handleLookup)
	r.Post("/bounty/award", s.handleAward)
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

type initializeRequest struct {
	Caller    string `json:"caller"`
	Authority string `json:"authority"`
}

type depositRequest struct {
	Caller    string `json:"caller"`
	Value     string `json:"value"`
	PieceCID  string `json:"pieceCid"`
	Depositor string `json:"depositor"`
}

type lookupRequest struct {
	PieceCID  string `json:"pieceCid"`
	Depositor string `json:"depositor"`
}

type awardRequest struct {
	Caller    string `json:"caller"`
	PieceCID  string `json:"pieceCid"`
	Depositor string `json:"depositor"`
	Payout    string `json:"payout"`
}

type bountyEntry struct {
	PieceCID  string `json:"pieceCid"`
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "initialize", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, "initialize", fmt.Errorf("%w: caller: %v", bounty.ErrSerialization, err))
		return
	}
	authority, err := parseAddress(req.Authority)
	if err != nil {
		s.writeError(w, "initialize", fmt.Errorf("%w: authority: %v", bounty.ErrSerialization, err))
		return
	}
	params, err := bounty.EncodeInitializeParams(authority)
	if err != nil {
		s.writeError(w, "initialize", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	if _, err := s.invoke(caller, nil, bounty.MethodInitialize, params); err != nil {
		s.writeError(w, "initialize", err)
		return
	}
	s.observe("initialize", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "deposit", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, "deposit", fmt.Errorf("%w: caller: %v", bounty.ErrSerialization, err))
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		s.writeError(w, "deposit", fmt.Errorf("%w: value: %v", bounty.ErrSerialization, err))
		return
	}
	key, err := parseKey(req.PieceCID, req.Depositor)
	if err != nil {
		s.writeError(w, "deposit", err)
		return
	}
	params, err := bounty.EncodeKeyParams(key)
	if err != nil {
		s.writeError(w, "deposit", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	if _, err := s.invoke(caller, value, bounty.MethodDeposit, params); err != nil {
		s.writeError(w, "deposit", err)
		return
	}
	s.observe("deposit", "ok")
	s.refreshFundedKeys()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	payload, err := s.invoke(types.Address{}, nil, bounty.MethodList, nil)
	if err != nil {
		s.writeError(w, "list", err)
		return
	}
	bounties, err := types.DecodePostedBounties(payload)
	if err != nil {
		s.writeError(w, "list", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	entries := make([]bountyEntry, 0, len(bounties))
	for _, b := range bounties {
		entries = append(entries, bountyEntry{
			PieceCID:  b.PieceCID.String(),
			Depositor: b.Depositor.Hex(),
			Amount:    b.Amount.String(),
		})
	}
	if s.metrics != nil {
		s.metrics.SetFundedKeys(len(entries))
	}
	s.observe("list", "ok")
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "lookup", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	key, err := parseKey(req.PieceCID, req.Depositor)
	if err != nil {
		s.writeError(w, "lookup", err)
		return
	}
	params, err := bounty.EncodeKeyParams(key)
	if err != nil {
		s.writeError(w, "lookup", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	payload, err := s.invoke(types.Address{}, nil, bounty.MethodLookup, params)
	if err != nil {
		s.writeError(w, "lookup", err)
		return
	}
	value, err := types.DecodeBountyValue(payload)
	if err != nil {
		s.writeError(w, "lookup", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	s.observe("lookup", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"amount": value.Amount.String()})
}

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "award", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, "award", fmt.Errorf("%w: caller: %v", bounty.ErrSerialization, err))
		return
	}
	key, err := parseKey(req.PieceCID, req.Depositor)
	if err != nil {
		s.writeError(w, "award", err)
		return
	}
	payout, err := parseAddress(req.Payout)
	if err != nil {
		s.writeError(w, "award", fmt.Errorf("%w: payout: %v", bounty.ErrSerialization, err))
		return
	}
	params, err := bounty.EncodeAwardParams(key, payout)
	if err != nil {
		s.writeError(w, "award", fmt.Errorf("%w: %v", bounty.ErrSerialization, err))
		return
	}
	if _, err := s.invoke(caller, nil, bounty.MethodAward, params); err != nil {
		s.writeError(w, "award", err)
		return
	}
	s.observe("award", "ok")
	if s.metrics != nil {
		s.metrics.ObservePayout()
	}
	s.refreshFundedKeys()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) invoke(caller types.Address, value *big.Int, method uint64, params []byte) ([]byte, error) {
	return s.rt.Invoke(caller, value, func(rt runtime.Runtime) ([]byte, error) {
		return s.engine.Dispatch(rt, method, params)
	})
}

// refreshFundedKeys recomputes the funded-keys gauge after a mutation.
func (s *Server) refreshFundedKeys() {
	if s.metrics == nil {
		return
	}
	payload, err := s.invoke(types.Address{}, nil, bounty.MethodList, nil)
	if err != nil {
		return
	}
	if bounties, err := types.DecodePostedBounties(payload); err == nil {
		s.metrics.SetFundedKeys(len(bounties))
	}
}

func (s *Server) observe(method, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOp(method, outcome)
	}
}

func (s *Server) writeError(w http.ResponseWriter, method string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bounty.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, bounty.ErrSerialization):
		status = http.StatusBadRequest
	case errors.Is(err, bounty.ErrUnhandledOperation):
		status = http.StatusNotFound
	}
	s.observe(method, "error")
	if s.log != nil {
		s.log.Error("bounty operation failed",
			slog.String("method", method),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseAddress(value string) (types.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return types.Address{}, fmt.Errorf("invalid hex address: %q", value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %q", value)
	}
	return amount, nil
}

func parseKey(pieceCID, depositor string) (types.BountyKey, error) {
	c, err := cid.Decode(strings.TrimSpace(pieceCID))
	if err != nil {
		return types.BountyKey{}, fmt.Errorf("%w: pieceCid: %v", bounty.ErrSerialization, err)
	}
	addr, err := parseAddress(depositor)
	if err != nil {
		return types.BountyKey{}, fmt.Errorf("%w: depositor: %v", bounty.ErrSerialization, err)
	}
	return types.BountyKey{PieceCID: c, Depositor: addr}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
