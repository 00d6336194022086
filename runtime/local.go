package runtime

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ipfs/go-cid"

	"bountyledger/core/types"
	"bountyledger/storage"
)

var (
	// ErrNoRoot is returned by Root before the first initialize.
	ErrNoRoot = errors.New("runtime: no state root published")
	// ErrNoCall is returned when a call-scoped capability is used outside
	// of Invoke.
	ErrNoCall = errors.New("runtime: no call in progress")
	// ErrInsufficientFunds is returned by Transfer when the ledger does not
	// hold enough value.
	ErrInsufficientFunds = errors.New("runtime: insufficient funds held by ledger")
)

// rootKey is where the current state-root pointer lives in the backing store.
var rootKey = []byte("bountyledger/state-root")

// Local is an in-process host for the ledger core, used by the daemon and by
// tests. It persists the root pointer in the backing database and keeps a
// simple account table for transfers.
//
// Call-level atomicity is provided by staging: Invoke runs the supplied
// function against a call frame holding a scratch copy of the root pointer
// and account table, and commits the frame only when the function succeeds.
// Blocks written to the blockstore by a failed call are left behind, but
// being content-addressed and unreferenced they are unreachable garbage.
//
// Local serializes calls: no two Invokes overlap.
type Local struct {
	mu        sync.Mutex
	db        storage.Database
	bs        storage.Blockstore
	bootstrap types.Address

	accounts map[types.Address]*big.Int
	pool     *big.Int // value held by the ledger against future awards

	call *callFrame
}

type callFrame struct {
	caller   types.Address
	value    *big.Int
	root     *cid.Cid // staged root; nil while untouched
	accounts map[types.Address]*big.Int
	pool     *big.Int
}

// NewLocal creates a local host over the given database. The bootstrap
// address is the only caller allowed to initialize the ledger.
func NewLocal(db storage.Database, bootstrap types.Address) *Local {
	return &Local{
		db:        db,
		bs:        storage.NewBlockstore(db),
		bootstrap: bootstrap,
		accounts:  make(map[types.Address]*big.Int),
		pool:      big.NewInt(0),
	}
}

// Initialized reports whether a state root has ever been published.
func (l *Local) Initialized() (bool, error) {
	return l.db.Has(rootKey)
}

// BalanceOf returns the committed balance credited to an account by awards.
func (l *Local) BalanceOf(addr types.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.accounts[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Invoke executes fn as a single atomic call from the given caller with the
// given attached value. If fn returns an error, nothing the call staged is
// committed and the attached value is not retained.
func (l *Local) Invoke(caller types.Address, value *big.Int, fn func(Runtime) ([]byte, error)) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("runtime: negative attached value")
	}

	frame := &callFrame{
		caller:   caller,
		value:    new(big.Int).Set(value),
		accounts: make(map[types.Address]*big.Int, len(l.accounts)),
		// The attached value joins the ledger's pool; it stays there only
		// if the call commits.
		pool: new(big.Int).Add(l.pool, value),
	}
	for addr, bal := range l.accounts {
		frame.accounts[addr] = new(big.Int).Set(bal)
	}

	l.call = frame
	ret, err := fn(l)
	l.call = nil
	if err != nil {
		return nil, err
	}

	if frame.root != nil {
		if err := l.db.Put(rootKey, frame.root.Bytes()); err != nil {
			return nil, fmt.Errorf("runtime: persist root: %w", err)
		}
	}
	l.accounts = frame.accounts
	l.pool = frame.pool
	return ret, nil
}

func (l *Local) Root() (cid.Cid, error) {
	if l.call != nil && l.call.root != nil {
		return *l.call.root, nil
	}
	data, err := l.db.Get(rootKey)
	if errors.Is(err, storage.ErrNotFound) {
		return cid.Undef, ErrNoRoot
	}
	if err != nil {
		return cid.Undef, fmt.Errorf("runtime: read root: %w", err)
	}
	c, err := cid.Cast(data)
	if err != nil {
		return cid.Undef, fmt.Errorf("runtime: decode root: %w", err)
	}
	return c, nil
}

func (l *Local) SetRoot(c cid.Cid) error {
	if l.call == nil {
		return ErrNoCall
	}
	if !c.Defined() {
		return fmt.Errorf("runtime: set undefined root")
	}
	root := c
	l.call.root = &root
	return nil
}

func (l *Local) Blockstore() storage.Blockstore {
	return l.bs
}

func (l *Local) Caller() types.Address {
	if l.call == nil {
		return types.Address{}
	}
	return l.call.caller
}

func (l *Local) ValueReceived() *big.Int {
	if l.call == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(l.call.value)
}

func (l *Local) Transfer(to types.Address, amount *big.Int) error {
	if l.call == nil {
		return ErrNoCall
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("runtime: invalid transfer amount")
	}
	if l.call.pool.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, l.call.pool, amount)
	}
	l.call.pool = new(big.Int).Sub(l.call.pool, amount)
	bal, ok := l.call.accounts[to]
	if !ok {
		bal = big.NewInt(0)
	}
	l.call.accounts[to] = new(big.Int).Add(bal, amount)
	return nil
}

func (l *Local) BootstrapAuthority() types.Address {
	return l.bootstrap
}
