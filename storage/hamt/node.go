package hamt

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/bits"

	"github.com/ipfs/go-cid"

	"bountyledger/core/codec"
	"bountyledger/storage"
)

const (
	// bitWidth is the number of hash bits consumed per trie level, giving
	// 32-way branching. Changing it changes every root.
	bitWidth = 5
	// bucketSize is the maximum number of entries held inline in a leaf
	// bucket before it is split into a child shard.
	bucketSize = 3
)

var (
	// ErrMaxDepth is returned when the key hash is exhausted before the
	// lookup resolves. With 256 hash bits this is unreachable in practice.
	ErrMaxDepth = errors.New("hamt: maximum trie depth exceeded")
	// ErrCorruptNode is returned when a stored node fails structural
	// validation during decode.
	ErrCorruptNode = errors.New("hamt: corrupt node")
)

// hashKey derives the routing digest for a map key.
func hashKey(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}

// hashBits consumes a digest in bitWidth-sized chunks.
type hashBits struct {
	b        []byte
	consumed int
}

func mkmask(n int) byte {
	return (1 << uint(n)) - 1
}

// next returns the next bitWidth bits of the digest as an int.
func (hb *hashBits) next() (int, error) {
	if hb.consumed+bitWidth > len(hb.b)*8 {
		return 0, ErrMaxDepth
	}
	return hb.take(bitWidth), nil
}

func (hb *hashBits) take(i int) int {
	curbi := hb.consumed / 8
	leftb := 8 - (hb.consumed % 8)
	curb := hb.b[curbi]
	switch {
	case i == leftb:
		out := int(mkmask(i) & curb)
		hb.consumed += i
		return out
	case i < leftb:
		a := curb & mkmask(leftb)
		b := a & ^mkmask(leftb-i)
		c := b >> uint(leftb-i)
		hb.consumed += i
		return int(c)
	default:
		out := int(mkmask(leftb) & curb)
		out <<= uint(i - leftb)
		hb.consumed += leftb
		out += hb.take(i - leftb)
		return out
	}
}

// KV is a single key/value entry held inline in a leaf bucket.
type KV struct {
	Key   []byte
	Value []byte
}

// pointer is one slot of a node: either a link to a child shard (possibly
// cached in memory) or an inline bucket of up to bucketSize entries.
type pointer struct {
	link  cid.Cid // flushed child shard; undefined while dirty
	cache *node   // loaded or in-memory child shard
	dirty bool    // cache has mutations not yet flushed
	kvs   []*KV   // leaf bucket, sorted by key; nil for shard pointers
}

func (p *pointer) isShard() bool {
	return p.kvs == nil
}

// loadChild returns the in-memory child shard for a shard pointer, fetching
// and decoding it from the blockstore on first access.
func (p *pointer) loadChild(bs storage.Blockstore) (*node, error) {
	if p.cache != nil {
		return p.cache, nil
	}
	if !p.link.Defined() {
		return nil, fmt.Errorf("%w: shard pointer with no link", ErrCorruptNode)
	}
	data, err := bs.Get(p.link)
	if err != nil {
		return nil, fmt.Errorf("hamt: load node %s: %w", p.link, err)
	}
	child, err := decodeNode(data, bs)
	if err != nil {
		return nil, fmt.Errorf("hamt: decode node %s: %w", p.link, err)
	}
	p.cache = child
	return child, nil
}

// node is one shard of the trie. pointers holds one entry per set bit of
// bitfield, in ascending bit order.
type node struct {
	bitfield uint32
	pointers []*pointer
	bs       storage.Blockstore
}

func newNode(bs storage.Blockstore) *node {
	return &node{bs: bs}
}

func (n *node) bitSet(idx int) bool {
	return n.bitfield&(1<<uint(idx)) != 0
}

// slotFor returns the position in pointers for hash index idx: the number of
// set bits below idx.
func (n *node) slotFor(idx int) int {
	return bits.OnesCount32(n.bitfield & ((1 << uint(idx)) - 1))
}

func (n *node) pointerAt(idx int) *pointer {
	return n.pointers[n.slotFor(idx)]
}

func (n *node) insertPointer(idx int, p *pointer) {
	slot := n.slotFor(idx)
	n.pointers = append(n.pointers, nil)
	copy(n.pointers[slot+1:], n.pointers[slot:])
	n.pointers[slot] = p
	n.bitfield |= 1 << uint(idx)
}

func (n *node) removePointer(idx int) {
	slot := n.slotFor(idx)
	n.pointers = append(n.pointers[:slot], n.pointers[slot+1:]...)
	n.bitfield &^= 1 << uint(idx)
}

// --- wire format ---

type kvWire struct {
	_     struct{} `cbor:",toarray"`
	Key   []byte
	Value []byte
}

type pointerWire struct {
	_    struct{} `cbor:",toarray"`
	Link []byte
	KVs  []kvWire
}

type nodeWire struct {
	_        struct{} `cbor:",toarray"`
	Bitfield []byte
	Pointers []pointerWire
}

func bitfieldToBytes(bf uint32) []byte {
	out := []byte{
		byte(bf >> 24), byte(bf >> 16), byte(bf >> 8), byte(bf),
	}
	for len(out) > 0 && out[0] == 0 {
		out = out[1:]
	}
	return out
}

func bitfieldFromBytes(b []byte) (uint32, error) {
	if len(b) > 4 {
		return 0, fmt.Errorf("%w: bitfield longer than 4 bytes", ErrCorruptNode)
	}
	if len(b) > 0 && b[0] == 0 {
		return 0, fmt.Errorf("%w: bitfield has leading zero", ErrCorruptNode)
	}
	var bf uint32
	for _, c := range b {
		bf = bf<<8 | uint32(c)
	}
	return bf, nil
}

// encode serializes the node. All cached children must already be flushed so
// every shard pointer carries a defined link.
func (n *node) encode() ([]byte, error) {
	wire := nodeWire{
		Bitfield: bitfieldToBytes(n.bitfield),
		Pointers: make([]pointerWire, 0, len(n.pointers)),
	}
	for _, p := range n.pointers {
		if p.isShard() {
			if p.dirty || !p.link.Defined() {
				return nil, fmt.Errorf("hamt: encode node with unflushed child")
			}
			wire.Pointers = append(wire.Pointers, pointerWire{Link: p.link.Bytes()})
			continue
		}
		kvs := make([]kvWire, 0, len(p.kvs))
		for _, kv := range p.kvs {
			kvs = append(kvs, kvWire{Key: kv.Key, Value: kv.Value})
		}
		wire.Pointers = append(wire.Pointers, pointerWire{KVs: kvs})
	}
	return codec.Marshal(wire)
}

// decodeNode deserializes and structurally validates a stored node.
func decodeNode(data []byte, bs storage.Blockstore) (*node, error) {
	var wire nodeWire
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptNode, err)
	}
	bf, err := bitfieldFromBytes(wire.Bitfield)
	if err != nil {
		return nil, err
	}
	if bits.OnesCount32(bf) != len(wire.Pointers) {
		return nil, fmt.Errorf("%w: bitfield count does not match pointers", ErrCorruptNode)
	}
	n := &node{bitfield: bf, bs: bs, pointers: make([]*pointer, 0, len(wire.Pointers))}
	for _, pw := range wire.Pointers {
		switch {
		case pw.Link != nil && pw.KVs != nil:
			return nil, fmt.Errorf("%w: pointer has both link and bucket", ErrCorruptNode)
		case pw.Link != nil:
			link, err := cid.Cast(pw.Link)
			if err != nil {
				return nil, fmt.Errorf("%w: bad link: %v", ErrCorruptNode, err)
			}
			n.pointers = append(n.pointers, &pointer{link: link})
		case len(pw.KVs) > 0:
			if len(pw.KVs) > bucketSize {
				return nil, fmt.Errorf("%w: oversized bucket", ErrCorruptNode)
			}
			kvs := make([]*KV, 0, len(pw.KVs))
			for i, kv := range pw.KVs {
				if i > 0 && bytes.Compare(pw.KVs[i-1].Key, kv.Key) >= 0 {
					return nil, fmt.Errorf("%w: bucket keys out of order", ErrCorruptNode)
				}
				kvs = append(kvs, &KV{Key: kv.Key, Value: kv.Value})
			}
			n.pointers = append(n.pointers, &pointer{kvs: kvs})
		default:
			return nil, fmt.Errorf("%w: empty pointer", ErrCorruptNode)
		}
	}
	return n, nil
}
