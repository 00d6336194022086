// Package hamt implements a persistent hash-array-mapped trie whose nodes
// are content-addressed blocks. The flushed root CID is a pure function of
// the (key, value) set the map contains: two maps holding the same entries
// produce the same root regardless of the mutation history that built them.
//
// Mutations rewrite only the nodes along the affected root-to-leaf path, so
// previously flushed roots remain valid, queryable snapshots that share
// structure with newer versions.
//
// A Map is not safe for concurrent use.
package hamt

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"

	"bountyledger/storage"
)

// Map is a mutable in-memory view over a (possibly empty) flushed trie.
// Reads and writes operate against the in-memory state; nothing is visible
// to other loads of the same blockstore until Flush.
type Map struct {
	bs   storage.Blockstore
	root *node
}

// NewEmpty creates a map with no entries.
func NewEmpty(bs storage.Blockstore) *Map {
	return &Map{bs: bs, root: newNode(bs)}
}

// Load opens the trie rooted at the given CID. A corrupt or missing root
// block is an error; there is no degraded mode.
func Load(bs storage.Blockstore, root cid.Cid) (*Map, error) {
	data, err := bs.Get(root)
	if err != nil {
		return nil, fmt.Errorf("hamt: load root %s: %w", root, err)
	}
	n, err := decodeNode(data, bs)
	if err != nil {
		return nil, fmt.Errorf("hamt: decode root %s: %w", root, err)
	}
	return &Map{bs: bs, root: n}, nil
}

// Get returns the value stored under key, or found == false if absent.
func (m *Map) Get(key []byte) ([]byte, bool, error) {
	hb := &hashBits{b: hashKey(key)}
	return m.root.get(hb, key)
}

// Set inserts or replaces the value stored under key. The change is
// in-memory only until Flush.
func (m *Map) Set(key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	hb := &hashBits{b: hashKey(k)}
	return m.root.set(hb, k, v)
}

// Delete removes the entry stored under key, reporting whether it existed.
// Removing an absent key is a no-op.
func (m *Map) Delete(key []byte) (bool, error) {
	hb := &hashBits{b: hashKey(key)}
	return m.root.delete(hb, key)
}

// Flush writes all dirty nodes to the blockstore bottom-up and returns the
// new root CID.
func (m *Map) Flush() (cid.Cid, error) {
	if err := m.root.flushChildren(); err != nil {
		return cid.Undef, err
	}
	data, err := m.root.encode()
	if err != nil {
		return cid.Undef, err
	}
	c, err := m.bs.Put(data)
	if err != nil {
		return cid.Undef, fmt.Errorf("hamt: flush root: %w", err)
	}
	return c, nil
}

// ForEach visits every entry. The order is the trie's internal bucket order:
// deterministic for a given content set, but unrelated to insertion order.
// The callback must not mutate the map.
func (m *Map) ForEach(fn func(key, value []byte) error) error {
	return m.root.forEach(fn)
}

func (n *node) get(hb *hashBits, key []byte) ([]byte, bool, error) {
	idx, err := hb.next()
	if err != nil {
		return nil, false, err
	}
	if !n.bitSet(idx) {
		return nil, false, nil
	}
	p := n.pointerAt(idx)
	if p.isShard() {
		child, err := p.loadChild(n.bs)
		if err != nil {
			return nil, false, err
		}
		return child.get(hb, key)
	}
	for _, kv := range p.kvs {
		if bytes.Equal(kv.Key, key) {
			return kv.Value, true, nil
		}
	}
	return nil, false, nil
}

func (n *node) set(hb *hashBits, key, value []byte) error {
	idx, err := hb.next()
	if err != nil {
		return err
	}
	if !n.bitSet(idx) {
		n.insertPointer(idx, &pointer{kvs: []*KV{{Key: key, Value: value}}})
		return nil
	}
	p := n.pointerAt(idx)
	if p.isShard() {
		child, err := p.loadChild(n.bs)
		if err != nil {
			return err
		}
		if err := child.set(hb, key, value); err != nil {
			return err
		}
		p.dirty = true
		p.link = cid.Undef
		return nil
	}
	for _, kv := range p.kvs {
		if bytes.Equal(kv.Key, key) {
			kv.Value = value
			return nil
		}
	}
	if len(p.kvs) < bucketSize {
		i := sort.Search(len(p.kvs), func(i int) bool {
			return bytes.Compare(p.kvs[i].Key, key) > 0
		})
		p.kvs = append(p.kvs, nil)
		copy(p.kvs[i+1:], p.kvs[i:])
		p.kvs[i] = &KV{Key: key, Value: value}
		return nil
	}
	// Bucket overflow: push the existing entries and the new one down into
	// a child shard keyed by the next hash chunk.
	child := newNode(n.bs)
	depth := hb.consumed
	for _, kv := range p.kvs {
		chb := &hashBits{b: hashKey(kv.Key), consumed: depth}
		if err := child.set(chb, kv.Key, kv.Value); err != nil {
			return err
		}
	}
	if err := child.set(hb, key, value); err != nil {
		return err
	}
	p.kvs = nil
	p.cache = child
	p.dirty = true
	p.link = cid.Undef
	return nil
}

func (n *node) delete(hb *hashBits, key []byte) (bool, error) {
	idx, err := hb.next()
	if err != nil {
		return false, err
	}
	if !n.bitSet(idx) {
		return false, nil
	}
	p := n.pointerAt(idx)
	if p.isShard() {
		child, err := p.loadChild(n.bs)
		if err != nil {
			return false, err
		}
		found, err := child.delete(hb, key)
		if err != nil || !found {
			return found, err
		}
		p.dirty = true
		p.link = cid.Undef
		return true, n.canonicalize(p, idx)
	}
	for i, kv := range p.kvs {
		if bytes.Equal(kv.Key, key) {
			if len(p.kvs) == 1 {
				n.removePointer(idx)
			} else {
				p.kvs = append(p.kvs[:i], p.kvs[i+1:]...)
			}
			return true, nil
		}
	}
	return false, nil
}

// canonicalize restores the invariant that a subtree holding few enough
// entries is represented as an inline bucket, so the structure stays a pure
// function of contents after deletes.
func (n *node) canonicalize(p *pointer, idx int) error {
	child := p.cache
	switch {
	case len(child.pointers) == 0:
		n.removePointer(idx)
		return nil
	case len(child.pointers) == 1 && !child.pointers[0].isShard():
		// A lone bucket has no reason to live one level down.
		p.kvs = child.pointers[0].kvs
		p.cache = nil
		p.dirty = false
		p.link = cid.Undef
		return nil
	}
	// Merge scattered buckets back into one when they fit.
	total := 0
	for _, cp := range child.pointers {
		if cp.isShard() {
			return nil
		}
		total += len(cp.kvs)
	}
	if total > bucketSize {
		return nil
	}
	merged := make([]*KV, 0, total)
	for _, cp := range child.pointers {
		merged = append(merged, cp.kvs...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return bytes.Compare(merged[i].Key, merged[j].Key) < 0
	})
	p.kvs = merged
	p.cache = nil
	p.dirty = false
	p.link = cid.Undef
	return nil
}

func (n *node) flushChildren() error {
	for _, p := range n.pointers {
		if !p.isShard() || !p.dirty {
			continue
		}
		if err := p.cache.flushChildren(); err != nil {
			return err
		}
		data, err := p.cache.encode()
		if err != nil {
			return err
		}
		c, err := n.bs.Put(data)
		if err != nil {
			return fmt.Errorf("hamt: flush node: %w", err)
		}
		p.link = c
		p.dirty = false
	}
	return nil
}

func (n *node) forEach(fn func(key, value []byte) error) error {
	for _, p := range n.pointers {
		if p.isShard() {
			child, err := p.loadChild(n.bs)
			if err != nil {
				return err
			}
			if err := child.forEach(fn); err != nil {
				return err
			}
			continue
		}
		for _, kv := range p.kvs {
			if err := fn(kv.Key, kv.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
