package prefixmap

import (
	"github.com/netrangr/prefixmap/netblock"
)

// bruteTable is a brute force implementation of the table's lookup contract.
// Blocks live in a plain map keyed by their display string, and every lookup
// scans all of them for the most specific match, so worst case performance is
// O(N).  The main purpose of this implementation is testing: its correctness
// is easy to guarantee, and it serves as the ground truth when running wider
// ranges of random tests against the sorted-array table.
//
// Lookup considers only blocks carrying the candidate's exact scope id, the
// same partitioning Table's ordering produces: scoped ranges never answer
// unscoped queries and vice versa.
type bruteTable[V any] struct {
	mappings map[string]bruteMapping[V]
}

type bruteMapping[V any] struct {
	block *netblock.Block
	value V
}

func newBruteTable[V any]() *bruteTable[V] {
	return &bruteTable[V]{mappings: make(map[string]bruteMapping[V])}
}

func (b *bruteTable[V]) put(block *netblock.Block, value V) {
	b.mappings[block.String()] = bruteMapping[V]{block: block, value: value}
}

func (b *bruteTable[V]) remove(block *netblock.Block) (V, bool) {
	key := block.String()
	m, found := b.mappings[key]
	if found {
		delete(b.mappings, key)
	}
	return m.value, found
}

func (b *bruteTable[V]) get(addr []byte, scopeID uint32) (V, bool) {
	var best *bruteMapping[V]
	for key := range b.mappings {
		m := b.mappings[key]
		if m.block.ScopeID() != scopeID || !m.block.Matches(addr, scopeID) {
			continue
		}
		if best == nil || m.block.PrefixLen() > best.block.PrefixLen() {
			best = &m
		}
	}
	if best == nil {
		var zero V
		return zero, false
	}
	return best.value, true
}

// containing returns the blocks containing addr, most specific first.
func (b *bruteTable[V]) containing(addr []byte, scopeID uint32) []*netblock.Block {
	var out []*netblock.Block
	for key := range b.mappings {
		m := b.mappings[key]
		if m.block.ScopeID() == scopeID && m.block.Matches(addr, scopeID) {
			out = append(out, m.block)
		}
	}
	// containing blocks strictly nest, so specificity gives a unique order
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[i].PrefixLen() < out[j].PrefixLen() {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (b *bruteTable[V]) size() int {
	return len(b.mappings)
}
