package prefixmap

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/netrangr/prefixmap/netblock"
)

// mapping binds a stored block to its value and to the snapshot index of the
// nearest enclosing mapping, -1 when none.  The parent index is a lookup
// shortcut, not an ownership edge: it lets Get climb directly to the next
// wider block instead of scanning every broader range.  Mappings are never
// mutated after they are placed in a snapshot; every structural change builds
// a fresh array.
type mapping[V any] struct {
	block  *netblock.Block
	value  V
	parent int
}

// Table is a concurrent map from network blocks to values of type V, with
// point lookups resolving to the most specific enclosing block in O(log n).
//
// The backing store is a single atomically swapped reference to an immutable
// array sorted by the block order of netblock.  Reads are wait-free: they
// operate on one snapshot obtained at the start of the call and always
// observe a fully consistent table.  Writes build a new array and install it
// with a compare-and-swap, retrying when another writer got there first; no
// operation ever blocks, but a writer under sustained contention retries
// until its swap lands.
//
// The zero Table is empty and ready for use.  Methods taking a
// *netblock.Block panic when given nil.
type Table[V any] struct {
	mappings atomic.Pointer[[]mapping[V]]
}

// New returns an empty table.  Equivalent to new(Table[V]).
func New[V any]() *Table[V] {
	return &Table[V]{}
}

func (t *Table[V]) snapshot() []mapping[V] {
	if p := t.mappings.Load(); p != nil {
		return *p
	}
	return nil
}

// findBlock locates the exact range b in ms.
func findBlock[V any](ms []mapping[V], b *netblock.Block) (int, bool) {
	return slices.BinarySearchFunc(ms, b, func(m mapping[V], b *netblock.Block) int {
		return m.block.Compare(b)
	})
}

type addrKey struct {
	addr  []byte
	scope uint32
}

// lookup returns the index of the most specific mapping containing the
// address, or -1.  It binary-searches for a block equal to the address at
// full specificity; on a miss the sorted predecessor is the most specific
// candidate, and any true enclosing block is on that predecessor's parent
// chain.
func lookup[V any](ms []mapping[V], addr []byte, scopeID uint32) int {
	pos, found := slices.BinarySearchFunc(ms, addrKey{addr, scopeID}, func(m mapping[V], k addrKey) int {
		return m.block.CompareKey(k.addr, len(k.addr)*8, k.scope)
	})
	if found {
		return pos
	}
	for i := pos - 1; i >= 0; i = ms[i].parent {
		if ms[i].block.Matches(addr, scopeID) {
			return i
		}
	}
	return -1
}

// Get returns the value of the most specific stored block containing the
// address (4 or 16 bytes, scopeID 0 when unscoped).  The second return is
// false when no stored block contains it.
func (t *Table[V]) Get(addr []byte, scopeID uint32) (V, bool) {
	ms := t.snapshot()
	if i := lookup(ms, addr, scopeID); i >= 0 {
		return ms[i].value, true
	}
	var zero V
	return zero, false
}

// GetOrDefault is Get returning def when no stored block contains the
// address.
func (t *Table[V]) GetOrDefault(addr []byte, scopeID uint32, def V) V {
	if v, ok := t.Get(addr, scopeID); ok {
		return v
	}
	return def
}

// GetBlock returns the value stored for exactly the given range, without any
// longest-prefix matching.
func (t *Table[V]) GetBlock(b *netblock.Block) (V, bool) {
	checkBlock(b)
	ms := t.snapshot()
	if pos, ok := findBlock(ms, b); ok {
		return ms[pos].value, true
	}
	var zero V
	return zero, false
}

// Containing returns every stored mapping whose block contains the address,
// most specific first.  The result is built from a single snapshot by
// walking the parent chain up from the longest-prefix match.
func (t *Table[V]) Containing(addr []byte, scopeID uint32) []Entry[V] {
	ms := t.snapshot()
	var out []Entry[V]
	for i := lookup(ms, addr, scopeID); i >= 0; i = ms[i].parent {
		out = append(out, entryAt(ms, i))
	}
	return out
}

// CoveredBy returns the stored mappings whose ranges the given block covers,
// in sorted order.
func (t *Table[V]) CoveredBy(b *netblock.Block) []Entry[V] {
	checkBlock(b)
	ms := t.snapshot()
	var out []Entry[V]
	for i := range ms {
		if b.Covers(ms[i].block) {
			out = append(out, entryAt(ms, i))
		}
	}
	return out
}

// change describes one requested mutation for the update retry loop.
type change[V any] struct {
	value     V
	remove    bool
	ifAbsent  bool // apply only when the range is absent
	ifPresent bool // apply only when the range is present
	expect    *V   // when set, the current value must equal *expect
}

// update is the single write path: snapshot, search, guard, build a new
// array, compare-and-swap it in, retry from a fresh snapshot on contention.
// It returns the value observed for the range before the call, whether the
// range was present, and whether the change was applied.
func (t *Table[V]) update(b *netblock.Block, c change[V]) (prev V, found, applied bool) {
	checkBlock(b)
	for {
		old := t.mappings.Load()
		var ms []mapping[V]
		if old != nil {
			ms = *old
		}
		pos, exists := findBlock(ms, b)
		var cur V
		if exists {
			cur = ms[pos].value
		}
		if exists && c.ifAbsent || !exists && c.ifPresent {
			return cur, exists, false
		}
		if c.expect != nil && (!exists || any(cur) != any(*c.expect)) {
			return cur, exists, false
		}
		var next []mapping[V]
		switch {
		case c.remove:
			next = removeAt(ms, pos)
		case exists:
			// Copy-on-write value replacement.  Parent links are
			// indexes, so mappings naming pos as parent now resolve
			// to the replacement with no rebuilding.
			next = slices.Clone(ms)
			next[pos].value = c.value
		default:
			next = insertAt(ms, pos, b, c.value)
		}
		if t.mappings.CompareAndSwap(old, &next) {
			return cur, exists, true
		}
	}
}

// insertAt builds a copy of ms with a new mapping for b at pos.  The new
// mapping's parent is found by the same climb Get uses, restricted to blocks
// that actually cover b.  Mappings that shared that parent and are nested
// inside b are handed over to the new, more specific parent.
func insertAt[V any](ms []mapping[V], pos int, b *netblock.Block, v V) []mapping[V] {
	parent := -1
	for i := pos - 1; i >= 0; i = ms[i].parent {
		if ms[i].block.Covers(b) {
			parent = i
			break
		}
	}

	next := make([]mapping[V], len(ms)+1)
	copy(next, ms[:pos])
	copy(next[pos+1:], ms[pos:])
	for j := range next {
		if j != pos && next[j].parent >= pos {
			next[j].parent++
		}
	}
	// A parent always sorts before its children, so parent < pos and the
	// index needs no shifting.
	next[pos] = mapping[V]{block: b, value: v, parent: parent}

	// Only mappings in b's scope group can take b as parent, and those
	// sort after b; entries before pos never move.
	for j := pos + 1; j < len(next); j++ {
		if next[j].parent == parent && b.Covers(next[j].block) {
			next[j].parent = pos
		}
	}
	return next
}

// removeAt builds a copy of ms without the mapping at pos, splicing the
// removed mapping's children to its own former parent so no parent index is
// left dangling.
func removeAt[V any](ms []mapping[V], pos int) []mapping[V] {
	next := make([]mapping[V], len(ms)-1)
	copy(next, ms[:pos])
	copy(next[pos:], ms[pos+1:])
	for j := range next {
		switch p := next[j].parent; {
		case p == pos:
			next[j].parent = ms[pos].parent
		case p > pos:
			next[j].parent = p - 1
		}
	}
	return next
}

// Put stores the value for the block, inserting or replacing as needed.  It
// returns the previous value when the range was already present.
func (t *Table[V]) Put(b *netblock.Block, value V) (V, bool) {
	prev, found, _ := t.update(b, change[V]{value: value})
	return prev, found
}

// PutIfAbsent stores the value only when the range is not yet present.  When
// the range is present it returns the existing value and true, unchanged.
func (t *Table[V]) PutIfAbsent(b *netblock.Block, value V) (V, bool) {
	existing, found, _ := t.update(b, change[V]{value: value, ifAbsent: true})
	return existing, found
}

// Replace stores the value only when the range is already present and
// returns the previous value.
func (t *Table[V]) Replace(b *netblock.Block, value V) (V, bool) {
	prev, found, _ := t.update(b, change[V]{value: value, ifPresent: true})
	return prev, found
}

// ReplaceValue stores update only when the range is present with a current
// value equal to expected, and reports whether it did.  Like
// sync.Map.CompareAndSwap, the expected value must be of a comparable type.
func (t *Table[V]) ReplaceValue(b *netblock.Block, expected, update V) bool {
	_, _, applied := t.update(b, change[V]{value: update, ifPresent: true, expect: &expected})
	return applied
}

// Remove deletes the exact range from the table and returns its value.
// Mappings nested inside the removed block are re-linked to the removed
// block's own parent.
func (t *Table[V]) Remove(b *netblock.Block) (V, bool) {
	prev, found, applied := t.update(b, change[V]{remove: true, ifPresent: true})
	if !applied {
		var zero V
		return zero, false
	}
	return prev, found
}

// RemoveValue deletes the exact range only when its current value equals
// expected, and reports whether it did.  The expected value must be of a
// comparable type.
func (t *Table[V]) RemoveValue(b *netblock.Block, expected V) bool {
	_, _, applied := t.update(b, change[V]{remove: true, ifPresent: true, expect: &expected})
	return applied
}

// Size returns the number of stored blocks.
func (t *Table[V]) Size() int {
	return len(t.snapshot())
}

// IsEmpty reports whether the table holds no blocks.
func (t *Table[V]) IsEmpty() bool {
	return t.Size() == 0
}

// Clear removes every mapping.
func (t *Table[V]) Clear() {
	t.mappings.Store(nil)
}

// Clone returns a table sharing the current snapshot, in O(1).  Because
// every mutation installs a fresh array, later changes to either table are
// invisible to the other.
func (t *Table[V]) Clone() *Table[V] {
	c := &Table[V]{}
	c.mappings.Store(t.mappings.Load())
	return c
}

// All returns a sorted iterator over one consistent snapshot of the table.
// Mutations during iteration are not observed.
func (t *Table[V]) All() iter.Seq2[*netblock.Block, V] {
	ms := t.snapshot()
	return func(yield func(*netblock.Block, V) bool) {
		for i := range ms {
			if !yield(ms[i].block, ms[i].value) {
				return
			}
		}
	}
}

// Entries returns one consistent snapshot of the table as a sorted slice,
// with each mapping's enclosing block resolved.
func (t *Table[V]) Entries() []Entry[V] {
	ms := t.snapshot()
	out := make([]Entry[V], len(ms))
	for i := range ms {
		out[i] = entryAt(ms, i)
	}
	return out
}

// String renders a snapshot with parent links, for debugging.
func (t *Table[V]) String() string {
	ms := t.snapshot()
	var sb strings.Builder
	sb.WriteByte('{')
	for i, m := range ms {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", m.block, m.value)
		if m.parent >= 0 {
			fmt.Fprintf(&sb, " in %s", ms[m.parent].block)
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

func entryAt[V any](ms []mapping[V], i int) Entry[V] {
	e := Entry[V]{Block: ms[i].block, Value: ms[i].value}
	if p := ms[i].parent; p >= 0 {
		e.Parent = ms[p].block
	}
	return e
}

func checkBlock(b *netblock.Block) {
	if b == nil {
		panic("prefixmap: nil block")
	}
}
