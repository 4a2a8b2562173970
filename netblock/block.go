/*
Package netblock provides the immutable CIDR block value (Block) used to key
the prefix table in the parent package.

A Block is a masked network address (IPv4 or IPv6), a prefix length and an
optional numeric scope id.  Blocks are canonical: the factory masks every bit
beyond the prefix length, so two blocks built from different host addresses in
the same range are equal and interchangeable.

	b, err := netblock.New(net.ParseIP("10.4.5.9").To4(), 16, 0)
	// b is 10.4.0.0/16
*/
package netblock

import (
	"bytes"
	"fmt"
	"net/netip"
)

// ErrPrefixOutOfRange is returned when a prefix length is negative or exceeds
// the bit width of the address family.
var ErrPrefixOutOfRange = fmt.Errorf("prefix length out of range for address family")

// ErrInvalidByteLength is returned when address bytes are neither IPv4 (4)
// nor IPv6 (16) sized.
var ErrInvalidByteLength = fmt.Errorf("address must be 4 or 16 bytes")

// ErrScopeNotIPv6 is returned when a non-zero scope id is given for an IPv4
// address; scope ids are an IPv6 concept.
var ErrScopeNotIPv6 = fmt.Errorf("scope id requires an IPv6 address")

// Address byte lengths per family.
const (
	IPv4Len = 4
	IPv6Len = 16
)

// Block is an immutable network block.  The zero Block is not valid; use New,
// FromPrefix or Parse.  Blocks are safe to share between goroutines without
// synchronization and carry no mutation methods.
type Block struct {
	addr   [IPv6Len]byte // masked; only the first length bytes are meaningful
	length uint8         // 4 or 16
	ones   uint8         // prefix length in bits
	scope  uint32        // 0 when unscoped; IPv6 only
	str    string        // canonical display form, computed once
}

// AnyIPv4 and AnyIPv6 are the canonical singletons for the two "match
// everything" blocks (/0, no scope).  New returns these instances rather than
// allocating, so the common all-addresses case can be recognized by identity.
var (
	AnyIPv4 = &Block{length: IPv4Len, str: "0.0.0.0/0"}
	AnyIPv6 = &Block{length: IPv6Len, str: "::/0"}
)

// New builds a Block from raw address bytes.  The bytes are copied and masked
// to prefixLen; input is never modified.  A non-zero scopeID is only valid
// for IPv6 addresses.
func New(addr []byte, prefixLen int, scopeID uint32) (*Block, error) {
	switch len(addr) {
	case IPv4Len, IPv6Len:
	default:
		return nil, ErrInvalidByteLength
	}
	if prefixLen < 0 || prefixLen > len(addr)*8 {
		return nil, ErrPrefixOutOfRange
	}
	if scopeID != 0 && len(addr) == IPv4Len {
		return nil, ErrScopeNotIPv6
	}
	if prefixLen == 0 && scopeID == 0 {
		if len(addr) == IPv4Len {
			return AnyIPv4, nil
		}
		return AnyIPv6, nil
	}

	b := &Block{
		length: uint8(len(addr)),
		ones:   uint8(prefixLen),
		scope:  scopeID,
	}
	whole := prefixLen / 8
	copy(b.addr[:whole], addr)
	if rem := prefixLen % 8; rem != 0 {
		b.addr[whole] = addr[whole] & (0xff << (8 - rem))
	}
	b.str = b.display()
	return b, nil
}

// FromPrefix builds a Block from a netip.Prefix.  IPv4-in-IPv6 addresses are
// unmapped to their native 4-byte form first.
func FromPrefix(p netip.Prefix) (*Block, error) {
	if !p.IsValid() {
		return nil, ErrPrefixOutOfRange
	}
	addr := p.Addr().Unmap()
	return New(addr.AsSlice(), p.Bits(), 0)
}

func (b *Block) display() string {
	addr, _ := netip.AddrFromSlice(b.addr[:b.length])
	if b.scope != 0 {
		return fmt.Sprintf("%s%%%d/%d", addr, b.scope, b.ones)
	}
	return fmt.Sprintf("%s/%d", addr, b.ones)
}

// Bytes returns a copy of the masked address bytes (4 or 16 long).
func (b *Block) Bytes() []byte {
	out := make([]byte, b.length)
	copy(out, b.addr[:b.length])
	return out
}

// PrefixLen returns the prefix length in bits.
func (b *Block) PrefixLen() int { return int(b.ones) }

// ScopeID returns the scope id, 0 for IPv4 or unscoped blocks.
func (b *Block) ScopeID() uint32 { return b.scope }

// Is4 reports whether the block is IPv4.
func (b *Block) Is4() bool { return b.length == IPv4Len }

// Bits returns the bit width of the address family, 32 or 128.
func (b *Block) Bits() int { return int(b.length) * 8 }

// Prefix converts back to a netip.Prefix.  Scoped blocks have no netip
// representation; the second return is false for those.
func (b *Block) Prefix() (netip.Prefix, bool) {
	if b.scope != 0 {
		return netip.Prefix{}, false
	}
	addr, _ := netip.AddrFromSlice(b.addr[:b.length])
	return netip.PrefixFrom(addr, int(b.ones)), true
}

// String returns the canonical display form, "addr/prefix" or
// "addr%scope/prefix" for scoped blocks.
func (b *Block) String() string { return b.str }

// Matches reports whether the given address belongs to this block: same
// family, compatible scope, and equal address bits over the block's prefix
// length.  An unscoped block places no constraint on the candidate scope; a
// scoped block only matches candidates carrying the same scope id.
func (b *Block) Matches(addr []byte, scopeID uint32) bool {
	if len(addr) != int(b.length) {
		return false
	}
	if b.scope != 0 && b.scope != scopeID {
		return false
	}
	whole := int(b.ones) / 8
	if !bytes.Equal(b.addr[:whole], addr[:whole]) {
		return false
	}
	if rem := int(b.ones) % 8; rem != 0 {
		mask := byte(0xff << (8 - rem))
		if b.addr[whole] != addr[whole]&mask {
			return false
		}
	}
	return true
}

// Covers reports whether other is nested inside this block: other's prefix is
// at least as specific and its address bits fall inside this block's range.
func (b *Block) Covers(other *Block) bool {
	if other == nil || other.ones < b.ones {
		return false
	}
	return b.Matches(other.addr[:other.length], other.scope)
}

// CompareKey orders the block against a raw (bytes, prefixLen, scope) key.
// The order is strict and total over valid keys:
//
//  1. IPv4 sorts before IPv6.
//  2. Within a family, scoped blocks sort before unscoped ones; distinct
//     non-zero scopes order numerically.
//  3. Address bits compare over the common prefix length, most significant
//     bit first.
//  4. On equal common bits the shorter prefix sorts first, so a block
//     immediately precedes the narrower blocks nested inside it.
//
// Returns a negative number when the block sorts before the key, positive
// after, 0 on equality.
func (b *Block) CompareKey(addr []byte, prefixLen int, scopeID uint32) int {
	if int(b.length) != len(addr) {
		return int(b.length) - len(addr)
	}
	if b.scope != scopeID {
		switch {
		case b.scope == 0:
			return 1
		case scopeID == 0:
			return -1
		case b.scope < scopeID:
			return -1
		default:
			return 1
		}
	}
	common := int(b.ones)
	if prefixLen < common {
		common = prefixLen
	}
	whole := common / 8
	if c := bytes.Compare(b.addr[:whole], addr[:whole]); c != 0 {
		return c
	}
	if rem := common % 8; rem != 0 {
		mask := byte(0xff << (8 - rem))
		x, y := b.addr[whole]&mask, addr[whole]&mask
		if x != y {
			return int(x) - int(y)
		}
	}
	return int(b.ones) - prefixLen
}

// Compare orders two blocks; see CompareKey.
func (b *Block) Compare(other *Block) int {
	if b == other {
		return 0
	}
	return b.CompareKey(other.addr[:other.length], int(other.ones), other.scope)
}

// Equal reports whether two blocks denote the same range and scope.
func (b *Block) Equal(other *Block) bool {
	return b == other || other != nil && b.Compare(other) == 0
}

// Broadcast returns the directed broadcast address of an IPv4 block.  It is
// undefined for IPv6 and for prefixes of 31 bits or more; the second return
// is false in those cases.
func (b *Block) Broadcast() (netip.Addr, bool) {
	if b.length != IPv4Len || b.ones >= 31 {
		return netip.Addr{}, false
	}
	var out [IPv4Len]byte
	copy(out[:], b.addr[:IPv4Len])
	whole := int(b.ones) / 8
	if rem := int(b.ones) % 8; rem != 0 {
		out[whole] |= ^(0xff << (8 - rem)) & 0xff
		whole++
	}
	for i := whole; i < IPv4Len; i++ {
		out[i] = 0xff
	}
	return netip.AddrFrom4(out), true
}
