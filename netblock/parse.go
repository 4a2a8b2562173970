package netblock

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// ErrInvalidText is returned when a textual block does not have the
// "addr/prefix" or "addr%scope/prefix" shape.
var ErrInvalidText = fmt.Errorf("invalid block text")

// Parse reads the canonical display form produced by Block.String:
// "10.4.0.0/16", "fe80::/64" or "fe80::/64%1" style "addr%scope/prefix".
// The address part may be any host address inside the range; it is masked to
// the prefix length like New.
func Parse(s string) (*Block, error) {
	addrPart, onesPart, found := strings.Cut(s, "/")
	if !found {
		return nil, fmt.Errorf("%w: %q has no prefix length", ErrInvalidText, s)
	}
	var scope uint64
	if addrText, scopeText, scoped := strings.Cut(addrPart, "%"); scoped {
		var err error
		scope, err = strconv.ParseUint(scopeText, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad scope id %q", ErrInvalidText, scopeText)
		}
		addrPart = addrText
	}
	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidText, err)
	}
	ones, err := strconv.Atoi(onesPart)
	if err != nil {
		return nil, fmt.Errorf("%w: bad prefix length %q", ErrInvalidText, onesPart)
	}
	return New(addr.Unmap().AsSlice(), ones, uint32(scope))
}

// MustParse is Parse for trusted literals; it panics on error.
func MustParse(s string) *Block {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

// MarshalBinary encodes the block as its masked address bytes followed by one
// prefix-length byte and a big-endian 4-byte scope id.  Together with
// FromBinary this is a byte-exact round trip that never goes through text.
func (b *Block) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, int(b.length)+5)
	out = append(out, b.addr[:b.length]...)
	out = append(out, b.ones)
	return binary.BigEndian.AppendUint32(out, b.scope), nil
}

// FromBinary reconstructs a Block encoded by MarshalBinary.  The address
// family is inferred from the total length.
func FromBinary(data []byte) (*Block, error) {
	switch len(data) {
	case IPv4Len + 5, IPv6Len + 5:
	default:
		return nil, ErrInvalidByteLength
	}
	addrLen := len(data) - 5
	ones := int(data[addrLen])
	scope := binary.BigEndian.Uint32(data[addrLen+1:])
	return New(data[:addrLen], ones, scope)
}
