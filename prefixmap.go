/*
Package prefixmap provides a concurrent longest-prefix-match table that maps
CIDR blocks (IPv4 or IPv6) to arbitrary values.

To create a table and store blocks:

	var table prefixmap.Table[string]
	table.Put(netblock.MustParse("10.0.0.0/8"), "big")
	table.Put(netblock.MustParse("10.4.0.0/16"), "small")

To resolve an address to the value of the most specific enclosing block:

	// returns "small", true
	v, ok := table.Get(net.ParseIP("10.4.5.9").To4(), 0)

The table is lock-free: reads run against an immutable snapshot and never
block, writes coordinate through an atomic compare-and-swap and retry under
contention.  See Table for the full contract.
*/
package prefixmap

import "github.com/netrangr/prefixmap/netblock"

// Entry is one stored mapping as reported by the read-side helpers.  Parent
// is the next less specific stored block enclosing Block, or nil when no
// stored block encloses it.
type Entry[V any] struct {
	Block  *netblock.Block
	Value  V
	Parent *netblock.Block
}
