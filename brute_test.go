package prefixmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBruteGet(t *testing.T) {
	oracle := newBruteTable[string]()
	oracle.put(blk("10.0.0.0/8"), "big")
	oracle.put(blk("10.4.0.0/16"), "small")

	v, ok := oracle.get(ip("10.4.5.9"), 0)
	require.True(t, ok)
	assert.Equal(t, "small", v)

	v, ok = oracle.get(ip("10.9.0.0"), 0)
	require.True(t, ok)
	assert.Equal(t, "big", v)

	_, ok = oracle.get(ip("11.0.0.0"), 0)
	assert.False(t, ok)
}

func TestBrutePutReplacesEqualRange(t *testing.T) {
	oracle := newBruteTable[string]()
	oracle.put(blk("10.0.0.0/8"), "first")
	oracle.put(blk("10.0.0.0/8"), "second")
	require.Equal(t, 1, oracle.size())

	v, ok := oracle.get(ip("10.1.2.3"), 0)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestBruteRemove(t *testing.T) {
	oracle := newBruteTable[string]()
	oracle.put(blk("10.0.0.0/8"), "v")

	_, ok := oracle.remove(blk("10.4.0.0/16"))
	assert.False(t, ok)

	removed, ok := oracle.remove(blk("10.0.0.0/8"))
	require.True(t, ok)
	assert.Equal(t, "v", removed)
	assert.Zero(t, oracle.size())
}

func TestBruteScopePartition(t *testing.T) {
	oracle := newBruteTable[string]()
	oracle.put(blk("fe80::%1/64"), "one")
	oracle.put(blk("fe80::/64"), "unscoped")

	v, ok := oracle.get(ip("fe80::1"), 1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	v, ok = oracle.get(ip("fe80::1"), 0)
	require.True(t, ok)
	assert.Equal(t, "unscoped", v)

	_, ok = oracle.get(ip("fe80::1"), 2)
	assert.False(t, ok)
}

func TestBruteContaining(t *testing.T) {
	oracle := newBruteTable[string]()
	oracle.put(blk("0.0.0.0/0"), "all")
	oracle.put(blk("10.0.0.0/8"), "eight")
	oracle.put(blk("10.4.0.0/16"), "sixteen")

	got := oracle.containing(ip("10.4.5.9"), 0)
	require.Len(t, got, 3)
	assert.Equal(t, "10.4.0.0/16", got[0].String())
	assert.Equal(t, "10.0.0.0/8", got[1].String())
	assert.Equal(t, "0.0.0.0/0", got[2].String())
}
