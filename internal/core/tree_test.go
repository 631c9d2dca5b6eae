package core

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProto = &FieldSpec{Name: "Test Protocol", Filter: "test", Kind: KindProtocol}
	testType  = &FieldSpec{Name: "Type", Filter: "test.type", Kind: KindUint, Strings: map[uint64]string{1: "INIT"}}
	testLen   = &FieldSpec{Name: "Length", Filter: "test.len", Kind: KindUint, Base: BaseDec}
	testFlag  = &FieldSpec{Name: "E-Bit", Filter: "test.flags.e", Kind: KindBool, Width: 8, Mask: 0x01}
	testNib   = &FieldSpec{Name: "Version", Filter: "test.version", Kind: KindUint, Width: 8, Mask: 0xf0}
	testAddr  = &FieldSpec{Name: "Address", Filter: "test.addr", Kind: KindIPv4}
	testData  = &FieldSpec{Name: "Data", Filter: "test.data", Kind: KindBytes}
	testMark  = &FieldSpec{Name: "Ignored", Filter: "test.ignored", Kind: KindNone}
)

func TestTree_Add(t *testing.T) {
	tree := NewTree(true)
	cur := NewCursor([]byte{0x01, 0x00, 0x08, 0x41, 192, 0, 2, 1}, 8)

	proto, err := tree.AddProtocol(nil, testProto, cur, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "Test Protocol", proto.Label)
	assert.Equal(t, 8, proto.Length)

	typ, err := tree.Add(proto, testType, cur, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), typ.Value.Uint())
	assert.Equal(t, "Type: INIT (1)", typ.Label)

	l, err := tree.Add(proto, testLen, cur, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "Length: 8", l.Label)

	flag, err := tree.Add(proto, testFlag, cur, 3, 1)
	require.NoError(t, err)
	assert.True(t, flag.Value.Bool())
	assert.Equal(t, ".... ...1 = E-Bit: Set", flag.Label)

	nib, err := tree.Add(proto, testNib, cur, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), nib.Value.Uint())
	assert.Equal(t, "0100 .... = Version: 4", nib.Label)

	addr, err := tree.Add(proto, testAddr, cur, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), addr.Value.Addr())

	assert.Len(t, proto.Children, 5)
	assert.Same(t, proto, typ.Parent())
	assert.Same(t, tree.Root(), proto.Parent())
}

func TestTree_AbsoluteStart(t *testing.T) {
	tree := NewTree(true)
	cur := NewCursor([]byte{0, 0, 0, 0, 0xaa, 0xbb}, 6)
	sub, err := cur.Slice(4, 2)
	require.NoError(t, err)

	f, err := tree.Add(nil, testData, sub, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Start)
	assert.Equal(t, []byte{0xbb}, f.Value.Bytes())
}

func TestTree_AddOutOfBounds(t *testing.T) {
	tree := NewTree(true)
	cur := NewCursor([]byte{1, 2}, 2)

	f, err := tree.Add(nil, testLen, cur, 1, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBounds))
	assert.NotNil(t, f, "a usable handle is returned even on failure")
	assert.Empty(t, tree.Root().Children)
}

func TestTree_ZeroLengthMarker(t *testing.T) {
	tree := NewTree(true)
	cur := NewCursor(nil, 0)

	f, err := tree.Add(nil, testMark, cur, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Ignored", f.Label)
	assert.Equal(t, 0, f.Length)
}

func TestTree_Mutators(t *testing.T) {
	tree := NewTree(true)
	cur := NewCursor([]byte{1, 2, 3, 4}, 4)

	f, err := tree.AddText(nil, cur, 0, 4, "Chunk %d", 1)
	require.NoError(t, err)
	f.AppendText(", len %d", 4).SetGenerated().SetLength(2)

	assert.Equal(t, "Chunk 1, len 4", f.Label)
	assert.True(t, f.Generated)
	assert.Equal(t, 2, f.Length)
	assert.Same(t, f, f.Subtree())

	g := tree.AddGenerated(f, testLen, UintValue(16, 7))
	assert.True(t, g.Generated)
	assert.Equal(t, "Length: 7", g.Label)
}

func TestTree_Invisible(t *testing.T) {
	tree := NewTree(false)
	cur := NewCursor([]byte{1, 2}, 2)

	proto, err := tree.AddProtocol(nil, testProto, cur, 0, -1)
	require.NoError(t, err)
	f, err := tree.Add(proto, testType, cur, 0, 1)
	require.NoError(t, err)
	f.AppendText("ignored")
	assert.Empty(t, f.Label)

	_, err = tree.Add(proto, testLen, cur, 1, 4)
	assert.True(t, errors.Is(err, ErrBounds), "bounds are still checked without a tree")

	assert.Empty(t, tree.Root().Children)
	assert.Nil(t, tree.First("test.type"))
}

func TestTree_FindAndWalk(t *testing.T) {
	tree := NewTree(true)
	cur := NewCursor([]byte{1, 2, 1, 2}, 4)

	p, _ := tree.AddProtocol(nil, testProto, cur, 0, -1)
	a, _ := tree.Add(p, testType, cur, 0, 1)
	_, _ = tree.Add(a, testType, cur, 2, 1)

	found := tree.Find("test.type")
	assert.Len(t, found, 2)
	assert.Same(t, a, tree.First("test.type"))

	var depths []int
	tree.Walk(func(f *Field, depth int) bool {
		depths = append(depths, depth)
		return true
	})
	assert.Equal(t, []int{0, 1, 2}, depths)

	var visited int
	tree.Walk(func(f *Field, depth int) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestTree_AddItemsKeepsPrefix(t *testing.T) {
	tree := NewTree(true)
	cur := NewCursor([]byte{0x01, 0x00, 0x08}, 8)
	proto, err := tree.AddProtocol(nil, testProto, cur, 0, -1)
	require.NoError(t, err)

	err = tree.AddItems(proto, cur, []Item{
		{Spec: testType, Offset: 0, Length: 1},
		{Spec: testLen, Offset: 1, Length: 2},
		{Spec: testAddr, Offset: 3, Length: 4},
	})
	var be *BoundsError
	require.True(t, errors.As(err, &be))
	assert.True(t, be.Truncated)
	assert.Len(t, proto.Children, 2)
}
