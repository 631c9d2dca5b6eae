package core

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Protocols(t *testing.T) {
	ctx := NewContext(1, time.Unix(0, 0), true)
	ctx.PushProtocol("frame")
	ctx.PushProtocol("eth")
	ctx.PushProtocol("sctp")

	assert.Equal(t, "frame:eth:sctp", ctx.Protocols())
	assert.Equal(t, "SCTP", ctx.Column(ColProtocol))
	assert.Equal(t, []string{"frame", "eth", "sctp"}, ctx.ProtocolStack())
}

func TestContext_Columns(t *testing.T) {
	ctx := NewContext(1, time.Time{}, false)
	ctx.AppendColumn(ColInfo, ", ", "INIT")
	ctx.AppendColumn(ColInfo, ", ", "DATA")
	assert.Equal(t, "INIT, DATA", ctx.Column(ColInfo))

	ctx.SetColumn(ColSource, "%s", "10.0.0.1")
	assert.Equal(t, "10.0.0.1", ctx.Column(ColSource))
}

func TestContext_Depth(t *testing.T) {
	ctx := NewContext(1, time.Time{}, true)
	ctx.MaxDepth = 2

	require.NoError(t, ctx.Enter())
	require.NoError(t, ctx.Enter())
	err := ctx.Enter()
	assert.True(t, errors.Is(err, ErrNestingTooDeep))
	assert.Equal(t, 2, ctx.Depth())

	ctx.Leave()
	ctx.Leave()
	ctx.Leave()
	assert.Equal(t, 0, ctx.Depth())
}

func TestContext_LayersAndWarnings(t *testing.T) {
	ctx := NewContext(7, time.Time{}, true)
	ctx.PushProtocol("sctp")
	idx := ctx.BeginLayer("sctp")
	assert.False(t, ctx.Malformed())

	ctx.AddWarning(SeverityError, "malformed", nil, "chunk %s truncated", "INIT")
	ctx.EndLayer(idx, LayerFaulted, ErrRecordTruncated)

	require.Len(t, ctx.Warnings, 1)
	assert.Equal(t, "sctp", ctx.Warnings[0].Protocol)
	assert.Equal(t, "chunk INIT truncated", ctx.Warnings[0].Message)
	assert.True(t, ctx.Malformed())
	assert.Equal(t, "faulted", ctx.Layers[idx].State.String())
}

func TestContext_MarkRewind(t *testing.T) {
	ctx := NewContext(1, time.Time{}, true)
	ctx.PushProtocol("udp")
	m := ctx.Mark()

	ctx.PushProtocol("isakmp")
	ctx.BeginLayer("isakmp")
	ctx.AddWarning(SeverityNote, "protocol", nil, "not ISAKMP")
	ctx.Rewind(m)

	assert.Equal(t, "udp", ctx.Protocols())
	assert.Equal(t, "UDP", ctx.Column(ColProtocol))
	assert.Empty(t, ctx.Warnings)
	assert.Empty(t, ctx.Layers)
}

func TestContext_RewindRestoresColumnsAndAddressing(t *testing.T) {
	ctx := NewContext(1, time.Time{}, true)
	ctx.PushProtocol("ip")
	ctx.SrcAddr = netip.MustParseAddr("192.0.2.1")
	ctx.DstAddr = netip.MustParseAddr("192.0.2.2")
	ctx.SetColumn(ColSource, "192.0.2.1")
	ctx.SetColumn(ColDestination, "192.0.2.2")
	ctx.SetColumn(ColInfo, "Fragmented")
	m := ctx.Mark()

	ctx.PushProtocol("ipv6")
	ctx.SrcAddr = netip.MustParseAddr("2001:db8::1")
	ctx.DstAddr = netip.MustParseAddr("2001:db8::2")
	ctx.SrcPort, ctx.DstPort = 500, 4500
	ctx.SetColumn(ColSource, "2001:db8::1")
	ctx.SetColumn(ColDestination, "2001:db8::2")
	ctx.SetColumn(ColInfo, "not IPv6")
	ctx.Rewind(m)

	assert.Equal(t, "ip", ctx.Protocols())
	assert.Equal(t, "IP", ctx.Column(ColProtocol))
	assert.Equal(t, "192.0.2.1", ctx.Column(ColSource))
	assert.Equal(t, "192.0.2.2", ctx.Column(ColDestination))
	assert.Equal(t, "Fragmented", ctx.Column(ColInfo))
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), ctx.SrcAddr)
	assert.Equal(t, netip.MustParseAddr("192.0.2.2"), ctx.DstAddr)
	assert.Zero(t, ctx.SrcPort)
	assert.Zero(t, ctx.DstPort)
}
