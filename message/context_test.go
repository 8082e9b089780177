package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nx-ipc/protocol"
	"nx-ipc/result"
)

// clientContext starts a client call whose buffers are released with the test.
func clientContext(t *testing.T, obj ObjectInfo, sizer PointerBufferSizer) *CommandContext {
	t.Helper()
	c := NewClientContext(obj, sizer)
	t.Cleanup(c.Release)
	return c
}

func TestBoundedCapacity(t *testing.T) {
	var b Bounded[int]
	for i := 1; i <= MaxCount; i++ {
		require.True(t, b.Push(i))
	}
	assert.False(t, b.Push(9))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, b.Items())

	v, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, MaxCount-1, b.Remaining())
	assert.Equal(t, MaxCount, b.Len())
}

func TestCollectionsRejectNinthEntry(t *testing.T) {
	tests := []struct {
		name string
		add  func(c *CommandContext) error
		want result.Code
	}{
		{"copy handles", func(c *CommandContext) error { return c.In.AddCopyHandle(1) }, result.ResultCopyHandlesFull},
		{"move handles", func(c *CommandContext) error { return c.In.AddMoveHandle(1) }, result.ResultMoveHandlesFull},
		{"objects", func(c *CommandContext) error { return c.In.AddDomainObject(1) }, result.ResultDomainObjectsFull},
		{"send statics", func(c *CommandContext) error { return c.AddBuffer(InPointer(make([]byte, 4))) }, result.ResultSendStaticsFull},
		{"receive statics", func(c *CommandContext) error { return c.AddBuffer(OutFixedPointer(make([]byte, 4))) }, result.ResultReceiveStaticsFull},
		{"send buffers", func(c *CommandContext) error { return c.AddBuffer(InMapAlias(make([]byte, 4))) }, result.ResultSendBuffersFull},
		{"receive buffers", func(c *CommandContext) error { return c.AddBuffer(OutMapAlias(make([]byte, 4))) }, result.ResultReceiveBuffersFull},
		{"exchange buffers", func(c *CommandContext) error { return c.AddBuffer(Exchange(make([]byte, 4))) }, result.ResultExchangeBuffersFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clientContext(t, FromHandle(1), nil)
			for i := 0; i < MaxCount; i++ {
				require.NoError(t, tt.add(c))
			}
			before := *c
			assert.ErrorIs(t, tt.add(c), tt.want)
			assert.Equal(t, before.In.CopyHandles.Items(), c.In.CopyHandles.Items())
			assert.Equal(t, before.SendStatics.Items(), c.SendStatics.Items())
			assert.Equal(t, before.SendBuffers.Items(), c.SendBuffers.Items())
		})
	}
}

func TestAddBufferMapAlias(t *testing.T) {
	data := make([]byte, 0x40)
	addr := protocol.AddressOf(data)

	tests := []struct {
		name  string
		buf   *Buffer
		pick  func(c *CommandContext) []protocol.BufferDescriptor
		flags protocol.BufferFlags
	}{
		{"in", InMapAlias(data), func(c *CommandContext) []protocol.BufferDescriptor { return c.SendBuffers.Items() }, protocol.BufferFlagsNormal},
		{"out", OutMapAlias(data), func(c *CommandContext) []protocol.BufferDescriptor { return c.ReceiveBuffers.Items() }, protocol.BufferFlagsNormal},
		{"exchange", Exchange(data), func(c *CommandContext) []protocol.BufferDescriptor { return c.ExchangeBuffers.Items() }, protocol.BufferFlagsNormal},
		{"non-secure", InNonSecureMapAlias(data), func(c *CommandContext) []protocol.BufferDescriptor { return c.SendBuffers.Items() }, protocol.BufferFlagsNonSecure},
		{"non-device", OutNonDeviceMapAlias(data), func(c *CommandContext) []protocol.BufferDescriptor { return c.ReceiveBuffers.Items() }, protocol.BufferFlagsNonDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clientContext(t, FromHandle(1), nil)
			require.NoError(t, c.AddBuffer(tt.buf))
			got := tt.pick(c)
			require.Len(t, got, 1)
			assert.Equal(t, addr, got[0].Address())
			assert.Equal(t, len(data), got[0].Size())
			assert.Equal(t, tt.flags, got[0].Flags())
			assert.Zero(t, c.SendStatics.Len()+c.ReceiveStatics.Len())
		})
	}
}

func TestAddBufferPointer(t *testing.T) {
	in := make([]byte, 0x10)
	out := make([]byte, 0x20)
	fixed := make([]byte, 0x30)

	c := clientContext(t, FromHandle(1), nil)
	require.NoError(t, c.AddBuffer(InPointer(in)))
	require.NoError(t, c.AddBuffer(InPointer(in)))
	require.NoError(t, c.AddBuffer(OutPointer(out)))
	require.NoError(t, c.AddBuffer(OutFixedPointer(fixed)))

	statics := c.SendStatics.Items()
	require.Len(t, statics, 2)
	assert.Equal(t, uint32(0), statics[0].Index())
	assert.Equal(t, uint32(1), statics[1].Index())
	assert.Equal(t, protocol.AddressOf(in), statics[1].Address())

	recv := c.ReceiveStatics.Items()
	require.Len(t, recv, 2)
	assert.Equal(t, 0x20, recv[0].Size())
	assert.Equal(t, 0x30, recv[1].Size())

	// Only the variable-size out pointer records its size.
	assert.Equal(t, []uint16{0x20}, c.In.OutPointerSizes.Items())
}

func TestAutoSelectIsFirstFit(t *testing.T) {
	queries := 0
	sizer := PointerBufferSizerFunc(func() (uint16, error) {
		queries++
		return 0x100, nil
	})

	sizes := []int{0x80, 0x90, 0x40, 0x40, 0x1}
	want := []bool{true, false, true, true, false}

	for run := 0; run < 2; run++ {
		c := clientContext(t, FromHandle(1), sizer)
		for _, n := range sizes {
			require.NoError(t, c.AddBuffer(InAutoSelect(make([]byte, n))))
		}
		send := c.SendBuffers.Items()
		statics := c.SendStatics.Items()
		require.Len(t, send, len(sizes))
		require.Len(t, statics, len(sizes))
		for i := range sizes {
			assert.Equal(t, want[i], statics[i].IsPopulated(), "buffer %d static", i)
			assert.Equal(t, !want[i], send[i].IsPopulated(), "buffer %d map alias", i)
			assert.Equal(t, uint32(i), statics[i].Index())
		}
	}
	assert.Equal(t, 2, queries)
}

func TestAutoSelectOutRecordsPointerSizes(t *testing.T) {
	c := clientContext(t, FromHandle(1), nil)
	c.SetPointerBufferSize(0x40)

	require.NoError(t, c.AddBuffer(OutAutoSelect(make([]byte, 0x30))))
	require.NoError(t, c.AddBuffer(OutAutoSelect(make([]byte, 0x30))))

	recv := c.ReceiveStatics.Items()
	assert.True(t, recv[0].IsPopulated())
	assert.False(t, recv[1].IsPopulated())
	assert.True(t, c.ReceiveBuffers.Items()[1].IsPopulated())
	assert.Equal(t, []uint16{0x30, 0}, c.In.OutPointerSizes.Items())
}

func TestAutoSelectWithoutPointerBuffer(t *testing.T) {
	c := clientContext(t, FromHandle(1), PointerBufferSizerFunc(func() (uint16, error) { return 0, nil }))
	require.NoError(t, c.AddBuffer(InAutoSelect(make([]byte, 1))))
	assert.True(t, c.SendBuffers.Items()[0].IsPopulated())
	assert.False(t, c.SendStatics.Items()[0].IsPopulated())
}

func TestAutoSelectQueryFailure(t *testing.T) {
	c := clientContext(t, FromHandle(1), PointerBufferSizerFunc(func() (uint16, error) {
		return 0, result.ResultSessionClosed
	}))
	err := c.AddBuffer(InAutoSelect(make([]byte, 1)))
	assert.ErrorIs(t, err, result.ResultSessionClosed)
	assert.Zero(t, c.SendBuffers.Len())
}

func TestInvalidBufferAttributes(t *testing.T) {
	data := make([]byte, 8)
	tipc := FromHandle(1).WithProtocol(ProtocolTipc)

	tests := []struct {
		name string
		obj  ObjectInfo
		buf  *Buffer
	}{
		{"no transport", FromHandle(1), NewBuffer(AttrIn, data)},
		{"pointer and map alias", FromHandle(1), NewBuffer(AttrIn|AttrPointer|AttrMapAlias, data)},
		{"no direction", FromHandle(1), NewBuffer(AttrMapAlias, data)},
		{"tipc pointer", tipc, InPointer(data)},
		{"tipc auto select", tipc, OutAutoSelect(data)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clientContext(t, tt.obj, nil)
			assert.ErrorIs(t, c.AddBuffer(tt.buf), result.ResultInvalidBufferAttributes)
		})
	}

	c := clientContext(t, tipc, nil)
	assert.NoError(t, c.AddBuffer(InMapAlias(data)))
}

func TestPopObject(t *testing.T) {
	t.Run("domain", func(t *testing.T) {
		c := clientContext(t, FromDomainObjectID(5, 1), nil)
		require.NoError(t, c.Out.AddDomainObject(7))
		info, err := c.PopObject()
		require.NoError(t, err)
		assert.Equal(t, FromDomainObjectID(5, 7), info)
		assert.False(t, info.OwnsHandle)
	})
	t.Run("domain without ids", func(t *testing.T) {
		c := clientContext(t, FromDomainObjectID(5, 1), nil)
		_, err := c.PopObject()
		assert.ErrorIs(t, err, result.ResultInvalidDomainObject)
	})
	t.Run("direct", func(t *testing.T) {
		c := clientContext(t, FromHandle(5).WithProtocol(ProtocolTipc), nil)
		require.NoError(t, c.Out.AddMoveHandle(9))
		info, err := c.PopObject()
		require.NoError(t, err)
		assert.Equal(t, protocol.Handle(9), info.Handle)
		assert.True(t, info.OwnsHandle)
		assert.True(t, info.UsesTipc())
	})
	t.Run("direct without handles", func(t *testing.T) {
		c := clientContext(t, FromHandle(5), nil)
		_, err := c.PopObject()
		assert.ErrorIs(t, err, result.ResultInvalidMoveHandleCount)
	})
}

func TestServerPopAutoSelectIn(t *testing.T) {
	static := make([]byte, 0x10)
	mapped := make([]byte, 0x200)
	var peer protocol.Mapping
	defer peer.Unmap()

	c := NewServerContext(FromHandle(1), make([]byte, 0x100))
	c.SendStatics.Push(protocol.NewSendStaticDescriptor(peer.Map(static), len(static), 0))
	c.SendBuffers.Push(protocol.NullBufferDescriptor())
	c.SendStatics.Push(protocol.NullSendStaticDescriptor())
	c.SendBuffers.Push(protocol.NewBufferDescriptor(peer.Map(mapped), len(mapped), protocol.BufferFlagsNormal))

	w := protocol.NewWalker(nil)
	first, err := c.PopBuffer(AttrIn|AttrAutoSelect, 0, w)
	require.NoError(t, err)
	assert.Equal(t, protocol.AddressOf(static), protocol.AddressOf(first))

	second, err := c.PopBuffer(AttrIn|AttrAutoSelect, 0, w)
	require.NoError(t, err)
	assert.Len(t, second, len(mapped))

	_, err = c.PopBuffer(AttrIn|AttrAutoSelect, 0, w)
	assert.ErrorIs(t, err, result.ResultInvalidSendStaticCount)
}

// growStack recurses deep enough to make the goroutine stack move.
//
//go:noinline
func growStack(n int) byte {
	var frame [256]byte
	frame[n%len(frame)] = byte(n)
	if n == 0 {
		return frame[0]
	}
	return growStack(n-1) ^ frame[n%len(frame)]
}

func TestBufferSurvivesStackGrowth(t *testing.T) {
	var data [16]byte
	copy(data[:], "0123456789abcdef")
	c := clientContext(t, FromHandle(1), nil)
	require.NoError(t, c.AddBuffer(InMapAlias(data[:])))
	desc := c.SendBuffers.Items()[0]

	growStack(1 << 12)

	assert.Equal(t, protocol.AddressOf(data[:]), desc.Address())
	server := NewServerContext(FromHandle(1), nil)
	server.SendBuffers.Push(desc)
	got, err := server.PopBuffer(AttrIn|AttrMapAlias, 0, protocol.NewWalker(nil))
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", string(got))
	got[0] = 'x'
	assert.Equal(t, byte('x'), data[0])

	// Released buffers no longer resolve.
	c.Release()
	server = NewServerContext(FromHandle(1), nil)
	server.SendBuffers.Push(desc)
	_, err = server.PopBuffer(AttrIn|AttrMapAlias, 0, protocol.NewWalker(nil))
	assert.ErrorIs(t, err, result.ResultInvalidAddress)
}

func TestServerCarvesOutPointers(t *testing.T) {
	pointer := make([]byte, 0x100)
	c := NewServerContext(FromHandle(1), pointer)
	c.ReceiveStatics.Push(protocol.NewReceiveStaticDescriptor(0x1000, 0x18))
	c.ReceiveStatics.Push(protocol.NewReceiveStaticDescriptor(0x2000, 0x08))

	w := protocol.NewWalker(nil)
	first, err := c.PopBuffer(AttrOut|AttrPointer|AttrFixedSize, 0x18, w)
	require.NoError(t, err)
	second, err := c.PopBuffer(AttrOut|AttrPointer|AttrFixedSize, 0x08, w)
	require.NoError(t, err)

	assert.Equal(t, protocol.AddressOf(pointer[0xE0:]), protocol.AddressOf(first))
	assert.Len(t, first, 0x18)
	assert.Equal(t, protocol.AddressOf(pointer[0xD0:]), protocol.AddressOf(second))

	published := c.ReplyStatics.Items()
	require.Len(t, published, 2)
	assert.Equal(t, uint32(0), published[0].Index())
	assert.Equal(t, uint32(1), published[1].Index())
	assert.Equal(t, 0x08, published[1].Size())

	_, err = c.PopBuffer(AttrOut|AttrPointer|AttrFixedSize, 0x200, w)
	assert.ErrorIs(t, err, result.ResultInvalidSize)
}

func TestServerRejectsOutgoingBuffers(t *testing.T) {
	c := NewServerContext(FromHandle(1), nil)
	assert.ErrorIs(t, InMapAlias(nil).Reserve(protocol.NewWalker(nil), c), result.ResultNotSupported)
}
