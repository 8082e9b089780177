package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nx-ipc/codec"
	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/result"
)

func receive(t *testing.T, k *Loopback, msg, pointer []byte, handles ...protocol.Handle) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var mem protocol.Mapping
	mem.Map(pointer)
	t.Cleanup(mem.Unmap)
	WriteReceiveList(msg, pointer)
	index, err := k.Receive(ctx, msg, handles)
	require.NoError(t, err)
	return index
}

func TestLoopbackTranslatesStatics(t *testing.T) {
	k := NewLoopback(WithProcessID(0x51))
	server, client, err := k.CreateSession()
	require.NoError(t, err)

	cmif := codec.GetCodec(message.ProtocolCmif)
	out := make([]byte, 0x10)
	msg := NewMessageBuffer().Bytes()
	ctx := message.NewClientContext(message.FromHandle(client), nil)
	defer ctx.Release()
	ctx.Message = msg
	in := []message.Encoder{
		message.Data(uint32(7)),
		message.ProcessID(),
		message.InPointer([]byte("hello")),
		message.OutPointer(out),
	}
	size, err := message.ReserveAll(ctx, in)
	require.NoError(t, err)
	ctx.In.DataSize = size
	require.NoError(t, cmif.WriteRequest(ctx, 3))
	require.NoError(t, message.EncodeAll(ctx, msg[ctx.In.DataOffset:], in))

	done := make(chan error, 1)
	go func() {
		done <- k.SendSyncRequest(context.Background(), client, msg)
	}()

	pointer := Aligned(0x100)
	smsg := NewMessageBuffer().Bytes()
	assert.Equal(t, 0, receive(t, k, smsg, pointer, server))

	sctx := message.NewServerContext(message.FromHandle(server), pointer)
	sctx.Message = smsg
	info, err := cmif.ReadRequest(sctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), info.RequestID)

	var (
		v      uint32
		pid    uint64
		inBuf  = message.InPointer(nil)
		outBuf = message.OutPointer(nil)
	)
	require.NoError(t, message.DecodeAll(sctx, smsg[sctx.In.DataOffset:], []message.Decoder{
		message.DataTo(&v), message.ProcessIDTo(&pid), inBuf, outBuf,
	}))
	assert.Equal(t, uint32(7), v)
	assert.Equal(t, uint64(0x51), pid)
	assert.Equal(t, "hello", string(inBuf.Data))
	// Copied into the receive list, not aliased.
	assert.Equal(t, protocol.AddressOf(pointer), protocol.AddressOf(inBuf.Data))
	require.Len(t, outBuf.Data, 0x10)

	copy(outBuf.Data, "world")
	require.NoError(t, cmif.WriteResponse(sctx, info, result.Success))
	require.NoError(t, k.Reply(server, smsg))
	require.NoError(t, <-done)

	require.NoError(t, cmif.ReadResponse(ctx))
	assert.Equal(t, "world", string(out[:5]))
}

func TestLoopbackStaticTooLarge(t *testing.T) {
	k := NewLoopback()
	server, client, err := k.CreateSession()
	require.NoError(t, err)

	msg := NewMessageBuffer().Bytes()
	ctx := message.NewClientContext(message.FromHandle(client), nil)
	defer ctx.Release()
	ctx.Message = msg
	require.NoError(t, ctx.AddBuffer(message.InPointer(make([]byte, 0x40))))
	require.NoError(t, codec.GetCodec(message.ProtocolCmif).WriteRequest(ctx, 0))

	done := make(chan error, 1)
	go func() {
		done <- k.SendSyncRequest(context.Background(), client, msg)
	}()

	// The rejected request never reaches the server.
	rctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	smsg := NewMessageBuffer().Bytes()
	WriteReceiveList(smsg, Aligned(0x20))
	_, err = k.Receive(rctx, smsg, []protocol.Handle{server})
	assert.ErrorIs(t, err, result.ResultOperationCanceled)
	assert.ErrorIs(t, <-done, result.ResultInvalidSize)
}

func TestLoopbackCancelQueued(t *testing.T) {
	k := NewLoopback()
	server, client, err := k.CreateSession()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = k.SendSyncRequest(ctx, client, NewMessageBuffer().Bytes())
	assert.ErrorIs(t, err, result.ResultOperationCanceled)

	rctx, rcancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer rcancel()
	_, err = k.Receive(rctx, NewMessageBuffer().Bytes(), []protocol.Handle{server})
	assert.ErrorIs(t, err, result.ResultOperationCanceled)
}

func TestLoopbackAbandonedReplyDropped(t *testing.T) {
	k := NewLoopback()
	server, client, err := k.CreateSession()
	require.NoError(t, err)

	msg := NewMessageBuffer().Bytes()
	protocol.WriteAt(msg, 0, protocol.NewCommandHeader(uint32(protocol.CommandTypeRequest), 0, 0, 0, 0, 0, 0, false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- k.SendSyncRequest(ctx, client, msg)
	}()

	smsg := NewMessageBuffer().Bytes()
	receive(t, k, smsg, nil, server)
	cancel()
	assert.ErrorIs(t, <-done, result.ResultOperationCanceled)

	reply := NewMessageBuffer().Bytes()
	protocol.WriteAt(reply, 0, protocol.NewCommandHeader(9, 0, 0, 0, 0, 0, 0, false))
	require.NoError(t, k.Reply(server, reply))
	assert.Equal(t, uint32(protocol.CommandTypeRequest), protocol.ReadAt[protocol.CommandHeader](msg, 0).CommandType())

	assert.ErrorIs(t, k.Reply(server, reply), result.ResultInvalidState)
}

func TestLoopbackSessionClosed(t *testing.T) {
	t.Run("server end", func(t *testing.T) {
		k := NewLoopback()
		server, client, err := k.CreateSession()
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			done <- k.SendSyncRequest(context.Background(), client, NewMessageBuffer().Bytes())
		}()
		receive(t, k, NewMessageBuffer().Bytes(), nil, server)
		require.NoError(t, k.CloseHandle(server))
		assert.ErrorIs(t, <-done, result.ResultSessionClosed)

		err = k.SendSyncRequest(context.Background(), client, NewMessageBuffer().Bytes())
		assert.ErrorIs(t, err, result.ResultSessionClosed)
	})
	t.Run("client end", func(t *testing.T) {
		k := NewLoopback()
		server, client, err := k.CreateSession()
		require.NoError(t, err)
		require.NoError(t, k.CloseHandle(client))

		index, err := k.Receive(context.Background(), NewMessageBuffer().Bytes(), []protocol.Handle{server})
		assert.Equal(t, 0, index)
		assert.ErrorIs(t, err, result.ResultSessionClosed)
		require.NoError(t, k.CloseHandle(server))
		assert.Zero(t, k.OpenHandles())
	})
	t.Run("unknown handle", func(t *testing.T) {
		k := NewLoopback()
		assert.ErrorIs(t, k.CloseHandle(99), result.ResultInvalidHandle)
		_, err := k.Receive(context.Background(), nil, []protocol.Handle{99})
		assert.ErrorIs(t, err, result.ResultInvalidHandle)
	})
}

func TestLoopbackPorts(t *testing.T) {
	k := NewLoopback()
	port, err := k.RegisterNamedPort("demo", 1)
	require.NoError(t, err)
	_, err = k.RegisterNamedPort("demo", 1)
	assert.ErrorIs(t, err, result.ResultInvalidState)

	_, err = k.AcceptSession(port)
	assert.ErrorIs(t, err, result.ResultNotFound)

	client, err := k.ConnectToNamedPort(context.Background(), "demo")
	require.NoError(t, err)
	_, err = k.ConnectToPort(context.Background(), port)
	assert.ErrorIs(t, err, result.ResultOutOfSessions)
	_, err = k.ConnectToNamedPort(context.Background(), "missing")
	assert.ErrorIs(t, err, result.ResultNotFound)

	assert.Equal(t, 0, receive(t, k, NewMessageBuffer().Bytes(), nil, port))
	server, err := k.AcceptSession(port)
	require.NoError(t, err)

	// Both ends closed frees the slot.
	require.NoError(t, k.CloseHandle(client))
	require.NoError(t, k.CloseHandle(server))
	_, err = k.ConnectToPort(context.Background(), port)
	assert.NoError(t, err)
}

func TestLoopbackEventAutoClears(t *testing.T) {
	k := NewLoopback()
	ev, err := k.CreateEvent()
	require.NoError(t, err)
	require.NoError(t, k.SignalEvent(ev))

	assert.Equal(t, 0, receive(t, k, NewMessageBuffer().Bytes(), nil, ev))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Receive(ctx, NewMessageBuffer().Bytes(), []protocol.Handle{ev})
	assert.ErrorIs(t, err, result.ResultOperationCanceled)
}

func TestLoopbackForProcess(t *testing.T) {
	k := NewLoopback(WithProcessID(1))
	other := k.ForProcess(2)
	assert.Equal(t, uint64(1), k.ProcessID())
	assert.Equal(t, uint64(2), other.ProcessID())

	_, client, err := other.CreateSession()
	require.NoError(t, err)
	require.NoError(t, k.CloseHandle(client))
}
