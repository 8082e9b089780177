package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/result"
)

func tipcObject(h protocol.Handle) message.ObjectInfo {
	return message.FromHandle(h).WithProtocol(message.ProtocolTipc)
}

func TestTipcRoundTrip(t *testing.T) {
	input := make([]byte, 128)
	c := newCall(t, message.ProtocolTipc, tipcObject(1), tipcObject(2))

	c.request(3, message.Data(uint32(99)), message.InMapAlias(input))

	hdr := protocol.ReadAt[protocol.CommandHeader](c.msg, 0)
	assert.Equal(t, uint32(3+protocol.TipcCommandTypeBase), hdr.CommandType())
	assert.Equal(t, uint32(1), hdr.DataWordCount())
	assert.Equal(t, c.client.In.DataWordsOffset, c.client.In.DataOffset)

	var v uint32
	buf := message.InMapAlias(nil)
	info := c.receive(message.DataTo(&v), buf)
	assert.Equal(t, uint32(3), info.RequestID)
	assert.Equal(t, uint32(99), v)
	assert.Equal(t, protocol.AddressOf(input), protocol.AddressOf(buf.Data))

	c.reply(info, result.Success, message.Data(uint64(7)))
	assert.Equal(t, uint32(0), protocol.ReadAt[uint32](c.msg, c.server.Out.DataWordsOffset))

	var out uint64
	require.NoError(t, c.response(message.DataTo(&out)))
	assert.Equal(t, uint64(7), out)
}

func TestTipcFailureResult(t *testing.T) {
	c := newCall(t, message.ProtocolTipc, tipcObject(1), tipcObject(2))
	c.request(0)
	info := c.receive()
	c.reply(info, result.ResultNotRegistered)
	assert.ErrorIs(t, c.response(), result.ResultNotRegistered)
}

func TestTipcClose(t *testing.T) {
	c := newCall(t, message.ProtocolTipc, tipcObject(1), tipcObject(2))
	require.NoError(t, c.codec.WriteClose(c.client))
	info, err := c.codec.ReadRequest(c.server)
	require.NoError(t, err)
	assert.True(t, info.IsClose(message.ProtocolTipc))

	require.NoError(t, c.codec.WriteCloseResponse(c.server))
	hdr := protocol.ReadAt[protocol.CommandHeader](c.msg, 0)
	assert.Equal(t, uint32(protocol.TipcCloseSession), hdr.CommandType())
}

func TestTipcRejectsLowCommandTypes(t *testing.T) {
	c := newCall(t, message.ProtocolTipc, tipcObject(1), tipcObject(2))
	protocol.WriteAt(c.msg, 0, protocol.NewCommandHeader(4, 0, 0, 0, 0, 0, 0, false))
	_, err := c.codec.ReadRequest(c.server)
	assert.ErrorIs(t, err, result.ResultInvalidCommandType)
}
