package codec

import (
	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// Tipc is the lightweight dialect. The request id is the command type minus
// 16, there are no static descriptors, and a reply's data opens with its
// result code.
type Tipc struct{}

func (t *Tipc) Protocol() message.Protocol {
	return message.ProtocolTipc
}

func (t *Tipc) WriteRequest(ctx *message.CommandContext, requestID uint32) error {
	if requestID > protocol.TipcMaxRequestID {
		return result.ResultInvalidCommandRequestID
	}
	in := &ctx.In
	off, err := writeCommand(ctx.Message, in, requestDescriptors(ctx, false), requestID+protocol.TipcCommandTypeBase, in.DataSize)
	if err != nil {
		return err
	}
	in.DataOffset = off
	return nil
}

func (t *Tipc) WriteClose(ctx *message.CommandContext) error {
	_, err := writeCommand(ctx.Message, &ctx.In, descriptors{}, protocol.TipcCloseSession, 0)
	return err
}

func (t *Tipc) ReadResponse(ctx *message.CommandContext) error {
	out := &ctx.Out
	expected := out.DataSize
	if _, err := readCommand(ctx, out, false); err != nil {
		return err
	}
	off := out.DataWordsOffset
	if !fits(ctx.Message, off, 4) {
		return result.ResultInvalidHeaderSize
	}
	if rc := result.Code(protocol.ReadAt[uint32](ctx.Message, off)); !rc.IsSuccess() {
		return rc
	}
	out.DataOffset = off + 4
	out.DataSize = expected
	if !fits(ctx.Message, out.DataOffset, expected) {
		return result.ResultInvalidHeaderSize
	}
	return nil
}

func (t *Tipc) ReadRequest(ctx *message.CommandContext) (RequestInfo, error) {
	in := &ctx.In
	hdr, err := readCommand(ctx, in, true)
	if err != nil {
		return RequestInfo{}, err
	}
	info := RequestInfo{CommandType: hdr.CommandType()}
	if info.CommandType == protocol.TipcCloseSession {
		return info, nil
	}
	if info.CommandType < protocol.TipcCommandTypeBase {
		return info, result.ResultInvalidCommandType
	}
	info.RequestID = info.CommandType - protocol.TipcCommandTypeBase
	in.DataOffset = in.DataWordsOffset
	return info, nil
}

func (t *Tipc) WriteResponse(ctx *message.CommandContext, req RequestInfo, rc result.Code) error {
	out := &ctx.Out
	off, err := writeCommand(ctx.Message, out, descriptors{}, req.CommandType, 4+out.DataSize)
	if err != nil {
		return err
	}
	out.DataOffset = put(ctx.Message, off, uint32(rc))
	return nil
}

func (t *Tipc) WriteCloseResponse(ctx *message.CommandContext) error {
	_, err := writeCommand(ctx.Message, &message.Params{}, descriptors{}, protocol.TipcCloseSession, 0)
	return err
}
