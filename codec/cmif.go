package codec

import (
	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// Cmif is the original service framework dialect.
//
// Request data region, starting at the first 16-byte boundary after the
// descriptors:
//
//	[DomainInDataHeader] DataHeader raw... [domain object ids] ... out pointer sizes (u16)
//
// Reply data region:
//
//	[DomainOutDataHeader] DataHeader raw... [domain object ids]
type Cmif struct{}

func (c *Cmif) Protocol() message.Protocol {
	return message.ProtocolCmif
}

func (c *Cmif) WriteRequest(ctx *message.CommandContext, requestID uint32) error {
	return c.writeRequest(ctx, true, requestID, protocol.DomainCommandTypeSendMessage)
}

func (c *Cmif) writeRequest(ctx *message.CommandContext, hasDataHeader bool, requestID uint32, domainCommand protocol.DomainCommandType) error {
	msg := ctx.Message
	in := &ctx.In
	domain := ctx.Object.IsDomain()

	dataSize := protocol.DataPadding + in.DataSize
	if hasDataHeader {
		dataSize += protocol.DataHeaderSize
	}
	if domain {
		dataSize += protocol.DomainInDataHeaderSize + 4*in.Objects.Len()
	}
	dataSize = evenUp(dataSize)
	pointerSizesOffset := dataSize
	dataSize += 2 * in.OutPointerSizes.Len()

	wordsOffset, err := writeCommand(msg, in, requestDescriptors(ctx, true), uint32(protocol.CommandTypeRequest), dataSize)
	if err != nil {
		return err
	}
	putAll(msg, wordsOffset+pointerSizesOffset, in.OutPointerSizes.Items())

	off := protocol.AlignedDataOffset(wordsOffset)
	if domain {
		payload := in.DataSize
		if hasDataHeader {
			payload += protocol.DataHeaderSize
		}
		off = put(msg, off, protocol.NewDomainInDataHeader(domainCommand, uint8(in.Objects.Len()), uint16(payload), ctx.Object.DomainObjectID, 0))
		putAll(msg, off+payload, in.Objects.Items())
	}
	if hasDataHeader {
		off = put(msg, off, protocol.NewDataHeader(protocol.InDataHeaderMagic, 0, requestID, 0))
	}
	in.DataOffset = off
	return nil
}

// WriteControl lays out a control command addressed to the session itself.
// Control commands never carry a domain header.
func (c *Cmif) WriteControl(ctx *message.CommandContext, id protocol.ControlRequestID) error {
	msg := ctx.Message
	in := &ctx.In
	dataSize := protocol.DataPadding + protocol.DataHeaderSize + in.DataSize

	wordsOffset, err := writeCommand(msg, in, requestDescriptors(ctx, true), uint32(protocol.CommandTypeControl), dataSize)
	if err != nil {
		return err
	}
	off := put(msg, protocol.AlignedDataOffset(wordsOffset), protocol.NewDataHeader(protocol.InDataHeaderMagic, 0, uint32(id), 0))
	in.DataOffset = off
	return nil
}

// WriteClose closes a domain member with a domain Close command, or the whole
// session with a Close command.
func (c *Cmif) WriteClose(ctx *message.CommandContext) error {
	if ctx.Object.IsDomain() {
		return c.writeRequest(ctx, false, 0, protocol.DomainCommandTypeClose)
	}
	_, err := writeCommand(ctx.Message, &ctx.In, descriptors{}, uint32(protocol.CommandTypeClose), 0)
	return err
}

func (c *Cmif) ReadResponse(ctx *message.CommandContext) error {
	return c.readResponse(ctx, ctx.Object.IsDomain())
}

// ReadControlResponse parses the reply to a control command.
func (c *Cmif) ReadControlResponse(ctx *message.CommandContext) error {
	return c.readResponse(ctx, false)
}

func (c *Cmif) readResponse(ctx *message.CommandContext, domain bool) error {
	msg := ctx.Message
	out := &ctx.Out
	expected := out.DataSize
	if _, err := readCommand(ctx, out, false); err != nil {
		return err
	}

	off := protocol.AlignedDataOffset(out.DataWordsOffset)
	if domain {
		if !fits(msg, off, protocol.DomainOutDataHeaderSize) {
			return result.ResultInvalidHeaderSize
		}
		dh := protocol.ReadAt[protocol.DomainOutDataHeader](msg, off)
		off += protocol.DomainOutDataHeaderSize
		count := int(dh.OutObjectCount)
		objects := off + protocol.DataHeaderSize + expected
		if count > message.MaxCount || !fits(msg, objects, 4*count) {
			return result.ResultInvalidOutObjectCount
		}
		getAll(msg, objects, count, &out.Objects)
	}

	if !fits(msg, off, protocol.DataHeaderSize) {
		return result.ResultInvalidHeaderSize
	}
	hdr := protocol.ReadAt[protocol.DataHeader](msg, off)
	if hdr.Magic != protocol.OutDataHeaderMagic {
		return result.ResultInvalidOutputHeader
	}
	if rc := result.Code(hdr.Value); !rc.IsSuccess() {
		return rc
	}
	out.DataOffset = off + protocol.DataHeaderSize
	out.DataSize = expected
	if !fits(msg, out.DataOffset, expected) {
		return result.ResultInvalidHeaderSize
	}
	return nil
}

func (c *Cmif) ReadRequest(ctx *message.CommandContext) (RequestInfo, error) {
	msg := ctx.Message
	in := &ctx.In
	hdr, err := readCommand(ctx, in, true)
	if err != nil {
		return RequestInfo{}, err
	}
	info := RequestInfo{CommandType: hdr.CommandType()}
	ct := protocol.CommandType(info.CommandType)

	switch {
	case ct == protocol.CommandTypeClose:
		return info, nil

	case ct.IsControl():
		off := protocol.AlignedDataOffset(in.DataWordsOffset)
		if in.DataSize < protocol.DataPadding+protocol.DataHeaderSize || !fits(msg, off, protocol.DataHeaderSize) {
			return info, result.ResultInvalidHeaderSize
		}
		dh := protocol.ReadAt[protocol.DataHeader](msg, off)
		if dh.Magic != protocol.InDataHeaderMagic {
			return info, result.ResultInvalidInputHeader
		}
		info.RequestID = dh.Value
		in.DataOffset = off + protocol.DataHeaderSize
		in.DataSize -= protocol.DataPadding + protocol.DataHeaderSize
		return info, nil

	case ct.IsRequest():
		off := protocol.AlignedDataOffset(in.DataWordsOffset)
		header := off
		if ctx.Object.IsDomain() {
			if in.DataSize < protocol.DomainInDataHeaderSize || !fits(msg, off, protocol.DomainInDataHeaderSize) {
				return info, result.ResultInvalidHeaderSize
			}
			dh := protocol.ReadAt[protocol.DomainInDataHeader](msg, off)
			off += protocol.DomainInDataHeaderSize
			in.DataSize -= protocol.DomainInDataHeaderSize
			info.DomainCommandType = dh.CommandType
			info.DomainObjectID = dh.DomainObjectID

			count := int(dh.ObjectCount)
			objects := off + int(dh.DataSize)
			if count > message.MaxCount || !fits(msg, objects, 4*count) {
				return info, result.ResultInvalidInObjectCount
			}
			getAll(msg, objects, count, &in.Objects)
			header = off
		}

		if in.DataSize >= protocol.DataPadding {
			in.DataSize -= protocol.DataPadding
			if in.DataSize >= protocol.DataHeaderSize {
				if !fits(msg, header, protocol.DataHeaderSize) {
					return info, result.ResultInvalidHeaderSize
				}
				dh := protocol.ReadAt[protocol.DataHeader](msg, header)
				if dh.Magic != protocol.InDataHeaderMagic {
					return info, result.ResultInvalidInputHeader
				}
				info.RequestID = dh.Value
				off = header + protocol.DataHeaderSize
				in.DataSize -= protocol.DataHeaderSize
			}
		}
		in.DataOffset = off
		return info, nil
	}
	return info, result.ResultInvalidCommandType
}

func (c *Cmif) WriteResponse(ctx *message.CommandContext, req RequestInfo, rc result.Code) error {
	msg := ctx.Message
	out := &ctx.Out
	ct := protocol.CommandType(req.CommandType)
	domain := ct.IsRequest() && ctx.Object.IsDomain()

	dataSize := protocol.DataPadding + protocol.DataHeaderSize + out.DataSize
	if domain {
		dataSize += protocol.DomainOutDataHeaderSize + 4*out.Objects.Len()
	}
	dataSize = evenUp(dataSize)

	wordsOffset, err := writeCommand(msg, out, replyDescriptors(ctx, true), req.CommandType, dataSize)
	if err != nil {
		return err
	}
	off := protocol.AlignedDataOffset(wordsOffset)
	if domain {
		off = put(msg, off, protocol.NewDomainOutDataHeader(uint32(out.Objects.Len())))
		putAll(msg, off+protocol.DataHeaderSize+out.DataSize, out.Objects.Items())
	}
	var version uint32
	if ct.HasContext() {
		version = 1
	}
	out.DataOffset = put(msg, off, protocol.NewDataHeader(protocol.OutDataHeaderMagic, version, uint32(rc), 0))
	return nil
}

func (c *Cmif) WriteCloseResponse(ctx *message.CommandContext) error {
	_, err := writeCommand(ctx.Message, &message.Params{}, descriptors{}, uint32(protocol.CommandTypeClose), 0)
	return err
}
