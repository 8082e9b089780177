// Package codec lays a CommandContext out in a message buffer and back.
//
// Both dialects share the HIPC framing:
//
//	+----------------+------------------+-----+---------+-------------+
//	| command header | special header?  | pid | handles | descriptors |
//	+----------------+------------------+-----+---------+-------------+
//	| data words ...                          | receive statics (CMIF)  |
//	+-----------------------------------------+-------------------------+
//
// CMIF puts padding, an optional domain header and a data header in front of
// the raw data; TIPC carries the request id in the command type and starts the
// raw data right after the descriptors.
package codec

import (
	"nx-ipc/message"
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// RequestInfo is what the server learns from a request's headers.
type RequestInfo struct {
	CommandType       uint32
	RequestID         uint32
	DomainCommandType protocol.DomainCommandType
	DomainObjectID    message.DomainObjectID
}

// IsClose reports whether the request asks to close the session itself.
func (r RequestInfo) IsClose(p message.Protocol) bool {
	if p == message.ProtocolTipc {
		return r.CommandType == protocol.TipcCloseSession
	}
	return protocol.CommandType(r.CommandType) == protocol.CommandTypeClose
}

// Codec is one wire dialect. Every method works on ctx.Message.
type Codec interface {
	Protocol() message.Protocol

	// WriteRequest lays out the request header for requestID. ctx.In.DataSize
	// must hold the raw data size; on return ctx.In.DataOffset is where the
	// raw data goes.
	WriteRequest(ctx *message.CommandContext, requestID uint32) error
	// ReadResponse parses the reply and returns the result it carries.
	// ctx.Out.DataSize must hold the expected raw data size.
	ReadResponse(ctx *message.CommandContext) error
	WriteClose(ctx *message.CommandContext) error

	ReadRequest(ctx *message.CommandContext) (RequestInfo, error)
	// WriteResponse lays out a reply with result rc. ctx.Out.DataSize must
	// hold the raw data size.
	WriteResponse(ctx *message.CommandContext, req RequestInfo, rc result.Code) error
	WriteCloseResponse(ctx *message.CommandContext) error
}

var (
	cmif = &Cmif{}
	tipc = &Tipc{}
)

// GetCodec returns the codec for p.
func GetCodec(p message.Protocol) Codec {
	if p == message.ProtocolTipc {
		return tipc
	}
	return cmif
}

// descriptors selects which descriptor lists a message carries.
type descriptors struct {
	sendStatics    []protocol.SendStaticDescriptor
	sendBuffers    []protocol.BufferDescriptor
	receiveBuffers []protocol.BufferDescriptor
	exchange       []protocol.BufferDescriptor
	receiveStatics []protocol.ReceiveStaticDescriptor
}

func requestDescriptors(ctx *message.CommandContext, statics bool) descriptors {
	d := descriptors{
		sendBuffers:    ctx.SendBuffers.Items(),
		receiveBuffers: ctx.ReceiveBuffers.Items(),
		exchange:       ctx.ExchangeBuffers.Items(),
	}
	if statics {
		d.sendStatics = ctx.SendStatics.Items()
		d.receiveStatics = ctx.ReceiveStatics.Items()
	}
	return d
}

func replyDescriptors(ctx *message.CommandContext, statics bool) descriptors {
	if !statics {
		return descriptors{}
	}
	return descriptors{sendStatics: ctx.ReplyStatics.Items()}
}

// writeCommand writes the framing of an outgoing message and returns the
// offset of its data words.
func writeCommand(msg []byte, p *message.Params, d descriptors, commandType uint32, dataSize int) (int, error) {
	wordCount := (dataSize + 3) / 4
	if wordCount > protocol.MaxDataWordCount {
		return 0, result.ResultInvalidSize
	}
	special := p.SendProcessID || p.CopyHandles.Len() > 0 || p.MoveHandles.Len() > 0

	size := protocol.CommandHeaderSize
	if special {
		size += protocol.SpecialHeaderSize + 4*(p.CopyHandles.Len()+p.MoveHandles.Len())
		if p.SendProcessID {
			size += 8
		}
	}
	size += protocol.SendStaticDescriptorSize * len(d.sendStatics)
	size += protocol.BufferDescriptorSize * (len(d.sendBuffers) + len(d.receiveBuffers) + len(d.exchange))
	dataWordsOffset := size
	size += 4*wordCount + protocol.ReceiveStaticDescriptorSize*len(d.receiveStatics)
	if size > len(msg) {
		return 0, result.ResultInvalidSize
	}

	hdr := protocol.NewCommandHeader(commandType, uint32(len(d.sendStatics)), uint32(len(d.sendBuffers)),
		uint32(len(d.receiveBuffers)), uint32(len(d.exchange)), uint32(wordCount), uint32(len(d.receiveStatics)), special)
	off := put(msg, 0, hdr)
	if special {
		off = put(msg, off, protocol.NewSpecialHeader(p.SendProcessID, uint32(p.CopyHandles.Len()), uint32(p.MoveHandles.Len())))
		if p.SendProcessID {
			// Filled in by the kernel.
			off = put(msg, off, uint64(0))
		}
		off = putAll(msg, off, p.CopyHandles.Items())
		off = putAll(msg, off, p.MoveHandles.Items())
	}
	off = putAll(msg, off, d.sendStatics)
	off = putAll(msg, off, d.sendBuffers)
	off = putAll(msg, off, d.receiveBuffers)
	off = putAll(msg, off, d.exchange)
	p.DataWordsOffset = off
	putAll(msg, off+4*wordCount, d.receiveStatics)
	return dataWordsOffset, nil
}

// readCommand parses the framing of an incoming message into p. With keep
// set the descriptors are collected into ctx; a client reading a reply skips
// them, the kernel has already acted on them.
func readCommand(ctx *message.CommandContext, p *message.Params, keep bool) (protocol.CommandHeader, error) {
	msg := ctx.Message
	if len(msg) < protocol.CommandHeaderSize {
		return protocol.CommandHeader{}, result.ResultInvalidHeaderSize
	}
	hdr := protocol.ReadAt[protocol.CommandHeader](msg, 0)
	off := protocol.CommandHeaderSize

	var copyCount, moveCount int
	if hdr.HasSpecialHeader() {
		if off+protocol.SpecialHeaderSize+8 > len(msg) {
			return hdr, result.ResultInvalidHeaderSize
		}
		special := protocol.ReadAt[protocol.SpecialHeader](msg, off)
		off += protocol.SpecialHeaderSize
		p.SendProcessID = special.SendProcessID()
		if p.SendProcessID {
			p.ProcessID = protocol.ReadAt[uint64](msg, off)
			off += 8
		}
		copyCount = int(special.CopyHandleCount())
		moveCount = int(special.MoveHandleCount())
	}

	sendBuffers := int(hdr.SendBufferCount())
	receiveBuffers := int(hdr.ReceiveBufferCount())
	exchangeBuffers := int(hdr.ExchangeBufferCount())
	sendStatics := int(hdr.SendStaticCount())
	receiveStatics := int(hdr.ReceiveStaticCount())
	if receiveStatics == protocol.ReceiveStaticUnbounded {
		receiveStatics = 0
	}
	for _, n := range []int{copyCount, moveCount, sendBuffers, receiveBuffers, exchangeBuffers, sendStatics, receiveStatics} {
		if n > message.MaxCount {
			return hdr, result.ResultInvalidHeaderSize
		}
	}

	dataSize := int(hdr.DataWordCount()) * 4
	size := off + 4*(copyCount+moveCount) +
		protocol.SendStaticDescriptorSize*sendStatics +
		protocol.BufferDescriptorSize*(sendBuffers+receiveBuffers+exchangeBuffers) +
		dataSize + protocol.ReceiveStaticDescriptorSize*receiveStatics
	if size > len(msg) {
		return hdr, result.ResultInvalidHeaderSize
	}

	off = getAll(msg, off, copyCount, &p.CopyHandles)
	off = getAll(msg, off, moveCount, &p.MoveHandles)
	if !keep {
		off += protocol.SendStaticDescriptorSize*sendStatics +
			protocol.BufferDescriptorSize*(sendBuffers+receiveBuffers+exchangeBuffers)
		p.DataWordsOffset = off
		p.DataSize = dataSize
		return hdr, nil
	}
	off = getAll(msg, off, sendStatics, &ctx.SendStatics)
	off = getAll(msg, off, sendBuffers, &ctx.SendBuffers)
	off = getAll(msg, off, receiveBuffers, &ctx.ReceiveBuffers)
	off = getAll(msg, off, exchangeBuffers, &ctx.ExchangeBuffers)
	p.DataWordsOffset = off
	p.DataSize = dataSize
	getAll(msg, off+dataSize, receiveStatics, &ctx.ReceiveStatics)
	return hdr, nil
}

func put[T any](msg []byte, off int, v T) int {
	protocol.WriteAt(msg, off, v)
	return off + protocol.SizeOf[T]()
}

func putAll[T any](msg []byte, off int, vs []T) int {
	for _, v := range vs {
		off = put(msg, off, v)
	}
	return off
}

// getAll reads n values into b. Counts are checked against MaxCount first.
func getAll[T any](msg []byte, off, n int, b *message.Bounded[T]) int {
	for i := 0; i < n; i++ {
		b.Push(protocol.ReadAt[T](msg, off))
		off += protocol.SizeOf[T]()
	}
	return off
}

func evenUp(n int) int {
	return (n + 1) &^ 1
}

// fits reports whether n bytes at off lie inside msg.
func fits(msg []byte, off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(msg)
}
