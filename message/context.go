package message

import (
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// Params is one direction of a call: everything a request carries to the
// server, or everything a reply carries back.
type Params struct {
	SendProcessID   bool
	ProcessID       uint64
	DataSize        int // raw data bytes, excluding the dialect's headers
	DataOffset      int // start of the raw data in the message buffer
	DataWordsOffset int // start of the data words in the message buffer
	CopyHandles     Bounded[protocol.Handle]
	MoveHandles     Bounded[protocol.Handle]
	Objects         Bounded[DomainObjectID]
	OutPointerSizes Bounded[uint16]
}

func (p *Params) AddCopyHandle(h protocol.Handle) error {
	if !p.CopyHandles.Push(h) {
		return result.ResultCopyHandlesFull
	}
	return nil
}

func (p *Params) AddMoveHandle(h protocol.Handle) error {
	if !p.MoveHandles.Push(h) {
		return result.ResultMoveHandlesFull
	}
	return nil
}

func (p *Params) AddDomainObject(id DomainObjectID) error {
	if !p.Objects.Push(id) {
		return result.ResultDomainObjectsFull
	}
	return nil
}

// AddObject sends an object by domain id. Only domain objects can be passed
// as inputs.
func (p *Params) AddObject(o ObjectInfo) error {
	if !o.IsDomain() {
		return result.ResultInvalidDomainObject
	}
	return p.AddDomainObject(o.DomainObjectID)
}

func (p *Params) AddOutPointerSize(size uint16) error {
	if !p.OutPointerSizes.Push(size) {
		return result.ResultPointerSizesFull
	}
	return nil
}

func (p *Params) PopCopyHandle() (protocol.Handle, error) {
	h, ok := p.CopyHandles.Pop()
	if !ok {
		return protocol.InvalidHandle, result.ResultInvalidCopyHandleCount
	}
	return h, nil
}

func (p *Params) PopMoveHandle() (protocol.Handle, error) {
	h, ok := p.MoveHandles.Pop()
	if !ok {
		return protocol.InvalidHandle, result.ResultInvalidMoveHandleCount
	}
	return h, nil
}

func (p *Params) PopDomainObject() (DomainObjectID, error) {
	id, ok := p.Objects.Pop()
	if !ok {
		return 0, result.ResultInvalidDomainObjectCount
	}
	return id, nil
}

// PointerBufferSizer reports the size of a session's pointer buffer. The
// client asks it at most once per call, the first time an AutoSelect buffer
// is classified.
type PointerBufferSizer interface {
	PointerBufferSize() (uint16, error)
}

// PointerBufferSizerFunc adapts a function to PointerBufferSizer.
type PointerBufferSizerFunc func() (uint16, error)

func (f PointerBufferSizerFunc) PointerBufferSize() (uint16, error) {
	return f()
}

// CommandContext is the state of one call on either side of a session.
// It is not safe for concurrent use and must not outlive the call.
type CommandContext struct {
	Object ObjectInfo
	In     Params
	Out    Params

	SendStatics     Bounded[protocol.SendStaticDescriptor]
	ReceiveStatics  Bounded[protocol.ReceiveStaticDescriptor]
	SendBuffers     Bounded[protocol.BufferDescriptor]
	ReceiveBuffers  Bounded[protocol.BufferDescriptor]
	ExchangeBuffers Bounded[protocol.BufferDescriptor]

	// ReplyStatics are the out pointer buffers the server carved, sent back
	// with the reply.
	ReplyStatics Bounded[protocol.SendStaticDescriptor]

	// Message is the message buffer the request was read from (server) or
	// written to (client).
	Message []byte

	server            bool
	sizer             PointerBufferSizer
	pointerBufferSize int
	pointerSizeKnown  bool
	inPointerOffset   int

	pointerBuffer     []byte
	outPointerOffset  int
	pointerSizeWalker *protocol.Walker

	// Buffers this side exposed to the peer, retained until Release.
	mem protocol.Mapping
}

// NewClientContext starts a call on obj. sizer may be nil when the caller
// never passes AutoSelect buffers.
func NewClientContext(obj ObjectInfo, sizer PointerBufferSizer) *CommandContext {
	return &CommandContext{Object: obj, sizer: sizer}
}

// NewServerContext starts handling a request for obj. Out pointer buffers are
// carved from the top of pointerBuffer. The owner keeps pointerBuffer mapped so the kernel
// can copy carved replies out of it.
func NewServerContext(obj ObjectInfo, pointerBuffer []byte) *CommandContext {
	return &CommandContext{
		Object:            obj,
		server:            true,
		pointerBuffer:     pointerBuffer,
		outPointerOffset:  len(pointerBuffer),
		pointerBufferSize: len(pointerBuffer),
		pointerSizeKnown:  true,
	}
}

// Release withdraws the buffers the call exposed to the peer. Every client
// context that added a buffer must be released once the reply is decoded.
func (c *CommandContext) Release() {
	c.mem.Unmap()
}

// IsServer reports whether the context handles a received request.
func (c *CommandContext) IsServer() bool {
	return c.server
}

// Outgoing is the direction this side writes: the request on the client, the
// reply on the server.
func (c *CommandContext) Outgoing() *Params {
	if c.server {
		return &c.Out
	}
	return &c.In
}

// Incoming is the direction this side reads.
func (c *CommandContext) Incoming() *Params {
	if c.server {
		return &c.In
	}
	return &c.Out
}

// SetPointerBufferSize records a known pointer buffer size so the sizer is
// never asked.
func (c *CommandContext) SetPointerBufferSize(size uint16) {
	c.pointerBufferSize = int(size)
	c.pointerSizeKnown = true
}

func (c *CommandContext) PointerBuffer() []byte {
	return c.pointerBuffer
}

func (c *CommandContext) addSendStatic(d protocol.SendStaticDescriptor) error {
	if !c.SendStatics.Push(d) {
		return result.ResultSendStaticsFull
	}
	return nil
}

func (c *CommandContext) addReceiveStatic(d protocol.ReceiveStaticDescriptor) error {
	if !c.ReceiveStatics.Push(d) {
		return result.ResultReceiveStaticsFull
	}
	return nil
}

func (c *CommandContext) addSendBuffer(d protocol.BufferDescriptor) error {
	if !c.SendBuffers.Push(d) {
		return result.ResultSendBuffersFull
	}
	return nil
}

func (c *CommandContext) addReceiveBuffer(d protocol.BufferDescriptor) error {
	if !c.ReceiveBuffers.Push(d) {
		return result.ResultReceiveBuffersFull
	}
	return nil
}

func (c *CommandContext) addExchangeBuffer(d protocol.BufferDescriptor) error {
	if !c.ExchangeBuffers.Push(d) {
		return result.ResultExchangeBuffersFull
	}
	return nil
}

func (c *CommandContext) sendStaticIndex() uint32 {
	return uint32(c.SendStatics.Len())
}

func checkAttributes(obj ObjectInfo, attr BufferAttribute) error {
	pointer := attr.Has(AttrPointer)
	if pointer && attr.Has(AttrMapAlias) {
		return result.ResultInvalidBufferAttributes
	}
	if !pointer && !attr.Has(AttrMapAlias) && !attr.Has(AttrAutoSelect) {
		return result.ResultInvalidBufferAttributes
	}
	if !attr.IsIn() && !attr.IsOut() {
		return result.ResultInvalidBufferAttributes
	}
	// TIPC has no static descriptors.
	if obj.UsesTipc() && (pointer || attr.Has(AttrAutoSelect)) {
		return result.ResultInvalidBufferAttributes
	}
	return nil
}

func mapAliasFlags(attr BufferAttribute) protocol.BufferFlags {
	switch {
	case attr.Has(AttrAllowNonSecure):
		return protocol.BufferFlagsNonSecure
	case attr.Has(AttrAllowNonDevice):
		return protocol.BufferFlagsNonDevice
	}
	return protocol.BufferFlagsNormal
}

// AddBuffer classifies b and records the descriptors that carry it.
//
//	In|Out MapAlias   → exchange buffer
//	In MapAlias       → send buffer
//	Out MapAlias      → receive buffer
//	In Pointer        → send static
//	Out Pointer       → receive static (+ out pointer size unless FixedSize)
//	AutoSelect        → pointer buffer if it still fits, else map alias;
//	                    both descriptors of the pair are always emitted
func (c *CommandContext) AddBuffer(b *Buffer) error {
	attr := b.Attr
	if err := checkAttributes(c.Object, attr); err != nil {
		return err
	}
	addr := c.mem.Map(b.Data)
	size := len(b.Data)

	switch {
	case attr.Has(AttrAutoSelect):
		if !c.pointerSizeKnown {
			if c.sizer != nil {
				n, err := c.sizer.PointerBufferSize()
				if err != nil {
					return err
				}
				c.pointerBufferSize = int(n)
			}
			c.pointerSizeKnown = true
		}

		inStatic := false
		if c.pointerBufferSize > 0 {
			inStatic = size <= c.pointerBufferSize-c.inPointerOffset
		}
		if inStatic {
			c.inPointerOffset += size
		}

		if attr.IsIn() {
			send := protocol.NewBufferDescriptor(addr, size, protocol.BufferFlagsNormal)
			static := protocol.NewSendStaticDescriptor(0, 0, c.sendStaticIndex())
			if inStatic {
				send = protocol.NullBufferDescriptor()
				static = protocol.NewSendStaticDescriptor(addr, size, c.sendStaticIndex())
			}
			if err := c.addSendBuffer(send); err != nil {
				return err
			}
			return c.addSendStatic(static)
		}

		recv := protocol.NewBufferDescriptor(addr, size, protocol.BufferFlagsNormal)
		static := protocol.NullReceiveStaticDescriptor()
		pointerSize := uint16(0)
		if inStatic {
			recv = protocol.NullBufferDescriptor()
			static = protocol.NewReceiveStaticDescriptor(addr, size)
			pointerSize = uint16(size)
		}
		if err := c.addReceiveBuffer(recv); err != nil {
			return err
		}
		if err := c.addReceiveStatic(static); err != nil {
			return err
		}
		return c.In.AddOutPointerSize(pointerSize)

	case attr.Has(AttrPointer):
		if size > protocol.MaxStaticSize {
			return result.ResultInvalidSize
		}
		if attr.IsIn() {
			return c.addSendStatic(protocol.NewSendStaticDescriptor(addr, size, c.sendStaticIndex()))
		}
		if err := c.addReceiveStatic(protocol.NewReceiveStaticDescriptor(addr, size)); err != nil {
			return err
		}
		if !attr.Has(AttrFixedSize) {
			return c.In.AddOutPointerSize(uint16(size))
		}
		return nil

	default:
		desc := protocol.NewBufferDescriptor(addr, size, mapAliasFlags(attr))
		switch {
		case attr.IsIn() && attr.IsOut():
			return c.addExchangeBuffer(desc)
		case attr.IsIn():
			return c.addSendBuffer(desc)
		default:
			return c.addReceiveBuffer(desc)
		}
	}
}

func (c *CommandContext) PopSendStatic() (protocol.SendStaticDescriptor, error) {
	d, ok := c.SendStatics.Pop()
	if !ok {
		return d, result.ResultInvalidSendStaticCount
	}
	return d, nil
}

func (c *CommandContext) PopReceiveStatic() (protocol.ReceiveStaticDescriptor, error) {
	d, ok := c.ReceiveStatics.Pop()
	if !ok {
		return d, result.ResultInvalidReceiveStaticCount
	}
	return d, nil
}

func (c *CommandContext) PopSendBuffer() (protocol.BufferDescriptor, error) {
	d, ok := c.SendBuffers.Pop()
	if !ok {
		return d, result.ResultInvalidSendBufferCount
	}
	return d, nil
}

func (c *CommandContext) PopReceiveBuffer() (protocol.BufferDescriptor, error) {
	d, ok := c.ReceiveBuffers.Pop()
	if !ok {
		return d, result.ResultInvalidReceiveBufferCount
	}
	return d, nil
}

func (c *CommandContext) PopExchangeBuffer() (protocol.BufferDescriptor, error) {
	d, ok := c.ExchangeBuffers.Pop()
	if !ok {
		return d, result.ResultInvalidExchangeBufferCount
	}
	return d, nil
}

// pointerSizes returns the walker over the out pointer sizes the client
// recorded after its data. Its position depends on how much raw data the
// request carried, so it is only placed once that is known.
func (c *CommandContext) pointerSizes(raw *protocol.Walker) *protocol.Walker {
	if c.pointerSizeWalker == nil {
		size := raw.Offset() + protocol.DataPadding + protocol.DataHeaderSize
		if c.Object.IsDomain() {
			size += protocol.DomainInDataHeaderSize + 4*c.In.Objects.Len()
		}
		size = (size + 1) &^ 1
		c.pointerSizeWalker = protocol.NewWalker(c.Message[c.In.DataWordsOffset+size:])
	}
	return c.pointerSizeWalker
}

// carve takes size bytes from the top of the pointer buffer and publishes
// them as a send static, so the kernel copies them into the client's receive
// static at index.
func (c *CommandContext) carve(size, index int) ([]byte, error) {
	if size < 0 || size > c.outPointerOffset {
		return nil, result.ResultInvalidSize
	}
	off := protocol.AlignDown(c.outPointerOffset-size, 16)
	if off < 0 {
		return nil, result.ResultInvalidSize
	}
	c.outPointerOffset = off
	data := c.pointerBuffer[off : off+size]
	if !c.ReplyStatics.Push(protocol.NewSendStaticDescriptor(protocol.AddressOf(data), size, uint32(index))) {
		return nil, result.ResultSendStaticsFull
	}
	return data, nil
}

// PopBuffer resolves the next buffer parameter of a received request.
// raw is the walker over the request's raw data; it must already be past
// every raw data parameter when an out pointer needs its recorded size.
func (c *CommandContext) PopBuffer(attr BufferAttribute, fixedSize int, raw *protocol.Walker) ([]byte, error) {
	if err := checkAttributes(c.Object, attr); err != nil {
		return nil, err
	}

	switch {
	case attr.Has(AttrAutoSelect):
		if attr.IsIn() {
			static, err := c.PopSendStatic()
			if err != nil {
				return nil, err
			}
			send, err := c.PopSendBuffer()
			if err != nil {
				return nil, err
			}
			if static.IsPopulated() {
				return resolve(static.Address(), static.Size())
			}
			return resolve(send.Address(), send.Size())
		}

		index := c.ReceiveStatics.Len() - c.ReceiveStatics.Remaining()
		static, err := c.PopReceiveStatic()
		if err != nil {
			return nil, err
		}
		recv, err := c.PopReceiveBuffer()
		if err != nil {
			return nil, err
		}
		protocol.Get[uint16](c.pointerSizes(raw))
		if static.IsPopulated() {
			return c.carve(static.Size(), index)
		}
		return resolve(recv.Address(), recv.Size())

	case attr.Has(AttrPointer):
		if attr.IsIn() {
			static, err := c.PopSendStatic()
			if err != nil {
				return nil, err
			}
			return resolve(static.Address(), static.Size())
		}

		index := c.ReceiveStatics.Len() - c.ReceiveStatics.Remaining()
		c.ReceiveStatics.Pop()
		size := fixedSize
		if !attr.Has(AttrFixedSize) {
			size = int(protocol.Get[uint16](c.pointerSizes(raw)))
		}
		return c.carve(size, index)

	default:
		var desc protocol.BufferDescriptor
		var err error
		switch {
		case attr.IsIn() && attr.IsOut():
			desc, err = c.PopExchangeBuffer()
		case attr.IsIn():
			desc, err = c.PopSendBuffer()
		default:
			desc, err = c.PopReceiveBuffer()
		}
		if err != nil {
			return nil, err
		}
		return resolve(desc.Address(), desc.Size())
	}
}

// resolve returns the peer memory a received descriptor names.
func resolve(addr uintptr, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	b := protocol.BytesAt(addr, size)
	if b == nil {
		return nil, result.ResultInvalidAddress
	}
	return b, nil
}

// PopObject resolves the next object returned by the server. On a domain
// session it is another id over the same handle, otherwise a new session.
func (c *CommandContext) PopObject() (ObjectInfo, error) {
	if c.Object.IsDomain() {
		id, ok := c.Out.Objects.Pop()
		if !ok {
			return ObjectInfo{}, result.ResultInvalidDomainObject
		}
		return FromDomainObjectID(c.Object.Handle, id).WithProtocol(c.Object.Protocol), nil
	}
	h, err := c.Out.PopMoveHandle()
	if err != nil {
		return ObjectInfo{}, err
	}
	return FromHandle(h).WithProtocol(c.Object.Protocol), nil
}
