package message

import (
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// Encoder writes one parameter into the outgoing message. Reserve runs during
// the size pass, before the data region is placed, and registers handles,
// objects and buffers. Encode runs once the region is known and writes raw
// data.
type Encoder interface {
	Reserve(w *protocol.Walker, ctx *CommandContext) error
	Encode(w *protocol.Walker, ctx *CommandContext) error
}

// Decoder reads one parameter out of the incoming message.
type Decoder interface {
	Decode(w *protocol.Walker, ctx *CommandContext) error
}

// RawSizer is implemented by decoders that occupy raw data.
type RawSizer interface {
	Advance(w *protocol.Walker)
}

// RawSize is the number of raw data bytes params will read.
func RawSize(params []Decoder) int {
	w := protocol.NewWalker(nil)
	for _, p := range params {
		if s, ok := p.(RawSizer); ok {
			s.Advance(w)
		}
	}
	return w.Offset()
}

// ReserveAll runs the size pass over params and returns the raw data size.
func ReserveAll(ctx *CommandContext, params []Encoder) (int, error) {
	w := protocol.NewWalker(nil)
	for _, p := range params {
		if err := p.Reserve(w, ctx); err != nil {
			return 0, err
		}
	}
	return w.Offset(), nil
}

// EncodeAll writes params into data, the raw data region of the message.
func EncodeAll(ctx *CommandContext, data []byte, params []Encoder) error {
	w := protocol.NewWalker(data)
	for _, p := range params {
		if err := p.Encode(w, ctx); err != nil {
			return err
		}
	}
	return nil
}

// DecodeAll reads params from data, the raw data region of the message.
// Buffers are resolved after every other parameter, once the walker has
// passed all raw data.
func DecodeAll(ctx *CommandContext, data []byte, params []Decoder) error {
	w := protocol.NewWalker(data)
	for _, p := range params {
		if _, ok := p.(*Buffer); ok {
			continue
		}
		if err := p.Decode(w, ctx); err != nil {
			return err
		}
	}
	for _, p := range params {
		if b, ok := p.(*Buffer); ok {
			if err := b.Decode(w, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

type dataParam[T any] struct {
	v T
}

// Data passes v by value in the raw data region. T must be a fixed-layout
// type: no pointers, slices, strings or maps.
func Data[T any](v T) Encoder {
	return dataParam[T]{v: v}
}

func (p dataParam[T]) Reserve(w *protocol.Walker, _ *CommandContext) error {
	protocol.Advance[T](w)
	return nil
}

func (p dataParam[T]) Encode(w *protocol.Walker, _ *CommandContext) error {
	protocol.Set(w, p.v)
	return nil
}

type dataOut[T any] struct {
	p *T
}

// DataTo reads a raw data value into p.
func DataTo[T any](p *T) Decoder {
	return dataOut[T]{p: p}
}

func (d dataOut[T]) Advance(w *protocol.Walker) {
	protocol.Advance[T](w)
}

func (d dataOut[T]) Decode(w *protocol.Walker, _ *CommandContext) error {
	*d.p = protocol.Get[T](w)
	return nil
}

type processIDParam struct {
	slot uint64
}

// ProcessID asks the kernel to stamp the caller's process id on the request.
// CMIF also reserves a u64 slot for it in the raw data.
func ProcessID() Encoder {
	return processIDParam{}
}

// AppletResourceUserID sends the process id together with an applet resource
// user id, which takes the raw data slot.
func AppletResourceUserID(aruid uint64) Encoder {
	return aruidParam{aruid: aruid}
}

func (p processIDParam) Reserve(w *protocol.Walker, ctx *CommandContext) error {
	ctx.Outgoing().SendProcessID = true
	if ctx.Object.UsesCmif() {
		protocol.Advance[uint64](w)
	}
	return nil
}

func (p processIDParam) Encode(w *protocol.Walker, ctx *CommandContext) error {
	if ctx.Object.UsesCmif() {
		protocol.Set(w, p.slot)
	}
	return nil
}

type aruidParam struct {
	aruid uint64
}

func (p aruidParam) Reserve(w *protocol.Walker, ctx *CommandContext) error {
	if !ctx.Object.UsesCmif() {
		return result.ResultNotSupported
	}
	ctx.Outgoing().SendProcessID = true
	protocol.Advance[uint64](w)
	return nil
}

func (p aruidParam) Encode(w *protocol.Walker, _ *CommandContext) error {
	protocol.Set(w, p.aruid)
	return nil
}

type processIDOut struct {
	pid   *uint64
	aruid *uint64
}

// ProcessIDTo reads the process id the kernel stamped on the request.
func ProcessIDTo(pid *uint64) Decoder {
	return processIDOut{pid: pid}
}

// AppletResourceUserIDTo reads the stamped process id and the applet resource
// user id sent alongside it.
func AppletResourceUserIDTo(aruid, pid *uint64) Decoder {
	return processIDOut{pid: pid, aruid: aruid}
}

func (d processIDOut) Decode(w *protocol.Walker, ctx *CommandContext) error {
	in := ctx.Incoming()
	if !in.SendProcessID {
		return result.ResultNotSupported
	}
	if ctx.Object.UsesCmif() {
		slot := protocol.Get[uint64](w)
		if d.aruid != nil {
			*d.aruid = slot
		}
	}
	*d.pid = in.ProcessID
	return nil
}

type handleParam struct {
	h    protocol.Handle
	move bool
}

// CopyHandle shares h with the peer; the sender keeps its own handle.
func CopyHandle(h protocol.Handle) Encoder {
	return handleParam{h: h}
}

// MoveHandle transfers h to the peer; the sender must not use it afterwards.
func MoveHandle(h protocol.Handle) Encoder {
	return handleParam{h: h, move: true}
}

func (p handleParam) Reserve(_ *protocol.Walker, ctx *CommandContext) error {
	if p.move {
		return ctx.Outgoing().AddMoveHandle(p.h)
	}
	return ctx.Outgoing().AddCopyHandle(p.h)
}

func (p handleParam) Encode(*protocol.Walker, *CommandContext) error {
	return nil
}

type handleOut struct {
	h    *protocol.Handle
	move bool
}

func CopyHandleTo(h *protocol.Handle) Decoder {
	return handleOut{h: h}
}

func MoveHandleTo(h *protocol.Handle) Decoder {
	return handleOut{h: h, move: true}
}

func (d handleOut) Decode(_ *protocol.Walker, ctx *CommandContext) error {
	var err error
	if d.move {
		*d.h, err = ctx.Incoming().PopMoveHandle()
	} else {
		*d.h, err = ctx.Incoming().PopCopyHandle()
	}
	return err
}

type objectOut struct {
	info *ObjectInfo
}

// ObjectTo reads an object returned by the server.
func ObjectTo(info *ObjectInfo) Decoder {
	return objectOut{info: info}
}

func (d objectOut) Decode(_ *protocol.Walker, ctx *CommandContext) error {
	info, err := ctx.PopObject()
	if err != nil {
		return err
	}
	*d.info = info
	return nil
}

type objectParam struct {
	info ObjectInfo
}

// InObject passes a domain object of the same domain as an argument.
func InObject(info ObjectInfo) Encoder {
	return objectParam{info: info}
}

func (p objectParam) Reserve(_ *protocol.Walker, ctx *CommandContext) error {
	return ctx.Outgoing().AddObject(p.info)
}

func (p objectParam) Encode(*protocol.Walker, *CommandContext) error {
	return nil
}

type domainObjectParam struct {
	id DomainObjectID
}

// DomainObject returns an object allocated in the session's domain.
func DomainObject(id DomainObjectID) Encoder {
	return domainObjectParam{id: id}
}

func (p domainObjectParam) Reserve(_ *protocol.Walker, ctx *CommandContext) error {
	return ctx.Outgoing().AddDomainObject(p.id)
}

func (p domainObjectParam) Encode(*protocol.Walker, *CommandContext) error {
	return nil
}

type objectIDOut struct {
	id *DomainObjectID
}

// InObjectTo reads the id of a domain object passed as an argument.
func InObjectTo(id *DomainObjectID) Decoder {
	return objectIDOut{id: id}
}

func (d objectIDOut) Decode(_ *protocol.Walker, ctx *CommandContext) error {
	id, err := ctx.Incoming().PopDomainObject()
	if err != nil {
		return err
	}
	*d.id = id
	return nil
}

// Reserve registers b with the request. Buffers only travel client to server.
func (b *Buffer) Reserve(_ *protocol.Walker, ctx *CommandContext) error {
	if ctx.IsServer() {
		return result.ResultNotSupported
	}
	return ctx.AddBuffer(b)
}

func (b *Buffer) Encode(*protocol.Walker, *CommandContext) error {
	return nil
}

// Decode resolves b on the server. On the client the reply has already been
// written in place, so there is nothing to read.
func (b *Buffer) Decode(w *protocol.Walker, ctx *CommandContext) error {
	if !ctx.IsServer() {
		return nil
	}
	data, err := ctx.PopBuffer(b.Attr, b.FixedSize, w)
	if err != nil {
		return err
	}
	b.Data = data
	return nil
}

// SizedHeader prefixes a value written into an out buffer by a "sized" command.
type SizedHeader struct {
	Length  uint32
	FdCount uint32
}

type sizedOut[T any] struct {
	p   *T
	buf *Buffer
}

// SizedTo reads a SizedHeader followed by a T from buf once the reply has
// arrived. The header must announce exactly sizeof(T) bytes and no file
// descriptors.
func SizedTo[T any](p *T, buf *Buffer) Decoder {
	return sizedOut[T]{p: p, buf: buf}
}

func (d sizedOut[T]) Decode(*protocol.Walker, *CommandContext) error {
	n := protocol.SizeOf[SizedHeader]()
	if len(d.buf.Data) < n+protocol.SizeOf[T]() {
		return result.ResultInvalidSizedRead
	}
	hdr := protocol.ReadAt[SizedHeader](d.buf.Data, 0)
	if int(hdr.Length) != protocol.SizeOf[T]() || hdr.FdCount != 0 {
		return result.ResultInvalidSizedRead
	}
	*d.p = protocol.ReadAt[T](d.buf.Data, n)
	return nil
}

// Sized writes v behind its SizedHeader into an out buffer.
func Sized[T any](buf []byte, v T) error {
	n := protocol.SizeOf[SizedHeader]()
	if len(buf) < n+protocol.SizeOf[T]() {
		return result.ResultInvalidSize
	}
	protocol.WriteAt(buf, 0, SizedHeader{Length: uint32(protocol.SizeOf[T]())})
	protocol.WriteAt(buf, n, v)
	return nil
}
