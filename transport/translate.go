package transport

import (
	"nx-ipc/protocol"
	"nx-ipc/result"
)

// frame locates the parts of a message the kernel acts on.
type frame struct {
	hdr            protocol.CommandHeader
	pid            int // offset of the pid slot, -1 when absent
	sendStatics    int
	receiveStatics int
	receiveCount   int
}

func parseFrame(msg []byte) (frame, error) {
	if len(msg) < protocol.CommandHeaderSize {
		return frame{}, result.ResultInvalidSize
	}
	f := frame{hdr: protocol.ReadAt[protocol.CommandHeader](msg, 0), pid: -1}
	off := protocol.CommandHeaderSize
	if f.hdr.HasSpecialHeader() {
		if off+protocol.SpecialHeaderSize > len(msg) {
			return f, result.ResultInvalidSize
		}
		special := protocol.ReadAt[protocol.SpecialHeader](msg, off)
		off += protocol.SpecialHeaderSize
		if special.SendProcessID() {
			f.pid = off
			off += 8
		}
		off += 4 * int(special.CopyHandleCount()+special.MoveHandleCount())
	}
	f.sendStatics = off
	off += protocol.SendStaticDescriptorSize * int(f.hdr.SendStaticCount())
	off += protocol.BufferDescriptorSize * int(f.hdr.SendBufferCount()+f.hdr.ReceiveBufferCount()+f.hdr.ExchangeBufferCount())
	off += 4 * int(f.hdr.DataWordCount())
	f.receiveStatics = off
	f.receiveCount = int(f.hdr.ReceiveStaticCount())
	if f.receiveCount == protocol.ReceiveStaticUnbounded {
		f.receiveCount = 1
	}
	if off+protocol.ReceiveStaticDescriptorSize*f.receiveCount > len(msg) {
		return f, result.ResultInvalidSize
	}
	return f, nil
}

func (f frame) sendStaticCount() int {
	return int(f.hdr.SendStaticCount())
}

func (f frame) sendStaticOffset(i int) int {
	return f.sendStatics + i*protocol.SendStaticDescriptorSize
}

func (f frame) receiveStatic(msg []byte, i int) protocol.ReceiveStaticDescriptor {
	return protocol.ReadAt[protocol.ReceiveStaticDescriptor](msg, f.receiveStatics+i*protocol.ReceiveStaticDescriptorSize)
}

// copyStatic copies the bytes src names to dst. Both sides must be mapped.
func copyStatic(dst uintptr, src protocol.SendStaticDescriptor) error {
	to := protocol.BytesAt(dst, src.Size())
	from := protocol.BytesAt(src.Address(), src.Size())
	if to == nil || from == nil {
		return result.ResultInvalidAddress
	}
	copy(to, from)
	return nil
}

// deliver translates the client request req into the server buffer dst.
// Send statics are packed, 16-byte aligned, into the receive list the server
// left in dst. Nothing in dst changes when the request does not fit.
func deliver(dst []byte, req *request) error {
	list, err := parseFrame(dst)
	if err != nil {
		return err
	}
	recv := protocol.NullReceiveStaticDescriptor()
	if list.receiveCount > 0 {
		recv = list.receiveStatic(dst, 0)
	}

	f, err := parseFrame(req.msg)
	if err != nil {
		return err
	}
	statics := make([]protocol.SendStaticDescriptor, f.sendStaticCount())
	cursor := 0
	for i := range statics {
		d := protocol.ReadAt[protocol.SendStaticDescriptor](req.msg, f.sendStaticOffset(i))
		if d.IsPopulated() {
			off := protocol.AlignUp(cursor, 16)
			if off+d.Size() > recv.Size() {
				return result.ResultInvalidSize
			}
			addr := recv.Address() + uintptr(off)
			if err := copyStatic(addr, d); err != nil {
				return err
			}
			d = protocol.NewSendStaticDescriptor(addr, d.Size(), d.Index())
			cursor = off + d.Size()
		}
		statics[i] = d
	}

	n := copy(dst, req.msg)
	clear(dst[n:])
	if f.pid >= 0 {
		protocol.WriteAt(dst, f.pid, req.pid)
	}
	for i, d := range statics {
		protocol.WriteAt(dst, f.sendStaticOffset(i), d)
	}
	return nil
}

// complete copies the reply into the client buffer dst, which still holds the
// request and with it the client's receive statics. Each reply send static
// lands in the receive static its index names.
func complete(dst, reply []byte) error {
	client, err := parseFrame(dst)
	if err != nil {
		return err
	}
	f, err := parseFrame(reply)
	if err != nil {
		return err
	}

	statics := make([]protocol.SendStaticDescriptor, f.sendStaticCount())
	for i := range statics {
		d := protocol.ReadAt[protocol.SendStaticDescriptor](reply, f.sendStaticOffset(i))
		if d.IsPopulated() {
			index := int(d.Index())
			if index >= client.receiveCount {
				return result.ResultInvalidSize
			}
			recv := client.receiveStatic(dst, index)
			if d.Size() > recv.Size() {
				return result.ResultInvalidSize
			}
			if err := copyStatic(recv.Address(), d); err != nil {
				return err
			}
			d = protocol.NewSendStaticDescriptor(recv.Address(), d.Size(), d.Index())
		}
		statics[i] = d
	}

	n := copy(dst, reply)
	clear(dst[n:])
	for i, d := range statics {
		protocol.WriteAt(dst, f.sendStaticOffset(i), d)
	}
	return nil
}

// WriteReceiveList prepares msg for Receive: an empty command whose single
// receive static covers pointerBuffer. Send statics of the next request are
// copied there, so the caller keeps pointerBuffer mapped while it receives.
func WriteReceiveList(msg, pointerBuffer []byte) {
	clear(msg)
	count := uint32(0)
	if len(pointerBuffer) > 0 {
		count = 1
	}
	protocol.WriteAt(msg, 0, protocol.NewCommandHeader(0, 0, 0, 0, 0, 0, count, false))
	if count > 0 {
		protocol.WriteAt(msg, protocol.CommandHeaderSize,
			protocol.NewReceiveStaticDescriptor(protocol.AddressOf(pointerBuffer), len(pointerBuffer)))
	}
}
