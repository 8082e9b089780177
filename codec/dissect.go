package codec

import (
	"fmt"
	"strings"

	"nx-ipc/message"
	"nx-ipc/protocol"
)

// Dissection is a decoded view of an arbitrary message buffer.
type Dissection struct {
	Protocol        message.Protocol
	Header          protocol.CommandHeader
	Special         *protocol.SpecialHeader
	ProcessID       uint64
	CopyHandles     []protocol.Handle
	MoveHandles     []protocol.Handle
	SendStatics     []protocol.SendStaticDescriptor
	SendBuffers     []protocol.BufferDescriptor
	ReceiveBuffers  []protocol.BufferDescriptor
	ExchangeBuffers []protocol.BufferDescriptor
	ReceiveStatics  []protocol.ReceiveStaticDescriptor
	DataWordsOffset int
	DomainIn        *protocol.DomainInDataHeader
	DomainOut       *protocol.DomainOutDataHeader
	DataHeader      *protocol.DataHeader
	RawData         []byte
}

// Dissect decodes msg as a p message. CMIF domain and data headers are
// recognised by their magic, so requests and replies both dissect.
func Dissect(msg []byte, p message.Protocol) (*Dissection, error) {
	ctx := message.NewServerContext(message.ObjectInfo{Protocol: p}, nil)
	ctx.Message = msg
	hdr, err := readCommand(ctx, &ctx.In, true)
	if err != nil {
		return nil, err
	}
	d := &Dissection{
		Protocol:        p,
		Header:          hdr,
		ProcessID:       ctx.In.ProcessID,
		CopyHandles:     ctx.In.CopyHandles.Items(),
		MoveHandles:     ctx.In.MoveHandles.Items(),
		SendStatics:     ctx.SendStatics.Items(),
		SendBuffers:     ctx.SendBuffers.Items(),
		ReceiveBuffers:  ctx.ReceiveBuffers.Items(),
		ExchangeBuffers: ctx.ExchangeBuffers.Items(),
		ReceiveStatics:  ctx.ReceiveStatics.Items(),
		DataWordsOffset: ctx.In.DataWordsOffset,
	}
	if hdr.HasSpecialHeader() {
		sh := protocol.ReadAt[protocol.SpecialHeader](msg, protocol.CommandHeaderSize)
		d.Special = &sh
	}

	start := ctx.In.DataWordsOffset
	end := start + ctx.In.DataSize
	if p == message.ProtocolTipc {
		// A reply's raw data opens with its result code.
		d.RawData = msg[start:end]
		return d, nil
	}

	off := protocol.AlignedDataOffset(start)
	magicAt := func(at int) uint32 {
		if !fits(msg, at, 4) || at+4 > end {
			return 0
		}
		return protocol.ReadAt[uint32](msg, at)
	}
	isMagic := func(m uint32) bool {
		return m == protocol.InDataHeaderMagic || m == protocol.OutDataHeaderMagic
	}
	if !isMagic(magicAt(off)) && isMagic(magicAt(off+protocol.DomainInDataHeaderSize)) {
		if magicAt(off+protocol.DomainInDataHeaderSize) == protocol.InDataHeaderMagic {
			dh := protocol.ReadAt[protocol.DomainInDataHeader](msg, off)
			d.DomainIn = &dh
		} else {
			dh := protocol.ReadAt[protocol.DomainOutDataHeader](msg, off)
			d.DomainOut = &dh
		}
		off += protocol.DomainInDataHeaderSize
	}
	if isMagic(magicAt(off)) {
		dh := protocol.ReadAt[protocol.DataHeader](msg, off)
		d.DataHeader = &dh
		off += protocol.DataHeaderSize
	}
	if off < end {
		d.RawData = msg[off:end]
	}
	return d, nil
}

// String renders the dissection one field per line.
func (d *Dissection) String() string {
	var b strings.Builder
	h := d.Header
	fmt.Fprintf(&b, "protocol:        %s\n", d.Protocol)
	fmt.Fprintf(&b, "command type:    %d", h.CommandType())
	if d.Protocol == message.ProtocolCmif {
		fmt.Fprintf(&b, " (%s)", protocol.CommandType(h.CommandType()))
	} else if h.CommandType() >= protocol.TipcCommandTypeBase {
		fmt.Fprintf(&b, " (request %d)", h.CommandType()-protocol.TipcCommandTypeBase)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "data words:      %d at 0x%x\n", h.DataWordCount(), d.DataWordsOffset)
	if d.Special != nil {
		fmt.Fprintf(&b, "special header:  pid=%t copy=%d move=%d\n",
			d.Special.SendProcessID(), d.Special.CopyHandleCount(), d.Special.MoveHandleCount())
		if d.Special.SendProcessID() {
			fmt.Fprintf(&b, "process id:      0x%x\n", d.ProcessID)
		}
	}
	for _, hd := range d.CopyHandles {
		fmt.Fprintf(&b, "copy handle:     0x%x\n", uint32(hd))
	}
	for _, hd := range d.MoveHandles {
		fmt.Fprintf(&b, "move handle:     0x%x\n", uint32(hd))
	}
	for _, s := range d.SendStatics {
		fmt.Fprintf(&b, "send static:     #%d addr=0x%x size=0x%x\n", s.Index(), s.Address(), s.Size())
	}
	writeBuffers(&b, "send buffer:    ", d.SendBuffers)
	writeBuffers(&b, "receive buffer: ", d.ReceiveBuffers)
	writeBuffers(&b, "exchange buffer:", d.ExchangeBuffers)
	for _, s := range d.ReceiveStatics {
		fmt.Fprintf(&b, "receive static:  addr=0x%x size=0x%x\n", s.Address(), s.Size())
	}
	if d.DomainIn != nil {
		fmt.Fprintf(&b, "domain in:       cmd=%d object=%d objects=%d size=0x%x\n",
			d.DomainIn.CommandType, d.DomainIn.DomainObjectID, d.DomainIn.ObjectCount, d.DomainIn.DataSize)
	}
	if d.DomainOut != nil {
		fmt.Fprintf(&b, "domain out:      objects=%d\n", d.DomainOut.OutObjectCount)
	}
	if d.DataHeader != nil {
		fmt.Fprintf(&b, "data header:     magic=0x%08x version=%d value=0x%x\n",
			d.DataHeader.Magic, d.DataHeader.Version, d.DataHeader.Value)
	}
	fmt.Fprintf(&b, "raw data:        % x\n", d.RawData)
	return b.String()
}

func writeBuffers(b *strings.Builder, label string, ds []protocol.BufferDescriptor) {
	for _, d := range ds {
		fmt.Fprintf(b, "%s addr=0x%x size=0x%x flags=%s\n", label, d.Address(), d.Size(), d.Flags())
	}
}
