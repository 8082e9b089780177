package protocol

// BufferFlags is the 2-bit mapping mode of a map-alias buffer descriptor.
type BufferFlags uint32

const (
	BufferFlagsNormal    BufferFlags = 0
	BufferFlagsNonSecure BufferFlags = 1
	BufferFlagsInvalid   BufferFlags = 2
	BufferFlagsNonDevice BufferFlags = 3
)

func (f BufferFlags) String() string {
	switch f {
	case BufferFlagsNormal:
		return "Normal"
	case BufferFlagsNonSecure:
		return "NonSecure"
	case BufferFlagsInvalid:
		return "Invalid"
	case BufferFlagsNonDevice:
		return "NonDevice"
	}
	return "Unknown"
}

// Map-alias descriptor, 12 bytes: size_low, address_low, bits.
//
//	bits:  0-1 flags | 2-23 address[36:58] | 24-27 size[32:36] | 28-31 address[32:36]
const (
	bufFlagsShift   = 0
	bufFlagsBits    = 2
	bufAddrHiShift  = 2
	bufAddrHiBits   = 22
	bufSizeHiShift  = 24
	bufSizeHiBits   = 4
	bufAddrMidShift = 28
	bufAddrMidBits  = 4
)

// BufferDescriptor describes a send, receive or exchange buffer.
type BufferDescriptor struct {
	sizeLow    uint32
	addressLow uint32
	bits       uint32
}

func NewBufferDescriptor(address uintptr, size int, flags BufferFlags) BufferDescriptor {
	addr := uint64(address)
	sz := uint64(size)
	d := BufferDescriptor{
		sizeLow:    uint32(sz),
		addressLow: uint32(addr),
	}
	d.bits = setBits(d.bits, bufFlagsShift, bufFlagsBits, uint32(flags))
	d.bits = setBits(d.bits, bufAddrHiShift, bufAddrHiBits, uint32(addr>>36))
	d.bits = setBits(d.bits, bufSizeHiShift, bufSizeHiBits, uint32(sz>>32))
	d.bits = setBits(d.bits, bufAddrMidShift, bufAddrMidBits, uint32(addr>>32))
	return d
}

// NullBufferDescriptor is the empty half of an AutoSelect pair.
func NullBufferDescriptor() BufferDescriptor {
	return NewBufferDescriptor(0, 0, BufferFlagsNormal)
}

func (d BufferDescriptor) Address() uintptr {
	addr := uint64(d.addressLow)
	addr |= uint64(getBits(d.bits, bufAddrMidShift, bufAddrMidBits)) << 32
	addr |= uint64(getBits(d.bits, bufAddrHiShift, bufAddrHiBits)) << 36
	return uintptr(addr)
}

func (d BufferDescriptor) Size() int {
	sz := uint64(d.sizeLow)
	sz |= uint64(getBits(d.bits, bufSizeHiShift, bufSizeHiBits)) << 32
	return int(sz)
}

func (d BufferDescriptor) Flags() BufferFlags {
	return BufferFlags(getBits(d.bits, bufFlagsShift, bufFlagsBits))
}

// IsPopulated reports a non-null address with a non-zero size.
func (d BufferDescriptor) IsPopulated() bool {
	return d.Address() != 0 && d.Size() > 0
}

// Send static descriptor, 8 bytes: bits, address_low.
//
//	bits:  0-5 index | 6-11 address[36:42] | 12-15 address[32:36] | 16-31 size
const (
	sendStaticIndexShift   = 0
	sendStaticIndexBits    = 6
	sendStaticAddrHiShift  = 6
	sendStaticAddrHiBits   = 6
	sendStaticAddrMidShift = 12
	sendStaticAddrMidBits  = 4
	sendStaticSizeShift    = 16
	sendStaticSizeBits     = 16
)

// SendStaticDescriptor describes a buffer the kernel copies into the peer's
// pointer buffer (or, in a reply, into the caller's receive static of the
// same index).
type SendStaticDescriptor struct {
	bits       uint32
	addressLow uint32
}

func NewSendStaticDescriptor(address uintptr, size int, index uint32) SendStaticDescriptor {
	addr := uint64(address)
	d := SendStaticDescriptor{addressLow: uint32(addr)}
	d.bits = setBits(d.bits, sendStaticIndexShift, sendStaticIndexBits, index)
	d.bits = setBits(d.bits, sendStaticAddrHiShift, sendStaticAddrHiBits, uint32(addr>>36))
	d.bits = setBits(d.bits, sendStaticAddrMidShift, sendStaticAddrMidBits, uint32(addr>>32))
	d.bits = setBits(d.bits, sendStaticSizeShift, sendStaticSizeBits, uint32(size))
	return d
}

func NullSendStaticDescriptor() SendStaticDescriptor {
	return NewSendStaticDescriptor(0, 0, 0)
}

func (d SendStaticDescriptor) Address() uintptr {
	addr := uint64(d.addressLow)
	addr |= uint64(getBits(d.bits, sendStaticAddrMidShift, sendStaticAddrMidBits)) << 32
	addr |= uint64(getBits(d.bits, sendStaticAddrHiShift, sendStaticAddrHiBits)) << 36
	return uintptr(addr)
}

func (d SendStaticDescriptor) Size() int {
	return int(getBits(d.bits, sendStaticSizeShift, sendStaticSizeBits))
}

func (d SendStaticDescriptor) Index() uint32 {
	return getBits(d.bits, sendStaticIndexShift, sendStaticIndexBits)
}

func (d SendStaticDescriptor) IsPopulated() bool {
	return d.Address() != 0 && d.Size() > 0
}

// Receive static descriptor, 8 bytes: address_low, bits.
//
//	bits:  0-15 address[32:48] | 16-31 size
const (
	recvStaticAddrHiShift = 0
	recvStaticAddrHiBits  = 16
	recvStaticSizeShift   = 16
	recvStaticSizeBits    = 16
)

// ReceiveStaticDescriptor names a region the kernel may copy a peer's send
// static into.
type ReceiveStaticDescriptor struct {
	addressLow uint32
	bits       uint32
}

func NewReceiveStaticDescriptor(address uintptr, size int) ReceiveStaticDescriptor {
	addr := uint64(address)
	d := ReceiveStaticDescriptor{addressLow: uint32(addr)}
	d.bits = setBits(d.bits, recvStaticAddrHiShift, recvStaticAddrHiBits, uint32(addr>>32))
	d.bits = setBits(d.bits, recvStaticSizeShift, recvStaticSizeBits, uint32(size))
	return d
}

func NullReceiveStaticDescriptor() ReceiveStaticDescriptor {
	return NewReceiveStaticDescriptor(0, 0)
}

func (d ReceiveStaticDescriptor) Address() uintptr {
	addr := uint64(d.addressLow)
	addr |= uint64(getBits(d.bits, recvStaticAddrHiShift, recvStaticAddrHiBits)) << 32
	return uintptr(addr)
}

func (d ReceiveStaticDescriptor) Size() int {
	return int(getBits(d.bits, recvStaticSizeShift, recvStaticSizeBits))
}

func (d ReceiveStaticDescriptor) IsPopulated() bool {
	return d.Address() != 0 && d.Size() > 0
}

// Largest values each descriptor kind can carry.
const (
	MaxBufferAddress        = 1<<58 - 1
	MaxBufferSize           = 1<<36 - 1
	MaxSendStaticAddress    = 1<<42 - 1
	MaxReceiveStaticAddress = 1<<48 - 1
	MaxStaticSize           = 0xFFFF
	MaxSendStaticIndex      = 0x3F
)
