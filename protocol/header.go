package protocol

// Bit ranges of the two CommandHeader words. Inclusive low bit, width.
const (
	commandTypeShift     = 0
	commandTypeBits      = 16
	sendStaticCountShift = 16
	sendStaticCountBits  = 4
	sendBufferCountShift = 20
	sendBufferCountBits  = 4
	recvBufferCountShift = 24
	recvBufferCountBits  = 4
	exchBufferCountShift = 28
	exchBufferCountBits  = 4

	dataWordCountShift    = 0
	dataWordCountBits     = 10
	recvStaticTypeShift   = 10
	recvStaticTypeBits    = 4
	hasSpecialHeaderShift = 31
	hasSpecialHeaderBits  = 1
)

// Bit ranges of the SpecialHeader word.
const (
	sendPIDShift         = 0
	sendPIDBits          = 1
	copyHandleCountShift = 1
	copyHandleCountBits  = 4
	moveHandleCountShift = 5
	moveHandleCountBits  = 4
)

// MaxDataWordCount is the largest data word count the header can carry.
const MaxDataWordCount = 1<<dataWordCountBits - 1

func getBits(word uint32, shift, width uint) uint32 {
	return (word >> shift) & (1<<width - 1)
}

func setBits(word uint32, shift, width uint, value uint32) uint32 {
	mask := uint32(1<<width-1) << shift
	return (word &^ mask) | ((value << shift) & mask)
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// CommandHeader is the 8-byte header every message starts with.
type CommandHeader struct {
	bits1 uint32
	bits2 uint32
}

// NewCommandHeader packs a header. receiveStaticCount uses the in-memory form:
// 0 for none, ReceiveStaticUnbounded, or an explicit count.
func NewCommandHeader(commandType, sendStaticCount, sendBufferCount, receiveBufferCount, exchangeBufferCount, dataWordCount, receiveStaticCount uint32, hasSpecialHeader bool) CommandHeader {
	var h CommandHeader
	h.bits1 = setBits(h.bits1, commandTypeShift, commandTypeBits, commandType)
	h.bits1 = setBits(h.bits1, sendStaticCountShift, sendStaticCountBits, sendStaticCount)
	h.bits1 = setBits(h.bits1, sendBufferCountShift, sendBufferCountBits, sendBufferCount)
	h.bits1 = setBits(h.bits1, recvBufferCountShift, recvBufferCountBits, receiveBufferCount)
	h.bits1 = setBits(h.bits1, exchBufferCountShift, exchBufferCountBits, exchangeBufferCount)

	h.bits2 = setBits(h.bits2, dataWordCountShift, dataWordCountBits, dataWordCount)
	h.bits2 = setBits(h.bits2, recvStaticTypeShift, recvStaticTypeBits, EncodeReceiveStaticType(receiveStaticCount))
	h.bits2 = setBits(h.bits2, hasSpecialHeaderShift, hasSpecialHeaderBits, boolBit(hasSpecialHeader))
	return h
}

// CommandHeaderFromWords rebuilds a header from its raw words.
func CommandHeaderFromWords(bits1, bits2 uint32) CommandHeader {
	return CommandHeader{bits1: bits1, bits2: bits2}
}

func (h CommandHeader) Words() (uint32, uint32) {
	return h.bits1, h.bits2
}

func (h CommandHeader) CommandType() uint32 {
	return getBits(h.bits1, commandTypeShift, commandTypeBits)
}

func (h CommandHeader) SendStaticCount() uint32 {
	return getBits(h.bits1, sendStaticCountShift, sendStaticCountBits)
}

func (h CommandHeader) SendBufferCount() uint32 {
	return getBits(h.bits1, sendBufferCountShift, sendBufferCountBits)
}

func (h CommandHeader) ReceiveBufferCount() uint32 {
	return getBits(h.bits1, recvBufferCountShift, recvBufferCountBits)
}

func (h CommandHeader) ExchangeBufferCount() uint32 {
	return getBits(h.bits1, exchBufferCountShift, exchBufferCountBits)
}

func (h CommandHeader) DataWordCount() uint32 {
	return getBits(h.bits2, dataWordCountShift, dataWordCountBits)
}

// ReceiveStaticType is the raw 4-bit encoded field.
func (h CommandHeader) ReceiveStaticType() uint32 {
	return getBits(h.bits2, recvStaticTypeShift, recvStaticTypeBits)
}

// ReceiveStaticCount decodes the receive static field into its in-memory form.
func (h CommandHeader) ReceiveStaticCount() uint32 {
	return DecodeReceiveStaticType(h.ReceiveStaticType())
}

func (h CommandHeader) HasSpecialHeader() bool {
	return getBits(h.bits2, hasSpecialHeaderShift, hasSpecialHeaderBits) != 0
}

// EncodeReceiveStaticType maps a count to the wire type: 0 → 0,
// unbounded → 2, n → n+2.
func EncodeReceiveStaticType(count uint32) uint32 {
	switch count {
	case 0:
		return 0
	case ReceiveStaticUnbounded:
		return 2
	}
	return count + 2
}

// DecodeReceiveStaticType is the inverse of EncodeReceiveStaticType. Type 1
// is not produced by any sender and decodes to 0.
func DecodeReceiveStaticType(typ uint32) uint32 {
	switch {
	case typ == 2:
		return ReceiveStaticUnbounded
	case typ > 2:
		return typ - 2
	}
	return 0
}

// SpecialHeader follows the CommandHeader when handles or the pid are sent.
type SpecialHeader struct {
	bits uint32
}

func NewSpecialHeader(sendProcessID bool, copyHandleCount, moveHandleCount uint32) SpecialHeader {
	var h SpecialHeader
	h.bits = setBits(h.bits, sendPIDShift, sendPIDBits, boolBit(sendProcessID))
	h.bits = setBits(h.bits, copyHandleCountShift, copyHandleCountBits, copyHandleCount)
	h.bits = setBits(h.bits, moveHandleCountShift, moveHandleCountBits, moveHandleCount)
	return h
}

func SpecialHeaderFromWord(bits uint32) SpecialHeader {
	return SpecialHeader{bits: bits}
}

func (h SpecialHeader) Word() uint32 {
	return h.bits
}

func (h SpecialHeader) SendProcessID() bool {
	return getBits(h.bits, sendPIDShift, sendPIDBits) != 0
}

func (h SpecialHeader) CopyHandleCount() uint32 {
	return getBits(h.bits, copyHandleCountShift, copyHandleCountBits)
}

func (h SpecialHeader) MoveHandleCount() uint32 {
	return getBits(h.bits, moveHandleCountShift, moveHandleCountBits)
}
