package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandHeaderKnownBits(t *testing.T) {
	h := NewCommandHeader(uint32(CommandTypeRequest), 0, 1, 0, 0, 10, 0, false)
	b1, b2 := h.Words()
	assert.Equal(t, uint32(0x00100004), b1)
	assert.Equal(t, uint32(10), b2)

	h = NewCommandHeader(5, 15, 15, 15, 15, 0x3FF, 13, true)
	b1, b2 = h.Words()
	assert.Equal(t, uint32(0xFFFF0005), b1)
	assert.Equal(t, uint32(0x80000000|15<<10|0x3FF), b2)
}

func TestCommandHeaderRoundTrip(t *testing.T) {
	type fields struct {
		typ, sst, sb, rb, xb, dw, rst uint32
		special                       bool
	}
	tests := []fields{
		{0, 0, 0, 0, 0, 0, 0, false},
		{0xFFFF, 15, 15, 15, 15, 0x3FF, 13, true},
		{4, 1, 2, 3, 4, 20, 1, false},
		{16 + 3, 0, 1, 0, 0, 2, ReceiveStaticUnbounded, true},
		{2, 8, 0, 8, 0, 64, 8, false},
	}
	for _, f := range tests {
		h := NewCommandHeader(f.typ, f.sst, f.sb, f.rb, f.xb, f.dw, f.rst, f.special)

		buf := make([]byte, CommandHeaderSize)
		WriteAt(buf, 0, h)
		back := ReadAt[CommandHeader](buf, 0)

		got := fields{
			back.CommandType(), back.SendStaticCount(), back.SendBufferCount(),
			back.ReceiveBufferCount(), back.ExchangeBufferCount(), back.DataWordCount(),
			back.ReceiveStaticCount(), back.HasSpecialHeader(),
		}
		assert.Equal(t, f, got)
	}
}

func TestReceiveStaticTypeEncoding(t *testing.T) {
	assert.Equal(t, uint32(0), EncodeReceiveStaticType(0))
	assert.Equal(t, uint32(2), EncodeReceiveStaticType(ReceiveStaticUnbounded))
	assert.Equal(t, uint32(3), EncodeReceiveStaticType(1))
	assert.Equal(t, uint32(15), EncodeReceiveStaticType(13))

	assert.Equal(t, uint32(0), DecodeReceiveStaticType(0))
	assert.Equal(t, uint32(ReceiveStaticUnbounded), DecodeReceiveStaticType(2))
	assert.Equal(t, uint32(1), DecodeReceiveStaticType(3))
	assert.Equal(t, uint32(13), DecodeReceiveStaticType(15))
}

func TestSpecialHeaderRoundTrip(t *testing.T) {
	for _, pid := range []bool{false, true} {
		for _, copies := range []uint32{0, 1, 8, 15} {
			for _, moves := range []uint32{0, 1, 8, 15} {
				h := NewSpecialHeader(pid, copies, moves)
				back := SpecialHeaderFromWord(h.Word())
				require.Equal(t, pid, back.SendProcessID())
				require.Equal(t, copies, back.CopyHandleCount())
				require.Equal(t, moves, back.MoveHandleCount())
			}
		}
	}
	// pid + 2 copies + 1 move = 1 | 2<<1 | 1<<5
	assert.Equal(t, uint32(0x25), NewSpecialHeader(true, 2, 1).Word())
}

func TestDataHeaderLayout(t *testing.T) {
	buf := make([]byte, 48)
	WriteAt(buf, 0, NewDataHeader(InDataHeaderMagic, 1, 42, 0))
	assert.Equal(t, []byte("SFCI"), buf[0:4])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[4:8]))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(buf[8:12]))

	WriteAt(buf, 16, NewDomainInDataHeader(DomainCommandTypeClose, 2, 0x20, 7, 0))
	assert.Equal(t, byte(2), buf[16])
	assert.Equal(t, byte(2), buf[17])
	assert.Equal(t, uint16(0x20), binary.LittleEndian.Uint16(buf[18:20]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[20:24]))

	WriteAt(buf, 32, NewDomainOutDataHeader(3))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[32:36]))

	assert.Equal(t, 8, CommandHeaderSize)
	assert.Equal(t, 4, SpecialHeaderSize)
	assert.Equal(t, 16, DataHeaderSize)
	assert.Equal(t, 16, DomainInDataHeaderSize)
	assert.Equal(t, 16, DomainOutDataHeaderSize)
}

func TestAlignedDataOffset(t *testing.T) {
	assert.Equal(t, 16, AlignedDataOffset(8))
	assert.Equal(t, 16, AlignedDataOffset(16))
	assert.Equal(t, 32, AlignedDataOffset(20))
	assert.Equal(t, 0x4F0, AlignDown(0x500-12, 16))
}
