package message

import (
	"bytes"
	"strings"
)

// BufferAttribute describes how a buffer parameter travels.
type BufferAttribute uint8

const (
	AttrIn BufferAttribute = 1 << iota
	AttrOut
	AttrMapAlias
	AttrPointer
	AttrFixedSize
	AttrAutoSelect
	AttrAllowNonSecure
	AttrAllowNonDevice
)

func (a BufferAttribute) Has(flag BufferAttribute) bool {
	return a&flag == flag
}

func (a BufferAttribute) IsIn() bool {
	return a.Has(AttrIn)
}

func (a BufferAttribute) IsOut() bool {
	return a.Has(AttrOut)
}

func (a BufferAttribute) String() string {
	names := []struct {
		flag BufferAttribute
		name string
	}{
		{AttrIn, "In"},
		{AttrOut, "Out"},
		{AttrMapAlias, "MapAlias"},
		{AttrPointer, "Pointer"},
		{AttrFixedSize, "FixedSize"},
		{AttrAutoSelect, "AutoSelect"},
		{AttrAllowNonSecure, "AllowNonSecure"},
		{AttrAllowNonDevice, "AllowNonDevice"},
	}
	var parts []string
	for _, n := range names {
		if a.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// Buffer is a byte region passed by descriptor rather than by value.
//
// On the client Data is the caller's memory. On the server it is whatever the
// descriptor resolved to: mapped client memory or a slice of the pointer
// buffer. FixedSize is the expected length of an AttrFixedSize out pointer.
type Buffer struct {
	Attr      BufferAttribute
	Data      []byte
	FixedSize int
}

func NewBuffer(attr BufferAttribute, data []byte) *Buffer {
	return &Buffer{Attr: attr, Data: data}
}

func InMapAlias(data []byte) *Buffer {
	return NewBuffer(AttrIn|AttrMapAlias, data)
}

func OutMapAlias(data []byte) *Buffer {
	return NewBuffer(AttrOut|AttrMapAlias, data)
}

func InNonSecureMapAlias(data []byte) *Buffer {
	return NewBuffer(AttrIn|AttrMapAlias|AttrAllowNonSecure, data)
}

func OutNonSecureMapAlias(data []byte) *Buffer {
	return NewBuffer(AttrOut|AttrMapAlias|AttrAllowNonSecure, data)
}

func InNonDeviceMapAlias(data []byte) *Buffer {
	return NewBuffer(AttrIn|AttrMapAlias|AttrAllowNonDevice, data)
}

func OutNonDeviceMapAlias(data []byte) *Buffer {
	return NewBuffer(AttrOut|AttrMapAlias|AttrAllowNonDevice, data)
}

func InAutoSelect(data []byte) *Buffer {
	return NewBuffer(AttrIn|AttrAutoSelect, data)
}

func OutAutoSelect(data []byte) *Buffer {
	return NewBuffer(AttrOut|AttrAutoSelect, data)
}

func InPointer(data []byte) *Buffer {
	return NewBuffer(AttrIn|AttrPointer, data)
}

func OutPointer(data []byte) *Buffer {
	return NewBuffer(AttrOut|AttrPointer, data)
}

func InFixedPointer(data []byte) *Buffer {
	return NewBuffer(AttrIn|AttrPointer|AttrFixedSize, data)
}

// OutFixedPointer is an out pointer whose size both sides know statically.
// No size is recorded on the wire for it.
func OutFixedPointer(data []byte) *Buffer {
	return &Buffer{Attr: AttrOut | AttrPointer | AttrFixedSize, Data: data, FixedSize: len(data)}
}

func Exchange(data []byte) *Buffer {
	return NewBuffer(AttrIn|AttrOut|AttrMapAlias, data)
}

// WithSize sets the expected size of a fixed-size buffer popped on the server.
func (b *Buffer) WithSize(n int) *Buffer {
	b.FixedSize = n
	return b
}

// Len is the buffer length in bytes.
func (b *Buffer) Len() int {
	return len(b.Data)
}

// String reads the buffer as a NUL-terminated string.
func (b *Buffer) String() string {
	if i := bytes.IndexByte(b.Data, 0); i >= 0 {
		return string(b.Data[:i])
	}
	return string(b.Data)
}

// SetString zeroes the buffer and copies s into it, always leaving room for
// the terminating NUL.
func (b *Buffer) SetString(s string) {
	clear(b.Data)
	if len(b.Data) == 0 {
		return
	}
	n := min(len(s), len(b.Data)-1)
	copy(b.Data, s[:n])
}
