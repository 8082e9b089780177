package protocol

import "unsafe"

// Walker is a cursor over a raw message region. Each access first aligns the
// offset to the natural alignment of the value's type, relative to the start
// of the region, then moves past it.
//
// A Walker over a nil region only counts: Advance works, Get and Set panic.
// Producers and consumers must walk the same types in the same order; the
// order is the wire contract.
//
// Bounds are the caller's contract. The message buffer is fixed size, so an
// access past the end is a programming error and panics like any slice access.
type Walker struct {
	buf []byte
	off int
}

// NewWalker returns a walker at offset 0 of buf. Pass nil for a size-only pass.
func NewWalker(buf []byte) *Walker {
	return &Walker{buf: buf}
}

// Offset is the number of bytes walked so far, including alignment padding.
func (w *Walker) Offset() int {
	return w.off
}

// Reset rebases the walker on buf at offset 0.
func (w *Walker) Reset(buf []byte) {
	w.buf = buf
	w.off = 0
}

// Skip moves the cursor forward n bytes without alignment.
func (w *Walker) Skip(n int) {
	w.off += n
}

// Rest returns the unwalked part of the region.
func (w *Walker) Rest() []byte {
	return w.buf[w.off:]
}

func alignUp(off, align int) int {
	return (off + align - 1) &^ (align - 1)
}

// Advance reserves space for a T without touching memory.
func Advance[T any](w *Walker) {
	var v T
	w.off = alignUp(w.off, int(unsafe.Alignof(v))) + int(unsafe.Sizeof(v))
}

// Get reads a T at the next aligned offset and moves past it.
func Get[T any](w *Walker) T {
	var v T
	w.off = alignUp(w.off, int(unsafe.Alignof(v)))
	v = ReadAt[T](w.buf, w.off)
	w.off += int(unsafe.Sizeof(v))
	return v
}

// Set writes v at the next aligned offset and moves past it.
func Set[T any](w *Walker, v T) {
	w.off = alignUp(w.off, int(unsafe.Alignof(v)))
	WriteAt(w.buf, w.off, v)
	w.off += int(unsafe.Sizeof(v))
}

// ReadAt copies a T out of buf at off. off need not be aligned.
func ReadAt[T any](buf []byte, off int) T {
	var v T
	n := int(unsafe.Sizeof(v))
	if n == 0 {
		return v
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), n), buf[off:off+n])
	return v
}

// WriteAt copies v into buf at off. off need not be aligned.
func WriteAt[T any](buf []byte, off int, v T) {
	n := int(unsafe.Sizeof(v))
	if n == 0 {
		return
	}
	copy(buf[off:off+n], unsafe.Slice((*byte)(unsafe.Pointer(&v)), n))
}

// SizeOf is the wire size of a T.
func SizeOf[T any]() int {
	var v T
	return int(unsafe.Sizeof(v))
}
