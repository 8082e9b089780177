package protocol

import (
	"math"
	"runtime"
	"sync"
	"unsafe"

	"github.com/google/btree"
)

// The peer of a loopback session lives in the same address space, but an
// address on its own keeps nothing alive and a slice on a goroutine stack
// moves when the stack grows. Every region a descriptor names is therefore
// mapped first: the table holds the slice itself, and BytesAt only hands out
// views of mapped slices.

type region struct {
	start uintptr
	size  int
	data  []byte
	refs  int
}

func regionLess(a, b region) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	return a.size < b.size
}

var regions = struct {
	sync.RWMutex
	tree *btree.BTreeG[region]
}{tree: btree.NewG(16, regionLess)}

// AddressOf returns the address of the first byte of b, or 0 for an empty slice.
func AddressOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func mapRegion(b []byte) uintptr {
	key := region{start: AddressOf(b), size: len(b), data: b}
	regions.Lock()
	defer regions.Unlock()
	if r, ok := regions.tree.Get(key); ok {
		key = r
	}
	key.refs++
	regions.tree.ReplaceOrInsert(key)
	return key.start
}

func unmapRegion(b []byte) {
	key := region{start: AddressOf(b), size: len(b)}
	regions.Lock()
	defer regions.Unlock()
	r, ok := regions.tree.Get(key)
	if !ok {
		return
	}
	if r.refs--; r.refs == 0 {
		regions.tree.Delete(r)
		return
	}
	regions.tree.ReplaceOrInsert(r)
}

// BytesAt returns the size bytes at addr, a view of the mapped slice that
// covers them. A zero address or size, or a range no mapping covers, yields nil.
func BytesAt(addr uintptr, size int) []byte {
	if addr == 0 || size <= 0 {
		return nil
	}
	var view []byte
	regions.RLock()
	// Mappings may nest, so walk down from the closest start until one
	// covers the whole range.
	regions.tree.DescendLessOrEqual(region{start: addr, size: math.MaxInt}, func(r region) bool {
		off := int(addr - r.start)
		if off+size <= r.size {
			view = r.data[off : off+size : off+size]
			return false
		}
		return true
	})
	regions.RUnlock()
	return view
}

// Mapping is the set of regions one side of a call exposes to its peer. Each
// mapped slice is retained and pinned until Unmap.
// The zero value is ready to use.
type Mapping struct {
	pinner runtime.Pinner
	slices [][]byte
}

// Map exposes b and returns its address, 0 for an empty slice.
func (m *Mapping) Map(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	m.pinner.Pin(unsafe.SliceData(b))
	m.slices = append(m.slices, b)
	return mapRegion(b)
}

// Unmap withdraws every region m exposed. m may be reused afterwards.
func (m *Mapping) Unmap() {
	for _, b := range m.slices {
		unmapRegion(b)
	}
	clear(m.slices)
	m.slices = m.slices[:0]
	m.pinner.Unpin()
}

// Len is the number of regions currently mapped through m.
func (m *Mapping) Len() int {
	return len(m.slices)
}
