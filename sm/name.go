package sm

import (
	"bytes"
	"encoding/binary"
)

// ServiceName is a service name of up to 8 bytes, NUL padded and carried on
// the wire as one little-endian u64.
type ServiceName uint64

// NewServiceName packs name, truncating it to 8 bytes.
func NewServiceName(name string) ServiceName {
	var raw [8]byte
	copy(raw[:], name)
	return ServiceName(binary.LittleEndian.Uint64(raw[:]))
}

func (n ServiceName) bytes() [8]byte {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], uint64(n))
	return raw
}

func (n ServiceName) String() string {
	raw := n.bytes()
	if i := bytes.IndexByte(raw[:], 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw[:])
}

// Valid reports whether n is non-empty and holds nothing after its first NUL.
func (n ServiceName) Valid() bool {
	if n == 0 {
		return false
	}
	raw := n.bytes()
	i := bytes.IndexByte(raw[:], 0)
	if i < 0 {
		return true
	}
	for _, b := range raw[i:] {
		if b != 0 {
			return false
		}
	}
	return true
}
