package transport

import (
	"context"
	"sync"

	"nx-ipc/protocol"
	"nx-ipc/result"
)

// Aligned returns a zeroed size-byte slice starting on a 16-byte boundary.
func Aligned(size int) []byte {
	raw := make([]byte, size+15)
	pad := int((16 - protocol.AddressOf(raw)%16) % 16)
	return raw[pad : pad+size : pad+size]
}

// MessageBuffer is the region a caller's requests and replies are laid out
// in. A session call borrows one for its whole duration.
type MessageBuffer struct {
	buf []byte
}

func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{buf: Aligned(protocol.MessageBufferSize)}
}

func (b *MessageBuffer) Bytes() []byte {
	return b.buf
}

func (b *MessageBuffer) Reset() {
	clear(b.buf)
}

// BufferPool hands out message buffers to concurrent callers, at most
// maxBuffers of them at a time.
//
// Pool design: a buffered channel is the free list. Buffers are created
// lazily until the limit is reached, after which Get blocks until one is
// returned.
type BufferPool struct {
	mu         sync.Mutex
	buffers    chan *MessageBuffer
	maxBuffers int
	curBuffers int
}

func NewBufferPool(maxBuffers int) *BufferPool {
	if maxBuffers < 1 {
		maxBuffers = 1
	}
	return &BufferPool{
		buffers:    make(chan *MessageBuffer, maxBuffers),
		maxBuffers: maxBuffers,
	}
}

// Get retrieves a buffer.
// Strategy:
//  1. Take a free buffer if there is one
//  2. Otherwise create one while under the limit
//  3. Otherwise wait for a Put or for ctx to end
func (p *BufferPool) Get(ctx context.Context) (*MessageBuffer, error) {
	select {
	case b := <-p.buffers:
		return b, nil
	default:
	}
	if b := p.createNew(); b != nil {
		return b, nil
	}
	select {
	case b := <-p.buffers:
		return b, nil
	case <-ctx.Done():
		return nil, result.ResultOperationCanceled
	}
}

// Put returns a cleared buffer to the pool.
func (p *BufferPool) Put(b *MessageBuffer) {
	b.Reset()
	select {
	case p.buffers <- b:
	default:
		// Not one of ours; the free list is already full.
	}
}

// createNew makes a buffer unless the limit is reached. Protected by mu so
// concurrent callers never exceed maxBuffers.
func (p *BufferPool) createNew() *MessageBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.curBuffers >= p.maxBuffers {
		return nil
	}
	p.curBuffers++
	return NewMessageBuffer()
}
