package message

// Bounded is a fixed-capacity FIFO. Push never grows it past MaxCount and
// Pop hands items back in the order they were pushed.
type Bounded[T any] struct {
	items [MaxCount]T
	len   int
	next  int
}

// Push appends v. It reports false, leaving the contents unchanged, when full.
func (b *Bounded[T]) Push(v T) bool {
	if b.len == MaxCount {
		return false
	}
	b.items[b.len] = v
	b.len++
	return true
}

// Pop removes the oldest unpopped item.
func (b *Bounded[T]) Pop() (T, bool) {
	if b.next >= b.len {
		var zero T
		return zero, false
	}
	v := b.items[b.next]
	b.next++
	return v, true
}

// Len is the number of items pushed, popped or not.
func (b *Bounded[T]) Len() int {
	return b.len
}

// Remaining is the number of items not yet popped.
func (b *Bounded[T]) Remaining() int {
	return b.len - b.next
}

// Items returns every pushed item in order.
func (b *Bounded[T]) Items() []T {
	return b.items[:b.len]
}

func (b *Bounded[T]) Reset() {
	*b = Bounded[T]{}
}
