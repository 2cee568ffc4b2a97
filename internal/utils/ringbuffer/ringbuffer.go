// Package ringbuffer provides a ring buffer.
package ringbuffer

// A RingBuffer is a ring buffer.
// It acts as a heap that doesn't cause any allocations.
// Beyond the usual deque operations it supports indexed access and middle
// insertion, which the received-interval history needs when an out-of-order
// packet lands inside a gap.
type RingBuffer[T any] struct {
	ring             []T
	headPos, tailPos int
	full             bool
}

// Init preallocs a buffer with a certain size.
func (r *RingBuffer[T]) Init(size int) {
	r.ring = make([]T, size)
}

// Len returns the number of elements in the ring buffer.
func (r *RingBuffer[T]) Len() int {
	if r.full {
		return len(r.ring)
	}
	if r.tailPos >= r.headPos {
		return r.tailPos - r.headPos
	}
	return r.tailPos - r.headPos + len(r.ring)
}

// Empty says if the ring buffer is empty.
func (r *RingBuffer[T]) Empty() bool {
	return !r.full && r.headPos == r.tailPos
}

// PushBack adds a new element.
// If the ring buffer is full, its capacity is increased first.
func (r *RingBuffer[T]) PushBack(t T) {
	if r.full || len(r.ring) == 0 {
		r.grow()
	}
	r.ring[r.tailPos] = t
	r.tailPos++
	if r.tailPos == len(r.ring) {
		r.tailPos = 0
	}
	if r.tailPos == r.headPos {
		r.full = true
	}
}

// PeekFront returns the next element.
// It must not be called when the buffer is empty, that would panic.
func (r *RingBuffer[T]) PeekFront() T {
	if r.Empty() {
		panic("github.com/tfrc-go/tfrc-go/internal/utils/ringbuffer: peek from an empty queue")
	}
	return r.ring[r.headPos]
}

// PopFront returns the next element.
// It must not be called when the buffer is empty, that would panic.
func (r *RingBuffer[T]) PopFront() T {
	if r.Empty() {
		panic("github.com/tfrc-go/tfrc-go/internal/utils/ringbuffer: pop from an empty queue")
	}
	r.full = false
	t := r.ring[r.headPos]
	r.ring[r.headPos] = *new(T)
	r.headPos++
	if r.headPos == len(r.ring) {
		r.headPos = 0
	}
	return t
}

// At returns a pointer to the i-th element, 0 being the front.
// The pointer stays valid until the buffer grows or the element is removed.
func (r *RingBuffer[T]) At(i int) *T {
	if i < 0 || i >= r.Len() {
		panic("github.com/tfrc-go/tfrc-go/internal/utils/ringbuffer: index out of range")
	}
	pos := r.headPos + i
	if pos >= len(r.ring) {
		pos -= len(r.ring)
	}
	return &r.ring[pos]
}

// InsertAt inserts an element so that it becomes the i-th element.
// i may equal Len(), in which case this is a PushBack.
func (r *RingBuffer[T]) InsertAt(i int, t T) {
	n := r.Len()
	if i < 0 || i > n {
		panic("github.com/tfrc-go/tfrc-go/internal/utils/ringbuffer: index out of range")
	}
	r.PushBack(t)
	// Shift the tail section one slot towards the back.
	for j := n; j > i; j-- {
		*r.At(j) = *r.At(j - 1)
	}
	*r.At(i) = t
}

// RemoveAt removes the i-th element, preserving the order of the rest.
func (r *RingBuffer[T]) RemoveAt(i int) T {
	n := r.Len()
	if i < 0 || i >= n {
		panic("github.com/tfrc-go/tfrc-go/internal/utils/ringbuffer: index out of range")
	}
	t := *r.At(i)
	for j := i; j > 0; j-- {
		*r.At(j) = *r.At(j - 1)
	}
	r.PopFront()
	return t
}

// Grow the maximum size of the queue.
// This method assume the queue is full.
func (r *RingBuffer[T]) grow() {
	oldRing := r.ring
	newSize := len(oldRing) * 2
	if newSize == 0 {
		newSize = 1
	}
	r.ring = make([]T, newSize)
	headLen := copy(r.ring, oldRing[r.headPos:])
	copy(r.ring[headLen:], oldRing[:r.headPos])
	r.headPos, r.tailPos, r.full = 0, len(oldRing), false
}

// Clear removes all elements.
func (r *RingBuffer[T]) Clear() {
	var zeroValue T
	for i := range r.ring {
		r.ring[i] = zeroValue
	}
	r.headPos, r.tailPos, r.full = 0, 0, false
}
