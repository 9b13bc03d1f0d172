package queue

// Fifo implements a first-in first-out (FIFO) queue.
//
// Fifo is not safe for concurrent use. Callers are expected to guard it with their own lock.
type Fifo[T any] struct {
	elements []T
}

// NewFifo creates a new Fifo struct with the specified initial size/capacity
// and returns a pointer to it.
func NewFifo[T any](initialSize int) *Fifo[T] {
	if initialSize < 0 {
		initialSize = 1
	}

	return &Fifo[T]{
		elements: make([]T, 0, initialSize),
	}
}

// Enqueue adds the specified element to the queue.
func (q *Fifo[T]) Enqueue(elem T) {
	q.elements = append(q.elements, elem)
}

// Dequeue removes and returns the next element in the queue.
//
// If the length of the Fifo is 0, then Dequeue returns the zero value and false.
func (q *Fifo[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.elements) == 0 {
		return zero, false
	}

	elem := q.elements[0]
	q.elements[0] = zero
	q.elements = q.elements[1:]

	return elem, true
}

// Peek returns but does not remove the next element in the queue.
//
// If the length of the Fifo is 0, then Peek returns the zero value and false.
func (q *Fifo[T]) Peek() (T, bool) {
	if len(q.elements) == 0 {
		var zero T
		return zero, false
	}

	return q.elements[0], true
}

// Find returns the oldest element for which match returns true, without removing it.
func (q *Fifo[T]) Find(match func(T) bool) (T, bool) {
	for _, elem := range q.elements {
		if match(elem) {
			return elem, true
		}
	}

	var zero T
	return zero, false
}

// Remove removes and returns the oldest element for which match returns true.
//
// The relative order of the remaining elements is preserved.
func (q *Fifo[T]) Remove(match func(T) bool) (T, bool) {
	var zero T
	for i, elem := range q.elements {
		if !match(elem) {
			continue
		}

		copy(q.elements[i:], q.elements[i+1:])
		q.elements[len(q.elements)-1] = zero
		q.elements = q.elements[:len(q.elements)-1]

		return elem, true
	}

	return zero, false
}

// Drain removes every element from the queue and returns them, oldest first.
func (q *Fifo[T]) Drain() []T {
	drained := q.elements
	q.elements = make([]T, 0, cap(drained))
	return drained
}

// Len returns the number of elements in the queue.
func (q *Fifo[T]) Len() int {
	return len(q.elements)
}
