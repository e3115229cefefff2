package intcode

// queue is an unbounded FIFO of values.
type queue struct {
	items []int64
	head  int
}

func (q *queue) push(vs ...int64) {
	q.items = append(q.items, vs...)
}

func (q *queue) pop() (int64, bool) {
	if q.head >= len(q.items) {
		return 0, false
	}
	v := q.items[q.head]
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

func (q *queue) len() int {
	return len(q.items) - q.head
}

func (q *queue) drain() []int64 {
	out := make([]int64, q.len())
	copy(out, q.items[q.head:])
	q.items = q.items[:0]
	q.head = 0
	return out
}

func (q *queue) clone() queue {
	items := make([]int64, q.len())
	copy(items, q.items[q.head:])
	return queue{items: items}
}
