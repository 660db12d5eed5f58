package importer

// Batch is a sealed group of rows handed from one stage to the next.
// Stages return new batches instead of mutating the one they receive.
type Batch[T any] struct {
	Seq   int
	Rows  []T
	Final bool
}

func (b Batch[T]) Len() int { return len(b.Rows) }

// Accumulator buffers rows until size is reached.
type Accumulator[T any] struct {
	size int
	seq  int
	buf  []T
}

func NewAccumulator[T any](size int) *Accumulator[T] {
	if size < 1 {
		size = 1
	}
	return &Accumulator[T]{size: size}
}

// Add buffers row and reports whether a batch is ready to drain. The buffer
// grows with the rows actually read, not with the threshold.
func (a *Accumulator[T]) Add(row T) bool {
	a.buf = append(a.buf, row)
	return len(a.buf) >= a.size
}

// Drain seals the buffered rows into a batch and starts a fresh buffer.
func (a *Accumulator[T]) Drain() Batch[T] {
	a.seq++
	b := Batch[T]{Seq: a.seq, Rows: a.buf}
	a.buf = nil
	return b
}

// Remainder drains what is left at end of input as the final batch.
// It reports false when nothing is buffered.
func (a *Accumulator[T]) Remainder() (Batch[T], bool) {
	if len(a.buf) == 0 {
		return Batch[T]{}, false
	}
	b := a.Drain()
	b.Final = true
	return b, true
}
