// Package buffer provides the double buffer behind every per-agent attribute:
// a read slot frozen for the whole parallel phase of a step, and a write slot
// only the owning agent fills.
package buffer

// Buffer holds n (read, write) pairs of T.
//
// During a step, any goroutine may call Read on any slot, and the goroutine
// updating agent i is the only one calling Write(i, ...). Commit and Rollback
// must only run once every writer has returned; the scheduler guarantees it
// with a barrier. Two writers on the same slot within one step is a caller
// bug, the last write wins.
type Buffer[T any] struct {
	read  []T
	write []T
}

// New returns a buffer of n zero-valued slots.
func New[T any](n int) *Buffer[T] {
	return &Buffer[T]{
		read:  make([]T, n),
		write: make([]T, n),
	}
}

// Len returns the number of slots.
func (b *Buffer[T]) Len() int { return len(b.read) }

// Read returns the committed value of slot i.
func (b *Buffer[T]) Read(i int) T { return b.read[i] }

// Write stages v as the next value of slot i.
func (b *Buffer[T]) Write(i int, v T) { b.write[i] = v }

// Pending returns the staged value of slot i.
func (b *Buffer[T]) Pending(i int) T { return b.write[i] }

// Init sets both slots of i. Only for population setup, before the first
// commit.
func (b *Buffer[T]) Init(i int, v T) {
	b.read[i] = v
	b.write[i] = v
}

// Commit publishes every staged value: read := write. Afterwards both slots
// hold the same value, so committing again without new writes changes
// nothing.
func (b *Buffer[T]) Commit() {
	copy(b.read, b.write)
}

// Rollback discards staged values: write := read.
func (b *Buffer[T]) Rollback() {
	copy(b.write, b.read)
}

// Snapshot returns a copy of the committed values.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, len(b.read))
	copy(out, b.read)
	return out
}

// View exposes the committed values without copying. The slice must be
// treated as read-only and is only valid until the next Commit.
func (b *Buffer[T]) View() []T { return b.read }
