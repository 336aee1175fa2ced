//go:build debug

package channel

// New creates a channel.
// Debug builds ignore the size so ordering problems surface as deadlocks.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
