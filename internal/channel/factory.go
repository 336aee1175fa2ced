//go:build !debug

package channel

// New creates a channel with the given buffer size.
// Production builds honour the size.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
