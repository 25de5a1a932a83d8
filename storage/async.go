package storage

import "context"

// Result is the single completion signal of an operation started with Async.
type Result[T any] struct {
	Value T
	Err   error
}

// Async runs op on its own goroutine and delivers exactly one Result on the
// returned channel, which is then closed. Canceling ctx is passed through
// to op; Async itself never abandons a running operation.
func Async[T any](ctx context.Context, op func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		v, err := op(ctx)
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}
