// Package batch runs one task per input file on a bounded worker pool.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Result is the outcome of one task.
type Result[T any] struct {
	Index int    // position of the item in the input
	Item  string // the input item, usually a file path
	Value T
	Err   error
}

// PanicError is returned for a task that panicked.
type PanicError struct {
	Item  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Item, e.Value)
}

// DefaultWorkers leaves one core for the rest of the system.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// Run processes items with at most workers concurrent calls of fn and
// streams the results in completion order. The channel is closed once every
// dispatched task has finished. A panicking task yields a *PanicError result
// and does not affect the other tasks. Cancelling ctx stops dispatch;
// undispatched items are reported with ctx.Err(). Callers must drain the
// channel until it is closed; a consumer that stops early leaves workers
// blocked.
func Run[T any](ctx context.Context, items []string, workers int, fn func(ctx context.Context, item string) (T, error)) <-chan Result[T] {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > len(items) {
		workers = max(len(items), 1)
	}

	type job struct {
		index int
		item  string
	}
	jobs := make(chan job)
	out := make(chan Result[T], workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out <- runOne(ctx, j.index, j.item, fn)
			}
		}()
	}

	go func() {
		defer func() {
			wg.Wait()
			close(out)
		}()
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{index: i, item: item}:
			case <-ctx.Done():
				for k := i; k < len(items); k++ {
					out <- Result[T]{Index: k, Item: items[k], Err: ctx.Err()}
				}
				return
			}
		}
	}()

	return out
}

func runOne[T any](ctx context.Context, index int, item string, fn func(context.Context, string) (T, error)) (res Result[T]) {
	res = Result[T]{Index: index, Item: item}
	defer func() {
		if r := recover(); r != nil {
			res.Err = &PanicError{Item: item, Value: r, Stack: debug.Stack()}
		}
	}()
	res.Value, res.Err = fn(ctx, item)
	return res
}
