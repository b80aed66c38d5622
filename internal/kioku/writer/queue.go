// Package writer gives each store a single owning goroutine.
//
// A repository reads and writes its document only from closures passed to
// Queue.Do. Because one goroutine runs every closure in arrival order, reads
// see a consistent document and concurrent writers
// (the interaction pipeline, the compaction loop, CLI inspection) cannot
// interleave read-modify-write cycles.
//
// A closure must not call Do on the same queue; it would wait on itself.
package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("writer: queue closed")

type op struct {
	fn     func() error
	result chan error
}

// Queue runs submitted closures one at a time on a dedicated goroutine.
type Queue struct {
	name string
	ops  chan op
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// Start launches the owning goroutine. name identifies the store in errors.
func Start(name string) *Queue {
	q := &Queue{
		name: name,
		ops:  make(chan op),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		select {
		case o := <-q.ops:
			o.result <- o.fn()
		case <-q.quit:
			return
		}
	}
}

// Do runs fn on the queue goroutine and returns its error. If ctx ends
// after fn was handed over, fn still runs to completion; only the caller
// stops waiting.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	o := op{fn: fn, result: make(chan error, 1)}
	select {
	case q.ops <- o:
	case <-q.done:
		return fmt.Errorf("%w: %s", ErrClosed, q.name)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-o.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the goroutine after the closure in flight (if any) returns.
// It is safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.quit) })
	<-q.done
}
