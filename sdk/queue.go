package sdk

import (
	"fmt"
	"sync"
)

type queueResult struct {
	value any
	err   error
}

// queue serializes work onto a single goroutine.
//
// Listener callbacks and submission completions arrive from transport read
// loops, timers and HTTP goroutines; funneling them through one queue keeps
// their relative order stable and spares embedders from locking in their
// callbacks.
type queue struct {
	once sync.Once
	q    chan func()
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = 256
	}
	d := &queue{
		q: make(chan func(), size),
	}
	d.once.Do(func() {
		go func() {
			for fn := range d.q {
				if fn != nil {
					fn()
				}
			}
		}()
	})
	return d
}

func (d *queue) do(fn func()) error {
	if d == nil {
		return fmt.Errorf("queue not initialized")
	}
	if fn == nil {
		return nil
	}
	d.q <- fn
	return nil
}

func (d *queue) call(fn func() (any, error)) (any, error) {
	if d == nil {
		return nil, fmt.Errorf("queue not initialized")
	}
	if fn == nil {
		return nil, nil
	}
	done := make(chan queueResult, 1)
	d.q <- func() {
		value, err := fn()
		done <- queueResult{value: value, err: err}
	}
	res := <-done
	return res.value, res.err
}
