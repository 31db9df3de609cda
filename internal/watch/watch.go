// Package watch is a single-slot broadcast: one sender publishes values,
// any number of receivers observe the latest one and are notified of change.
package watch

import (
	"errors"
	"sync"
)

// ErrClosed is returned once the sender has been closed and the receiver
// has seen the last value.
var ErrClosed = errors.New("watch: sender closed")

// state is shared between a Sender and its Receivers.
type state[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	closed  bool
	notify  chan struct{} // closed and replaced on every Send or Close
}

// Sender publishes values. Last value wins.
type Sender[T any] struct {
	s *state[T]
}

// Receiver observes the latest value of a Sender.
type Receiver[T any] struct {
	s    *state[T]
	seen uint64
}

// New creates a channel holding initial.
// The returned receiver has already seen initial.
func New[T any](initial T) (*Sender[T], *Receiver[T]) {
	s := &state[T]{value: initial, notify: make(chan struct{})}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// Send replaces the value and wakes every receiver.
// Sending after Close is a no-op.
func (tx *Sender[T]) Send(v T) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	if tx.s.closed {
		return
	}

	tx.s.value = v
	tx.s.version++
	close(tx.s.notify)
	tx.s.notify = make(chan struct{})
}

// Close marks the sender as gone and wakes every receiver.
func (tx *Sender[T]) Close() {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	if tx.s.closed {
		return
	}

	tx.s.closed = true
	close(tx.s.notify)
}

// Subscribe returns a new receiver that has seen the current value.
func (tx *Sender[T]) Subscribe() *Receiver[T] {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()

	return &Receiver[T]{s: tx.s, seen: tx.s.version}
}

// Changed returns a channel that is closed when there is a value this
// receiver has not marked seen, or when the sender closes. It is meant for
// use in a select; call Update after it fires.
func (rx *Receiver[T]) Changed() <-chan struct{} {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()

	if rx.s.version != rx.seen {
		return closedChan
	}

	return rx.s.notify
}

// Update marks the current value seen and returns it. It returns ErrClosed
// when the sender is closed and no unseen value is left.
func (rx *Receiver[T]) Update() (T, error) {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()

	if rx.s.closed && rx.s.version == rx.seen {
		var zero T
		return zero, ErrClosed
	}

	rx.seen = rx.s.version

	return rx.s.value, nil
}

// Borrow returns the current value without marking it seen.
func (rx *Receiver[T]) Borrow() T {
	rx.s.mu.RLock()
	defer rx.s.mu.RUnlock()

	return rx.s.value
}

// Clone returns an independent receiver with the same seen state.
func (rx *Receiver[T]) Clone() *Receiver[T] {
	return &Receiver[T]{s: rx.s, seen: rx.seen}
}

// closedChan is returned by Changed when a value is already pending.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
