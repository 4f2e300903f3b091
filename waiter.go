package rethinkdb

import "sync/atomic"

// waiter is the per-token registry entry: a single-producer (the
// reader goroutine) single-consumer (whoever owns the WaiterHandle)
// channel of classified responses, the originating term kept only
// for error annotation, and the bookkeeping needed to send a STOP
// exactly once if the consumer abandons the stream early.
type waiter struct {
	token uint64
	term  Term
	core  *core

	// ch carries classified responses from the reader goroutine to
	// the consumer. Buffer size 1: the reader blocks delivering the
	// next response until the previous one has been read, which is
	// the backpressure mechanism spec.md §3 describes.
	ch chan Response

	terminal atomic.Bool
	closed   atomic.Bool
}

func newWaiter(core *core, token uint64, term Term) *waiter {
	return &waiter{
		token: token,
		term:  term,
		core:  core,
		ch:    make(chan Response, 1),
	}
}

// deliverTerminal is called by the reader goroutine exactly once,
// after it has sent a terminal Response on ch, to remove the waiter
// from the registry. The reader sets the terminal flag before that
// send (and it is set again here), so a concurrent close(false) from
// an abandoning cursor sees the flag set and skips sending STOP.
func (w *waiter) deliverTerminal() {
	w.terminal.Store(true)
	w.close(true)
}

// close removes the waiter from the registry exactly once. fromReader
// is true when called by the connection's reader goroutine after
// observing a terminal response (no STOP needed); it is false when
// called because a consumer dropped its Cursor/WaiterHandle before
// the stream ended, in which case a STOP is sent unless the stream
// had already, unbeknownst to the consumer, terminated.
func (w *waiter) close(fromReader bool) {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.core.removeWaiter(w.token)
	if !fromReader && !w.terminal.Load() {
		w.core.sendControl(w.token, queryTypeStop)
	}
}
