package rethinkdb

import (
	"iter"
	"sync"
)

// cursorCore holds the untyped, mutable state shared by a Cursor and
// every derived Cursor produced by Map over it: the buffered but
// undelivered datums, the exhaustion flag, a sticky error, and
// whether a CONTINUE must be sent before the next channel read. A
// single mutex makes Next/NextBatch linearizable per underlying
// stream, matching spec.md §4.5's "single-owner lock" requirement.
type cursorCore struct {
	mu sync.Mutex

	w *waiter // nil for a noreply query's synthesized cursor

	buffer          []Datum
	exhausted       bool
	err             error
	pendingContinue bool
	closed          bool
}

func newCursorCore(h *WaiterHandle) *cursorCore {
	if h.w == nil {
		// noreply: synthesize Single(nil) with nothing left to fetch.
		return &cursorCore{buffer: []Datum{nil}, exhausted: true}
	}
	return &cursorCore{w: h.w}
}

// fetchLocked pulls exactly one more response off the waiter channel,
// issuing a CONTINUE first if the previous batch we handed the buffer
// was partial. Caller must hold cc.mu.
func (cc *cursorCore) fetchLocked() error {
	if cc.w == nil {
		cc.exhausted = true
		return nil
	}

	if cc.pendingContinue {
		cc.pendingContinue = false
		if err := cc.w.core.sendControl(cc.w.token, queryTypeContinue); err != nil {
			return err
		}
	}

	resp, ok := <-cc.w.ch
	if !ok {
		return cc.w.core.currentError()
	}

	switch resp.Kind {
	case KindError:
		return resp.Err
	case KindSingle:
		cc.buffer = append(cc.buffer, resp.Datum)
		cc.exhausted = true
	case KindBatch:
		cc.buffer = append(cc.buffer, resp.Batch...)
		if resp.Partial {
			cc.pendingContinue = true
		} else {
			cc.exhausted = true
		}
	}
	return nil
}

// close sends STOP for the underlying token, unless the stream has
// already terminated, and is idempotent.
func (cc *cursorCore) close() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed || cc.w == nil {
		cc.closed = true
		return nil
	}
	cc.closed = true
	cc.w.close(false)
	return nil
}

// Cursor is a consumer-side, batched pull over a WaiterHandle's
// response stream: next/nextBatch lazily materialize datums, issuing
// exactly one CONTINUE per partial batch and a STOP if dropped before
// exhaustion. A is the transform function's result type; MakeCursor
// builds a Cursor[Datum] with the identity transform, and Map
// post-composes a further transform without re-reading the stream.
type Cursor[A any] struct {
	core      *cursorCore
	transform func(Datum) (A, error)
}

// MakeCursor wraps a WaiterHandle in a Cursor over raw Datums.
func MakeCursor(h *WaiterHandle) *Cursor[Datum] {
	return &Cursor[Datum]{
		core:      newCursorCore(h),
		transform: func(d Datum) (Datum, error) { return d, nil },
	}
}

// Map builds a new Cursor that shares c's underlying stream state but
// post-composes f onto c's own transform. It is a view, not a copy:
// advancing the returned cursor advances c's stream too, so only one
// of the two should be driven after Map is called.
func Map[A, B any](c *Cursor[A], f func(A) (B, error)) *Cursor[B] {
	return &Cursor[B]{
		core: c.core,
		transform: func(d Datum) (B, error) {
			var zero B
			a, err := c.transform(d)
			if err != nil {
				return zero, err
			}
			return f(a)
		},
	}
}

// Next returns the next element, or ok=false once the stream is
// exhausted. A sticky error is re-raised on every subsequent call.
func (c *Cursor[A]) Next() (value A, ok bool, err error) {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()

	var zero A
	for {
		if c.core.err != nil {
			return zero, false, c.core.err
		}
		if len(c.core.buffer) > 0 {
			d := c.core.buffer[0]
			c.core.buffer = c.core.buffer[1:]
			v, err := c.transform(d)
			if err != nil {
				c.core.err = err
				return zero, false, err
			}
			return v, true, nil
		}
		if c.core.exhausted {
			return zero, false, nil
		}
		if err := c.core.fetchLocked(); err != nil {
			c.core.err = err
			return zero, false, err
		}
	}
}

// NextBatch returns everything currently buffered, first fetching
// from the wire while the buffer is empty and the stream isn't
// exhausted (a partial batch may carry no datums). The result is
// empty only once the stream is exhausted. It never pre-fetches a
// further batch on top of a non-empty one it just received.
func (c *Cursor[A]) NextBatch() ([]A, error) {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()

	if c.core.err != nil {
		return nil, c.core.err
	}
	for len(c.core.buffer) == 0 && !c.core.exhausted {
		if err := c.core.fetchLocked(); err != nil {
			c.core.err = err
			return nil, err
		}
	}

	out := make([]A, 0, len(c.core.buffer))
	for _, d := range c.core.buffer {
		v, err := c.transform(d)
		if err != nil {
			c.core.err = err
			return nil, err
		}
		out = append(out, v)
	}
	c.core.buffer = c.core.buffer[:0]
	return out, nil
}

// Collect returns a lazy iterator over every remaining element: it
// calls NextBatch on demand as the iteration advances rather than
// draining the whole stream up front. The cursor is closed
// automatically once the sequence is exhausted, errors, or the
// consumer stops iterating early.
func (c *Cursor[A]) Collect() iter.Seq2[A, error] {
	return func(yield func(A, error) bool) {
		defer c.Close()
		for {
			batch, err := c.NextBatch()
			if err != nil {
				var zero A
				yield(zero, err)
				return
			}
			if len(batch) == 0 {
				return
			}
			for _, v := range batch {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

// CollectStrict fully drains the cursor into a slice before
// returning, closing the cursor in the process.
func (c *Cursor[A]) CollectStrict() ([]A, error) {
	defer c.Close()
	var all []A
	for {
		batch, err := c.NextBatch()
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		all = append(all, batch...)
	}
}

// Each applies fn to every element until the cursor is exhausted or
// fn returns an error, closing the cursor in either case.
func (c *Cursor[A]) Each(fn func(A) error) error {
	defer c.Close()
	for {
		batch, err := c.NextBatch()
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, v := range batch {
			if err := fn(v); err != nil {
				return err
			}
		}
	}
}

// Close abandons the cursor: if the stream has not yet terminated, it
// sends exactly one STOP for the underlying token. Calling Close on
// an already-exhausted or already-closed cursor is a no-op. Each of
// Collect/CollectStrict/Each calls Close for you; callers driving
// Next/NextBatch directly should defer it themselves.
func (c *Cursor[A]) Close() error {
	return c.core.close()
}
