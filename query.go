package rethinkdb

import "github.com/gravitational/trace"

// Query is the already-built [queryType, term, opts] JSON array the
// (out-of-scope) query builder produced. The core only ever inspects
// opts (element 2) for a `noreply` flag; everything else is opaque.
type Query []interface{}

// NewStartQuery builds a START query array around a term and its
// global options, the shape every user-level query takes on the wire.
func NewStartQuery(term interface{}, opts map[string]interface{}) Query {
	return Query{queryTypeStart, term, opts}
}

func (q Query) isNoReply() bool {
	if len(q) < 3 {
		return false
	}
	opts, ok := q[2].(map[string]interface{})
	if !ok {
		return false
	}
	v, ok := opts["noreply"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// WaiterHandle is what RunQuery hands back: either a live waiter
// registered in the connection's token registry, or — for a noreply
// query — nothing at all, since the core never registers a waiter for
// those and synthesizes a null result locally.
type WaiterHandle struct {
	core *core
	w    *waiter
}

// RunQuery allocates a fresh token, sends query on the wire, and
// returns a handle to its response stream. term is kept only so that
// a later DbError can annotate the offending subterm; it is never
// sent to the server.
//
// If query is a noreply query, no waiter is registered: the frame is
// sent and the returned handle's Cursor synthesizes Single(nil)
// immediately without touching the network again.
func (c *Connection) RunQuery(query Query, term Term) (*WaiterHandle, error) {
	core := c.core
	token := core.nextToken.Add(1)

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, trace.Wrap(err, "encode query")
	}

	if query.isNoReply() {
		if err := core.writeFrame(token, payload); err != nil {
			return nil, err
		}
		return &WaiterHandle{core: core}, nil
	}

	w := core.registerWaiter(token, term)
	if err := core.writeFrame(token, payload); err != nil {
		core.removeWaiter(token)
		return nil, err
	}
	return &WaiterHandle{core: core, w: w}, nil
}

// Token reports the token assigned to this query, for diagnostics.
func (h *WaiterHandle) Token() uint64 {
	if h.w == nil {
		return 0
	}
	return h.w.token
}
