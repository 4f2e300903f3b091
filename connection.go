package rethinkdb

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go4org/hashtriemap"
	"github.com/gravitational/trace"
)

// DefaultPort is the RethinkDB wire protocol's conventional port.
const DefaultPort = 28015

// core owns everything a Connection's aliases (see Use) share: the
// socket, the write-serialization latch and its poison slot, the
// token counter, and the token -> waiter registry. It is never
// exposed directly; callers only ever see *Connection.
type core struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	writeMu sync.Mutex
	poison  error

	nextToken atomic.Uint64
	waiters   hashtriemap.HashTrieMap[uint64, *waiter]

	readerDone chan struct{}
}

// Connection is a handle onto a shared core. Use creates additional
// aliases over the same underlying socket with a different default
// database tag; closing any alias closes the shared core.
type Connection struct {
	core *core
	db   string
}

// ConnectOption configures Connect. The set is intentionally small:
// this package does not load configuration from files or environment
// variables (that is an application concern), it only exposes a
// programmatic options surface over the constructor, the same way
// the teacher's own client constructors take functional-option-shaped
// parameters.
type ConnectOption func(*connectSettings)

type connectSettings struct {
	dialTimeout time.Duration
	logger      *slog.Logger
}

// WithDialTimeout bounds how long Connect waits to establish the TCP
// connection. The handshake that follows is not covered by it.
func WithDialTimeout(d time.Duration) ConnectOption {
	return func(s *connectSettings) { s.dialTimeout = d }
}

// WithLogger injects a structured logger. Connect defaults to a
// slog.Logger writing to os.Stderr at Info level.
func WithLogger(logger *slog.Logger) ConnectOption {
	return func(s *connectSettings) { s.logger = logger }
}

// Connect dials host:port, performs the handshake (sending auth as
// the pre-shared secret, or none if empty), and starts the reader
// goroutine. It resolves both IPv4 and IPv6 addresses via the
// standard net.Dialer and enables TCP_NODELAY once connected.
func Connect(host string, port int, auth string, opts ...ConnectOption) (*Connection, error) {
	settings := connectSettings{
		dialTimeout: 10 * time.Second,
		logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(&settings)
	}

	logger := settings.logger.With("component", "rethinkdb-connection", "host", host, "port", port)

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	ctx, cancel := context.WithTimeout(context.Background(), settings.dialTimeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newConnectionError(err, "dial %s", addr)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			logger.Warn("failed to enable TCP_NODELAY", "error", err)
		}
	}

	reader := bufio.NewReader(conn)
	if err := performHandshake(conn, reader, auth); err != nil {
		conn.Close()
		return nil, err
	}

	c := &core{
		conn:       conn,
		reader:     reader,
		logger:     logger,
		readerDone: make(chan struct{}),
	}
	// Tokens start at 1 (spec.md §3); nextToken.Add(1) on the first
	// allocation returns 1 because the atomic's zero value is 0.

	go c.readLoop()

	logger.Info("connected")
	return &Connection{core: c}, nil
}

// Use returns a handle aliasing the same underlying connection but
// carrying a different default database tag for the (out-of-scope)
// query builder to consult. Closing either alias closes the shared
// connection.
func (c *Connection) Use(database string) *Connection {
	return &Connection{core: c.core, db: database}
}

// Database returns the default database tag this handle carries.
func (c *Connection) Database() string { return c.db }

// Close issues NOREPLY_WAIT to drain outstanding noreply queries,
// then poisons the connection and tears down the socket. It is
// idempotent: a second Close observes an already-poisoned write latch
// and still proceeds to (harmlessly re-)close the socket.
func (c *Connection) Close() error {
	_ = c.NoReplyWait()
	c.core.fail(newConnectionError(nil, "connection closed"))
	<-c.core.readerDone
	return nil
}

// NoReplyWait submits a NOREPLY_WAIT barrier query — itself not a
// noreply query — and blocks until the server reports that every
// previously issued noreply query has committed.
func (c *Connection) NoReplyWait() error {
	handle, err := c.RunQuery(Query{queryTypeNoReplyWait}, nil)
	if err != nil {
		return err
	}
	cursor := MakeCursor(handle)
	defer cursor.Close()
	_, _, err = cursor.Next()
	return err
}

// readLoop is the connection's single dedicated reader goroutine. It
// must never be invoked from a submit path — reentrancy on the read
// half of the socket is not supported.
func (c *core) readLoop() {
	defer close(c.readerDone)

	for {
		token, payload, err := readFrame(c.reader)
		if err != nil {
			c.fail(err)
			return
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(payload, &raw); err != nil {
			c.fail(newReadError(err))
			return
		}

		w, ok := c.waiters.Load(token)
		if !ok {
			// Race between a locally issued STOP and a final server
			// batch for an already-deregistered token: drop it.
			c.logger.Debug("dropped response for unknown token", "token", token)
			continue
		}

		resp := classify(raw, w.term)
		if resp.Terminal() {
			// Set before the send, so a consumer that reads this
			// response and then closes its cursor never sends STOP.
			w.terminal.Store(true)
			w.ch <- resp
			w.deliverTerminal()
		} else {
			w.ch <- resp
		}
	}
}

// registerWaiter installs a fresh waiter for token. Per spec.md §3,
// at most one waiter exists for a token at any time; callers must
// allocate the token via nextToken immediately before this.
func (c *core) registerWaiter(token uint64, term Term) *waiter {
	w := newWaiter(c, token, term)
	c.waiters.Store(token, w)
	return w
}

func (c *core) removeWaiter(token uint64) {
	c.waiters.Delete(token)
}

// writeFrame serializes one frame write under the write latch. The
// latch is held across exactly this one write and never across an
// unrelated await. If the latch is already poisoned, the stored error
// is returned immediately and nothing is written.
func (c *core) writeFrame(token uint64, payload []byte) error {
	frame := encodeFrame(token, payload)

	c.writeMu.Lock()
	if c.poison != nil {
		err := c.poison
		c.writeMu.Unlock()
		return err
	}
	_, err := c.conn.Write(frame)
	if err != nil {
		wrapped := newConnectionError(err, "write frame")
		c.poison = wrapped
		c.writeMu.Unlock()
		c.teardown()
		return wrapped
	}
	c.writeMu.Unlock()
	return nil
}

func (c *core) sendControl(token uint64, queryType int) error {
	payload, err := json.Marshal([]int{queryType})
	if err != nil {
		return trace.Wrap(err, "encode control frame")
	}
	return c.writeFrame(token, payload)
}

// fail poisons the connection (if not already poisoned), tears down
// the socket, and clears every registered waiter so that any consumer
// blocked reading from a waiter channel observes the connection's
// death instead of hanging forever.
func (c *core) fail(err error) {
	c.writeMu.Lock()
	first := c.poison == nil
	if first {
		c.poison = err
	}
	c.writeMu.Unlock()

	c.teardown()

	if !first {
		return
	}

	c.logger.Warn("connection failed", "error", err)

	var tokens []uint64
	c.waiters.Range(func(token uint64, _ *waiter) bool {
		tokens = append(tokens, token)
		return true
	})
	for _, token := range tokens {
		if w, ok := c.waiters.Load(token); ok {
			c.waiters.Delete(token)
			close(w.ch)
		}
	}
}

func (c *core) teardown() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// currentError returns the connection's stored poison error, used to
// annotate a cursor observing a closed waiter channel.
func (c *core) currentError() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.poison != nil {
		return c.poison
	}
	return newConnectionError(io.EOF, "connection closed")
}
