package rethinkdb

import (
	"bufio"
	"net"
	"testing"
	"time"
)

func TestConnectAndClose(t *testing.T) {
	fs := startFakeServer(t, handshakeSuccess, func(conn net.Conn, r *bufio.Reader) {
		// NOREPLY_WAIT from Close's internal NoReplyWait call.
		token, _, err := readFrame(r)
		if err != nil {
			return
		}
		writeServerFrame(t, conn, token, []byte(`{"t":4}`))
	})
	host, port := fs.addr()

	conn, err := Connect(host, port, "secret")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConnectHandshakeRejected(t *testing.T) {
	fs := startFakeServer(t, "ERROR: unsupported protocol", nil)
	host, port := fs.addr()

	_, err := Connect(host, port, "")
	if err == nil {
		t.Fatal("expected Connect to fail on handshake rejection")
	}
}

func TestRunQueryAtomResponse(t *testing.T) {
	fs := startFakeServer(t, handshakeSuccess, func(conn net.Conn, r *bufio.Reader) {
		token, _, err := readFrame(r)
		if err != nil {
			return
		}
		writeServerFrame(t, conn, token, []byte(`{"t":1,"r":[42]}`))
	})
	host, port := fs.addr()

	conn, err := Connect(host, port, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.core.teardown()

	term := []interface{}{1, 42}
	handle, err := conn.RunQuery(NewStartQuery(term, nil), term)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}

	cursor := MakeCursor(handle)
	defer cursor.Close()

	value, ok, err := cursor.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected a value")
	}
	if value != float64(42) {
		t.Fatalf("value = %v, want 42", value)
	}

	_, ok, err = cursor.Next()
	if err != nil {
		t.Fatalf("Next after exhaustion: %v", err)
	}
	if ok {
		t.Fatal("expected exhaustion after a single atom")
	}
}

func TestRunQueryRuntimeErrorWithBacktrace(t *testing.T) {
	fs := startFakeServer(t, handshakeSuccess, func(conn net.Conn, r *bufio.Reader) {
		token, _, err := readFrame(r)
		if err != nil {
			return
		}
		writeServerFrame(t, conn, token, []byte(`{"t":18,"r":["No such key"],"b":[0]}`))
	})
	host, port := fs.addr()

	conn, err := Connect(host, port, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.core.teardown()

	term := []interface{}{15, []interface{}{"missing"}, map[string]interface{}{}}
	handle, err := conn.RunQuery(NewStartQuery(term, nil), term)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	cursor := MakeCursor(handle)
	defer cursor.Close()

	_, _, err = cursor.Next()
	if err == nil {
		t.Fatal("expected a DbError")
	}
	dbErr, ok := err.(*DbError)
	if !ok {
		t.Fatalf("err = %T, want *DbError", err)
	}
	if dbErr.Code != ErrRuntime {
		t.Fatalf("code = %v, want ErrRuntime", dbErr.Code)
	}
	if len(dbErr.Backtrace) != 1 {
		t.Fatalf("backtrace = %v, want one frame", dbErr.Backtrace)
	}
}

func TestNoReplyQuerySynthesizesLocalSingle(t *testing.T) {
	serverSawFrame := make(chan struct{}, 1)
	fs := startFakeServer(t, handshakeSuccess, func(conn net.Conn, r *bufio.Reader) {
		if _, _, err := readFrame(r); err == nil {
			serverSawFrame <- struct{}{}
		}
	})
	host, port := fs.addr()

	conn, err := Connect(host, port, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.core.teardown()

	term := []interface{}{1, 1}
	query := Query{queryTypeStart, term, map[string]interface{}{"noreply": true}}

	handle, err := conn.RunQuery(query, term)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if handle.w != nil {
		t.Fatal("expected no waiter registered for a noreply query")
	}

	select {
	case <-serverSawFrame:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the noreply frame on the wire")
	}

	cursor := MakeCursor(handle)
	defer cursor.Close()

	value, ok, err := cursor.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok || value != nil {
		t.Fatalf("value = %v, ok = %v, want nil, true", value, ok)
	}
}
