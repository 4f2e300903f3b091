package rethinkdb

import (
	"bufio"
	"bytes"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"t":1,"r":[1]}`)
	frame := encodeFrame(42, payload)

	if len(frame) != frameHeaderSize+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), frameHeaderSize+len(payload))
	}

	token, got, err := readFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if token != 42 {
		t.Fatalf("token = %d, want 42", token)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestReadFrameShortHeaderIsFatal(t *testing.T) {
	_, _, err := readFrame(bytes.NewReader([]byte{1, 2, 3}))
	if err == nil {
		t.Fatal("expected error on truncated header")
	}
}

func TestPerformHandshakeSuccess(t *testing.T) {
	fs := startFakeServer(t, handshakeSuccess, nil)
	host, port := fs.addr()

	conn, err := dialRaw(host, port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	if err := performHandshake(conn, r, "secret"); err != nil {
		t.Fatalf("performHandshake: %v", err)
	}
}

func TestPerformHandshakeRejection(t *testing.T) {
	fs := startFakeServer(t, "ERROR: bad protocol version", nil)
	host, port := fs.addr()

	conn, err := dialRaw(host, port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	err = performHandshake(conn, r, "")
	if err == nil {
		t.Fatal("expected handshake rejection error")
	}
	if _, ok := err.(*ConnectionError); !ok {
		t.Fatalf("err = %T, want *ConnectionError", err)
	}
}
