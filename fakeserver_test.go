package rethinkdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
)

// fakeServer is a minimal stand-in for the real database server: it
// completes the handshake the same way performHandshake expects, then
// hands the raw connection to a per-test handler that drives whatever
// scripted request/response sequence that test needs.
type fakeServer struct {
	ln net.Listener
}

func startFakeServer(t *testing.T, handshakeReply string, handle func(conn net.Conn, r *bufio.Reader)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fs := &fakeServer{ln: ln}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		r := bufio.NewReader(conn)
		if err := fakeHandshake(conn, r, handshakeReply); err != nil {
			conn.Close()
			return
		}
		if handle != nil {
			handle(conn, r)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return fs
}

func (fs *fakeServer) addr() (string, int) {
	tcpAddr := fs.ln.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), tcpAddr.Port
}

// fakeHandshake reads a real client handshake (magic, auth, wire
// protocol id) and writes back the given NUL-terminated reply.
func fakeHandshake(conn net.Conn, r *bufio.Reader, reply string) error {
	var word [4]byte

	if _, err := io.ReadFull(r, word[:]); err != nil { // magic
		return err
	}
	if _, err := io.ReadFull(r, word[:]); err != nil { // authlen
		return err
	}
	authLen := binary.LittleEndian.Uint32(word[:])
	if authLen > 0 {
		authBuf := make([]byte, authLen)
		if _, err := io.ReadFull(r, authBuf); err != nil {
			return err
		}
	}
	if _, err := io.ReadFull(r, word[:]); err != nil { // wire protocol id
		return err
	}

	_, err := conn.Write(append([]byte(reply), 0))
	return err
}

func writeServerFrame(t *testing.T, conn net.Conn, token uint64, payload []byte) {
	t.Helper()
	if _, err := conn.Write(encodeFrame(token, payload)); err != nil {
		t.Fatalf("write server frame: %v", err)
	}
}

// dialRaw opens a bare TCP connection without running the handshake,
// for tests that drive performHandshake themselves.
func dialRaw(host string, port int) (net.Conn, error) {
	return net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}
