package rethinkdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Wire protocol constants, straight off the wire: a handshake magic
// number identifying the protocol version, and the wire sub-protocol
// used for query/response payloads. Query type tags are the first
// element of every request/control array.
const (
	protocolVersionV0_4 uint32 = 0x400c2d20
	wireProtocolJSON    uint32 = 0x7e6970c7

	queryTypeStart       = 1
	queryTypeContinue    = 2
	queryTypeStop        = 3
	queryTypeNoReplyWait = 4
)

const handshakeSuccess = "SUCCESS"

// frameHeaderSize is the fixed 12-byte token+length prefix shared by
// request and response frames.
const frameHeaderSize = 8 + 4

// encodeFrame lays out a single contiguous [token][len][payload] frame
// so that a caller can hand it to one net.Conn.Write call — frames
// must never be interleaved on the wire.
func encodeFrame(token uint64, payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint64(buf[0:8], token)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	copy(buf[12:], payload)
	return buf
}

// readFrame reads one [token][len][payload] response frame. A short
// read (EOF mid-frame) is always fatal to the connection.
func readFrame(r io.Reader) (token uint64, payload []byte, err error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, newConnectionError(err, "read response frame header")
	}
	token = binary.LittleEndian.Uint64(header[0:8])
	size := binary.LittleEndian.Uint32(header[8:12])
	payload = make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, newConnectionError(err, "read response frame payload")
		}
	}
	return token, payload, nil
}

// performHandshake runs the one-time client->server handshake: magic
// number, optional pre-shared secret, wire protocol id, then reads the
// server's NUL-terminated reply off r. Anything other than "SUCCESS"
// fails the connection outright.
//
// r must be the same buffered reader the connection's reader loop
// will keep using afterwards — handshake and frame reads share one
// bufio.Reader so a pipelined byte the server sends right after its
// reply is never stranded in a throwaway buffer.
func performHandshake(conn net.Conn, r *bufio.Reader, auth string) error {
	authBytes := []byte(auth)

	buf := make([]byte, 0, 4+4+len(authBytes)+4)
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], protocolVersionV0_4)
	buf = append(buf, tmp[:]...)

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(authBytes)))
	buf = append(buf, tmp[:]...)

	buf = append(buf, authBytes...)

	binary.LittleEndian.PutUint32(tmp[:], wireProtocolJSON)
	buf = append(buf, tmp[:]...)

	if _, err := conn.Write(buf); err != nil {
		return newConnectionError(err, "send handshake")
	}

	reply, err := readHandshakeReply(r)
	if err != nil {
		return err
	}

	if reply != handshakeSuccess {
		return newConnectionError(nil, "%s", reply)
	}
	return nil
}

// readHandshakeReply reads the server's NUL-terminated ASCII reply
// following the handshake request.
func readHandshakeReply(r *bufio.Reader) (string, error) {
	line, err := r.ReadString(0)
	if err != nil {
		return "", newConnectionError(err, "read handshake reply")
	}
	return strings.TrimSuffix(line, "\x00"), nil
}
