// Package frame implements the length-prefixed message transport used by
// every connection in this system: a 4-byte big-endian length header
// followed by a JSON body, one request and one reply per connection, no
// pipelining.
package frame

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single frame so a malformed or hostile length
// header can't make a handler allocate unbounded memory.
const MaxMessageSize = 1 << 20 // 1MB; every message in this protocol is tiny

// Send writes obj as a single length-prefixed JSON frame to w.
func Send(w io.Writer, obj any) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("frame too large: %d bytes", len(body))
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// Recv reads a single length-prefixed JSON frame from r and decodes it into
// out, which must be a pointer.
func Recv(r io.Reader, out any) error {
	body, err := RecvRaw(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal frame body: %w", err)
	}
	return nil
}

// RecvRaw reads a single length-prefixed frame from r and returns its body
// undecoded, for callers that must inspect a discriminator field (such as a
// message's "type") before knowing which struct to decode into.
func RecvRaw(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}
