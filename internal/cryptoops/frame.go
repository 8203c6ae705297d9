package cryptoops

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFrame writes ciphertext (already sealed with TransportState.Encrypt)
// to w as a length-prefixed frame: a 2-byte little-endian length followed
// by the payload itself.
func WriteFrame(w io.Writer, ciphertext []byte) error {
	if HeaderSize+len(ciphertext) > MaxFrameSize {
		return fmt.Errorf("%w: frame is %d bytes, max %d", ErrTooLarge, HeaderSize+len(ciphertext), MaxFrameSize)
	}
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint16(header[:], uint16(len(ciphertext)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(ciphertext)
	return err
}

// ReadFrame reads one length-prefixed frame from r and returns its
// (still-encrypted) payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint16(header[:])
	if HeaderSize+int(length) > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame declares %d bytes, max %d", ErrTooLarge, length, MaxFrameSize-HeaderSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// SecureConn wraps a byte stream (conn) with an established TransportState,
// presenting plaintext Read/Write calls and hiding frame/AEAD bookkeeping.
// Mirrors the role of a handshake's into_transport_state() consumer: the
// type most callers outside this package interact with.
type SecureConn struct {
	conn  io.ReadWriteCloser
	state *TransportState

	readBuf []byte // leftover decrypted bytes not yet consumed by Read
}

// NewSecureConn wraps conn with the transport cipher state derived from a
// completed handshake.
func NewSecureConn(conn io.ReadWriteCloser, state *TransportState) *SecureConn {
	return &SecureConn{conn: conn, state: state}
}

// Write encrypts and frames p as a single message. Large plaintexts are
// rejected rather than silently fragmented, since fragmentation policy is
// an external-layer concern (callers should split typed messages before
// they reach the transport cipher).
func (c *SecureConn) Write(p []byte) (int, error) {
	maxPlain := MaxFrameSize - HeaderSize - TagLen
	if len(p) > maxPlain {
		return 0, fmt.Errorf("%w: plaintext is %d bytes, max %d", ErrTooLarge, len(p), maxPlain)
	}
	out := make([]byte, SizeHintEncrypt(len(p)))
	if err := c.state.Encrypt(p, out); err != nil {
		return 0, err
	}
	if err := WriteFrame(c.conn, out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read decrypts the next frame into p, or returns leftover bytes from a
// previous frame that did not fully fit in the caller's buffer.
func (c *SecureConn) Read(p []byte) (int, error) {
	if len(c.readBuf) > 0 {
		n := copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
		return n, nil
	}

	ciphertext, err := ReadFrame(c.conn)
	if err != nil {
		return 0, err
	}
	plainLen, ok := SizeHintDecrypt(len(ciphertext))
	if !ok {
		return 0, ErrShortBuffer
	}
	plain := make([]byte, plainLen)
	n, err := c.state.Decrypt(ciphertext, plain)
	if err != nil {
		return 0, err
	}
	copied := copy(p, plain[:n])
	if copied < n {
		c.readBuf = plain[copied:n]
	}
	return copied, nil
}

// Close closes the underlying connection.
func (c *SecureConn) Close() error {
	return c.conn.Close()
}
