package cryptoops

import (
	"fmt"
	"sync"

	"github.com/flynn/noise"
)

// TransportState holds the two symmetric keys and independent per-direction
// nonces derived from a completed handshake. Encrypt and Decrypt may be
// called concurrently with each other (they touch disjoint CipherStates),
// but each must be single-producer: the nonce is implicit and sequential.
type TransportState struct {
	sendMu sync.Mutex
	send   *noise.CipherState

	recvMu   sync.Mutex
	recv     *noise.CipherState
	poisoned bool
}

func newTransportState(send, recv *noise.CipherState) *TransportState {
	return &TransportState{send: send, recv: recv}
}

// SizeHintEncrypt returns the buffer size Encrypt requires for out, given
// a plaintext of length n.
func SizeHintEncrypt(n int) int {
	return n + TagLen
}

// SizeHintDecrypt returns the buffer size Decrypt requires for out, given a
// ciphertext of length n. ok is false when n is too short to contain a tag,
// in which case the result is meaningless.
func SizeHintDecrypt(n int) (size int, ok bool) {
	if n < TagLen {
		return 0, false
	}
	return n - TagLen, true
}

// Encrypt seals plaintext into out, which must be exactly
// len(plaintext)+TagLen bytes. It advances the send nonce by one on
// success.
func (t *TransportState) Encrypt(plaintext, out []byte) error {
	if len(out) != len(plaintext)+TagLen {
		return fmt.Errorf("%w: out has %d bytes, want %d", ErrShortBuffer, len(out), len(plaintext)+TagLen)
	}
	if len(out) > MaxFrameSize {
		return fmt.Errorf("%w: sealed message is %d bytes, max %d", ErrTooLarge, len(out), MaxFrameSize)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	sealed, err := t.send.Encrypt(out[:0], nil, plaintext)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCipherExhausted, err)
	}
	if len(sealed) != len(out) {
		copy(out, sealed)
	}
	return nil
}

// Decrypt opens ciphertext into out, which must be at least
// len(ciphertext)-TagLen bytes. On success it writes exactly
// len(ciphertext)-TagLen bytes and advances the recv nonce by one.
//
// A tag mismatch returns ErrAuthFailure and poisons the TransportState:
// every subsequent Decrypt call fails immediately without touching the
// underlying cipher state, since an authentication failure is terminal for
// the session.
func (t *TransportState) Decrypt(ciphertext, out []byte) (int, error) {
	if len(ciphertext) < TagLen {
		return 0, fmt.Errorf("%w: ciphertext has %d bytes, need at least %d", ErrShortBuffer, len(ciphertext), TagLen)
	}
	want := len(ciphertext) - TagLen
	if len(out) < want {
		return 0, fmt.Errorf("%w: out has %d bytes, need %d", ErrShortBuffer, len(out), want)
	}

	t.recvMu.Lock()
	defer t.recvMu.Unlock()

	if t.poisoned {
		return 0, ErrAuthFailure
	}

	opened, err := t.recv.Decrypt(out[:0], nil, ciphertext)
	if err != nil {
		t.poisoned = true
		return 0, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}
	if len(opened) != want {
		t.poisoned = true
		return 0, fmt.Errorf("%w: opened %d bytes, want %d", ErrAuthFailure, len(opened), want)
	}
	if want > 0 && &opened[0] != &out[0] {
		copy(out[:want], opened)
	}
	return want, nil
}
