package cryptoops

import "errors"

// Error kinds surfaced by the handshake and transport cipher. Cryptographic
// and framing errors are terminal for the session; the session-recoverable
// counterparts used by the router are the errors of package mining.
var (
	// ErrHandshakeCrypto wraps any decryption/authentication failure that
	// occurs while driving the handshake state machine.
	ErrHandshakeCrypto = errors.New("cryptoops: handshake crypto failure")

	// ErrBadCertificate covers malformed certificates and signature
	// verification failures.
	ErrBadCertificate = errors.New("cryptoops: bad certificate")

	// ErrCertExpired and ErrCertNotYetValid report the two ways a
	// well-formed, correctly signed certificate can fail its validity
	// window check.
	ErrCertExpired     = errors.New("cryptoops: certificate expired")
	ErrCertNotYetValid = errors.New("cryptoops: certificate not yet valid")

	// ErrProtocolMisuse is returned when Step is called on a handshake
	// that has already reached its Done stage.
	ErrProtocolMisuse = errors.New("cryptoops: protocol misuse")

	// ErrUnexpectedMessage is returned when a handshake Step that requires
	// an incoming message is called with none.
	ErrUnexpectedMessage = errors.New("cryptoops: unexpected message")

	// ErrInvalidProtocol is returned at construction time when a caller
	// requests a Noise parameter string other than ProtocolName.
	ErrInvalidProtocol = errors.New("cryptoops: invalid noise protocol")

	// ErrHandshakeInvariant reports a violated size invariant in the
	// responder's second flight: a hard error, not a panic, so a release
	// build degrades the session instead of crashing the process.
	ErrHandshakeInvariant = errors.New("cryptoops: handshake size invariant violated")

	// ErrAuthFailure is returned by the transport cipher on a tag
	// mismatch. It is terminal: the TransportState is poisoned and every
	// subsequent Decrypt call also fails.
	ErrAuthFailure = errors.New("cryptoops: authentication failure")

	// ErrCipherExhausted is returned by Encrypt when the send cipher
	// refuses to seal, such as when the nonce counter is exhausted. Decrypt
	// reports every cipher failure, nonce exhaustion included, as
	// ErrAuthFailure.
	ErrCipherExhausted = errors.New("cryptoops: cipher nonce exhausted")

	// ErrTooLarge is returned when a plaintext would not fit within
	// MaxFrameSize once framed and tagged.
	ErrTooLarge = errors.New("cryptoops: message too large")

	// ErrShortBuffer is returned when a caller-supplied buffer does not
	// match the size the operation requires.
	ErrShortBuffer = errors.New("cryptoops: short buffer")
)
