// Package cryptoops implements the Noise-based secure session establishment
// for the mining proxy: handshake state machines, the certificate authority
// that binds a responder's static key to an identity, and the authenticated
// transport cipher used once the handshake completes.
package cryptoops

import (
	"fmt"

	"github.com/flynn/noise"
)

const (
	// HeaderSize is the length of the cleartext frame length prefix.
	HeaderSize = 2

	// MaxFrameSize is the largest frame (header + ciphertext + tag) the
	// transport will produce or accept.
	MaxFrameSize = 65535

	// PSKLen is the size of an X25519 public key / DH output, matching the
	// Stratum V2 noise profile's naming (carried over from the handshake's
	// Noise parameter set, not an actual pre-shared key).
	PSKLen = 32

	// TagLen is the ChaCha20-Poly1305 authentication tag size.
	TagLen = 16

	// SignatureMessageLen is the fixed wire size of a SignatureNoiseMessage.
	SignatureMessageLen = 12 + 64

	// noisePrologue binds the handshake to this specific protocol profile.
	noisePrologue = "sv2-noise"
)

// Handshake flight sizes (plaintext/ciphertext views), per the external
// interface: the initiator's first flight is a bare Noise "e" token (no
// payload, no encryption yet, so its actual wire size is PSKLen), but the
// reference implementation sizes its scratch buffer to PSKLen+TagLen and
// truncates to the bytes actually written; that allocation size is kept
// here as HandshakeFlight1Alloc for callers that want to preallocate.
const (
	HandshakeFlight1Alloc = PSKLen + TagLen
	HandshakeFlight2Size  = 2*PSKLen + 2*TagLen + SignatureMessageLen
)

// cipherSuite is the one fixed Noise cipher suite this package supports:
// Noise_NX_25519_ChaChaPoly_SHA256. No other pattern or primitive set is
// accepted; constructors reject any other configuration at construction
// time rather than making the pattern pluggable.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// handshakePattern is the fixed Noise pattern: one "-> e" flight followed
// by one "<- e, ee, s, es, <payload>" flight.
var handshakePattern = noise.HandshakeNX

// ProtocolName is the fixed Noise parameter string this implementation
// supports. Any other string supplied to ValidateProtocolName, or to a
// constructor built on it, is rejected with ErrInvalidProtocol.
const ProtocolName = "Noise_NX_25519_ChaChaPoly_SHA256"

// ValidateProtocolName reports whether name is the Noise parameter string
// this package supports. NewInitiator and NewResponder hardcode cipherSuite
// and handshakePattern directly and never call this; it exists for callers
// that take a protocol name from configuration or negotiation and must
// reject anything else before building a handshake around it.
func ValidateProtocolName(name string) error {
	if name != ProtocolName {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, name)
	}
	return nil
}
