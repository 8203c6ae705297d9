package cryptoops

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/flynn/noise"
)

// StepResult is the outcome of one handshake Step call.
type StepResult struct {
	// Kind distinguishes the three possible outcomes.
	Kind StepKind
	// Out holds the bytes to send to the peer, when Kind is
	// ExpectReply or NoMoreReply. Empty otherwise.
	Out []byte
}

// StepKind enumerates the possible StepResult shapes.
type StepKind int

const (
	// ExpectReply means Out must be sent to the peer and a reply is
	// required before the handshake can continue.
	ExpectReply StepKind = iota
	// NoMoreReply means Out must be sent to the peer, but no further
	// input is expected: the next Step (with no message) completes.
	NoMoreReply
	// Done means the handshake is complete; call IntoTransportState.
	Done
)

// Step is implemented by both Initiator and Responder.
type Step interface {
	// Step drives the handshake state machine forward by one message.
	// in is nil when no incoming message is available (the very first
	// call on an Initiator, or the final no-op call on a Responder).
	Step(in []byte) (StepResult, error)
	// IntoTransportState consumes the completed handshake and returns
	// the derived transport cipher. It is an error to call this before
	// Step has returned Done.
	IntoTransportState() (*TransportState, error)
}

// Initiator drives the downstream side of the handshake: it has no static
// key of its own and verifies the responder's certified static key against
// authorityPublicKey.
type Initiator struct {
	stage        int
	hs           *noise.HandshakeState
	authorityPub ed25519.PublicKey
	cs1, cs2     *noise.CipherState
}

// NewInitiator builds an Initiator configured to trust certificates signed
// by authorityPublicKey.
func NewInitiator(authorityPublicKey ed25519.PublicKey) (*Initiator, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Pattern:     handshakePattern,
		Initiator:   true,
		Prologue:    []byte(noisePrologue),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init: %w", ErrHandshakeCrypto, err)
	}
	return &Initiator{stage: 0, hs: hs, authorityPub: authorityPublicKey}, nil
}

// NewInitiatorForProtocol is NewInitiator but first validates protocolName
// against ProtocolName, returning ErrInvalidProtocol for any other Noise
// parameter string instead of building a handshake around it regardless.
// Use this constructor wherever the protocol name comes from configuration
// or peer negotiation rather than being hardcoded by the caller.
func NewInitiatorForProtocol(protocolName string, authorityPublicKey ed25519.PublicKey) (*Initiator, error) {
	if err := ValidateProtocolName(protocolName); err != nil {
		return nil, err
	}
	return NewInitiator(authorityPublicKey)
}

func (in *Initiator) Step(msg []byte) (StepResult, error) {
	switch in.stage {
	case 0:
		// -> e
		out, cs1, cs2, err := in.hs.WriteMessage(nil, nil)
		if err != nil {
			return StepResult{}, fmt.Errorf("%w: write msg1: %w", ErrHandshakeCrypto, err)
		}
		in.cs1, in.cs2 = cs1, cs2
		in.stage = 1
		return StepResult{Kind: ExpectReply, Out: out}, nil
	case 1:
		// <- e, ee, s, es, SignatureNoiseMessage
		if msg == nil {
			return StepResult{}, ErrUnexpectedMessage
		}
		payload, cs1, cs2, err := in.hs.ReadMessage(nil, msg)
		if err != nil {
			return StepResult{}, fmt.Errorf("%w: read msg2: %w", ErrHandshakeCrypto, err)
		}
		if len(payload) != SignatureMessageLen {
			return StepResult{}, fmt.Errorf("%w: signature message length %d", ErrBadCertificate, len(payload))
		}
		cert, err := UnmarshalSignatureNoiseMessage(payload)
		if err != nil {
			return StepResult{}, err
		}
		remoteStatic := in.hs.PeerStatic()
		if remoteStatic == nil {
			return StepResult{}, fmt.Errorf("%w: no remote static key", ErrHandshakeCrypto)
		}
		if err := VerifyCertificate(cert, remoteStatic, in.authorityPub, time.Now()); err != nil {
			return StepResult{}, err
		}
		in.cs1, in.cs2 = cs1, cs2
		in.stage = 2
		return StepResult{Kind: Done}, nil
	default:
		return StepResult{}, ErrProtocolMisuse
	}
}

func (in *Initiator) IntoTransportState() (*TransportState, error) {
	if in.stage != 2 {
		return nil, ErrProtocolMisuse
	}
	// cs1 is always keyed for initiator->responder, cs2 for the reverse,
	// regardless of which side completed the handshake.
	return newTransportState(in.cs1, in.cs2), nil
}

// Responder drives the upstream side of the handshake: it owns a static
// key pair and a pre-built (or self-issued) certificate for it.
type Responder struct {
	stage     int
	hs        *noise.HandshakeState
	signature []byte
	cs1, cs2  *noise.CipherState
}

// NewResponder builds a Responder for staticKeypair, certified by
// signatureMessage (the serialized 76-byte SignatureNoiseMessage produced
// by an Authority for staticKeypair.Public).
func NewResponder(staticKeypair noise.DHKey, signatureMessage []byte) (*Responder, error) {
	if len(signatureMessage) != SignatureMessageLen {
		return nil, fmt.Errorf("%w: signature message length %d", ErrBadCertificate, len(signatureMessage))
	}
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       handshakePattern,
		Initiator:     false,
		StaticKeypair: staticKeypair,
		Prologue:      []byte(noisePrologue),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init: %w", ErrHandshakeCrypto, err)
	}
	return &Responder{stage: 0, hs: hs, signature: signatureMessage}, nil
}

// NewResponderForProtocol is NewResponder but first validates protocolName
// against ProtocolName, returning ErrInvalidProtocol for any other Noise
// parameter string.
func NewResponderForProtocol(protocolName string, staticKeypair noise.DHKey, signatureMessage []byte) (*Responder, error) {
	if err := ValidateProtocolName(protocolName); err != nil {
		return nil, err
	}
	return NewResponder(staticKeypair, signatureMessage)
}

// NewResponderSelfCertified generates a fresh static keypair and has the
// given authority certify it on the spot — useful when there is no
// separately operated certificate authority and the responder can act as
// its own.
func NewResponderSelfCertified(authority *Authority, duration time.Duration) (*Responder, error) {
	kp, err := cipherSuite.GenerateKeypair(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate static keypair: %w", ErrHandshakeCrypto, err)
	}
	cert, err := authority.NewCert(kp.Public, duration)
	if err != nil {
		return nil, err
	}
	return NewResponder(kp, cert.Marshal())
}

func (r *Responder) Step(msg []byte) (StepResult, error) {
	switch r.stage {
	case 0:
		// -> e
		if msg == nil {
			return StepResult{}, ErrUnexpectedMessage
		}
		if _, _, _, err := r.hs.ReadMessage(nil, msg); err != nil {
			return StepResult{}, fmt.Errorf("%w: read msg1: %w", ErrHandshakeCrypto, err)
		}
		// <- e, ee, s, es, SignatureNoiseMessage
		out, cs1, cs2, err := r.hs.WriteMessage(nil, r.signature)
		if err != nil {
			return StepResult{}, fmt.Errorf("%w: write msg2: %w", ErrHandshakeCrypto, err)
		}
		if len(out) != HandshakeFlight2Size {
			return StepResult{}, fmt.Errorf("%w: second flight length %d, want %d", ErrHandshakeInvariant, len(out), HandshakeFlight2Size)
		}
		r.cs1, r.cs2 = cs1, cs2
		r.stage = 1
		return StepResult{Kind: NoMoreReply, Out: out}, nil
	case 1:
		r.stage = 2
		return StepResult{Kind: Done}, nil
	default:
		return StepResult{}, ErrProtocolMisuse
	}
}

func (r *Responder) IntoTransportState() (*TransportState, error) {
	if r.stage != 2 {
		return nil, ErrProtocolMisuse
	}
	// cs2 is responder->initiator (this side's send key), cs1 is
	// initiator->responder (this side's receive key).
	return newTransportState(r.cs2, r.cs1), nil
}
