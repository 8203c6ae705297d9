package cryptoops

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"
)

// SignatureNoiseMessage is the 76-byte certificate record binding a
// responder's static public key to a validity window, signed by an
// offline Authority key.
//
//	version         2 bytes, little-endian
//	valid_from      4 bytes, little-endian, unix seconds, inclusive
//	not_valid_after 4 bytes, little-endian, unix seconds, exclusive
//	signature_len   2 bytes, little-endian, must equal 64
//	signature       64 bytes
type SignatureNoiseMessage struct {
	Version       uint16
	ValidFrom     uint32
	NotValidAfter uint32
	Signature     [ed25519.SignatureSize]byte
}

const headerLen = 2 + 4 + 4 + 2

// header returns the serialized 12-byte header (everything but the
// signature itself) used both on the wire and as the first component of
// the signed payload.
func (m *SignatureNoiseMessage) header() [headerLen]byte {
	var b [headerLen]byte
	binary.LittleEndian.PutUint16(b[0:2], m.Version)
	binary.LittleEndian.PutUint32(b[2:6], m.ValidFrom)
	binary.LittleEndian.PutUint32(b[6:10], m.NotValidAfter)
	binary.LittleEndian.PutUint16(b[10:12], ed25519.SignatureSize)
	return b
}

// Marshal serializes the certificate into its fixed 76-byte wire form.
func (m *SignatureNoiseMessage) Marshal() []byte {
	out := make([]byte, SignatureMessageLen)
	h := m.header()
	copy(out[0:headerLen], h[:])
	copy(out[headerLen:], m.Signature[:])
	return out
}

// UnmarshalSignatureNoiseMessage parses the fixed 76-byte certificate
// record. It rejects anything but the expected length and signature_len.
func UnmarshalSignatureNoiseMessage(b []byte) (*SignatureNoiseMessage, error) {
	if len(b) != SignatureMessageLen {
		return nil, fmt.Errorf("%w: certificate length %d, want %d", ErrBadCertificate, len(b), SignatureMessageLen)
	}
	sigLen := binary.LittleEndian.Uint16(b[10:12])
	if sigLen != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: signature_len %d, want %d", ErrBadCertificate, sigLen, ed25519.SignatureSize)
	}
	m := &SignatureNoiseMessage{
		Version:       binary.LittleEndian.Uint16(b[0:2]),
		ValidFrom:     binary.LittleEndian.Uint32(b[2:6]),
		NotValidAfter: binary.LittleEndian.Uint32(b[6:10]),
	}
	copy(m.Signature[:], b[headerLen:])
	return m, nil
}

// signedPayload builds header ‖ staticPub ‖ authorityPub, the exact bytes
// the Authority signs and the verifier recomputes. Binding the authority's
// own public key into the signed payload means a certificate signed by one
// authority can never verify against a different configured authority
// public key, even for the same static key.
func signedPayload(header [headerLen]byte, staticPub, authorityPub []byte) []byte {
	out := make([]byte, 0, headerLen+len(staticPub)+len(authorityPub))
	out = append(out, header[:]...)
	out = append(out, staticPub...)
	out = append(out, authorityPub...)
	return out
}

// Authority is the offline Ed25519 signer that certifies responder static
// keys.
type Authority struct {
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
}

// NewAuthority wraps an existing Ed25519 keypair as an Authority.
func NewAuthority(pub ed25519.PublicKey, priv ed25519.PrivateKey) *Authority {
	return &Authority{publicKey: pub, privateKey: priv}
}

// GenerateAuthority creates a fresh Ed25519 authority keypair.
func GenerateAuthority() (*Authority, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return NewAuthority(pub, priv), nil
}

// PublicKey returns the authority's public verification key.
func (a *Authority) PublicKey() ed25519.PublicKey {
	return a.publicKey
}

// PrivateKey returns the authority's signing key, for callers that persist
// it (e.g. to a local key file) between runs.
func (a *Authority) PrivateKey() ed25519.PrivateKey {
	return a.privateKey
}

// LoadAuthority reconstructs an Authority from a previously persisted
// Ed25519 private key, deriving the public key from it.
func LoadAuthority(priv ed25519.PrivateKey) (*Authority, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: authority key length %d, want %d", ErrBadCertificate, len(priv), ed25519.PrivateKeySize)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: could not derive public key from private key", ErrBadCertificate)
	}
	return NewAuthority(pub, priv), nil
}

// NewCert issues a certificate for staticPub valid from now for duration.
func (a *Authority) NewCert(staticPub []byte, duration time.Duration) (*SignatureNoiseMessage, error) {
	if len(staticPub) != PSKLen {
		return nil, fmt.Errorf("%w: static key length %d, want %d", ErrBadCertificate, len(staticPub), PSKLen)
	}
	now := time.Now()
	m := &SignatureNoiseMessage{
		Version:       0,
		ValidFrom:     uint32(now.Unix()),
		NotValidAfter: uint32(now.Add(duration).Unix()),
	}
	sig := ed25519.Sign(a.privateKey, signedPayload(m.header(), staticPub, a.publicKey))
	copy(m.Signature[:], sig)
	return m, nil
}

// VerifyCertificate validates a SignatureNoiseMessage against the peer's
// static key, as seen in the Noise handshake, and the initiator's
// configured authority public key. now is injected so tests can exercise
// the boundary of the validity window deterministically.
func VerifyCertificate(m *SignatureNoiseMessage, peerStaticPub []byte, authorityPub ed25519.PublicKey, now time.Time) error {
	if len(peerStaticPub) != PSKLen {
		return fmt.Errorf("%w: static key length %d, want %d", ErrBadCertificate, len(peerStaticPub), PSKLen)
	}
	unixNow := uint32(now.Unix())
	if unixNow < m.ValidFrom {
		return ErrCertNotYetValid
	}
	if unixNow >= m.NotValidAfter {
		return ErrCertExpired
	}
	payload := signedPayload(m.header(), peerStaticPub, authorityPub)
	if !ed25519.Verify(authorityPub, payload, m.Signature[:]) {
		return ErrBadCertificate
	}
	return nil
}
