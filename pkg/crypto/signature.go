package crypto

import (
	"crypto/ed25519"
	"fmt"
)

// Signer signs messages with an ed25519 private key.
type Signer interface {
	// Sign produces an ed25519 signature over msg.
	Sign(msg []byte) ([]byte, error)
	// PublicKey returns the 32-byte public key.
	PublicKey() []byte
}

// SignatureSize is the length of an ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// PrivateKey wraps an ed25519 private key.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// PrivateKeyFromSeed creates a PrivateKey from a 32-byte ed25519 seed.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign produces an ed25519 signature over msg.
func (pk *PrivateKey) Sign(msg []byte) ([]byte, error) {
	if len(pk.key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key has been zeroed")
	}
	return ed25519.Sign(pk.key, msg), nil
}

// PublicKey returns the 32-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	if len(pk.key) != ed25519.PrivateKeySize {
		return nil
	}
	pub := make([]byte, ed25519.PublicKeySize)
	copy(pub, pk.key[ed25519.SeedSize:])
	return pub
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	Wipe(pk.key)
	pk.key = nil
}

// VerifySignature checks an ed25519 signature. Returns false on any
// malformed input.
func VerifySignature(msg, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, msg, signature)
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
