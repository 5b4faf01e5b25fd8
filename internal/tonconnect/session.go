package tonconnect

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

const nonceSize = 24

// ErrDecrypt is returned for bridge messages that do not open.
var ErrDecrypt = errors.New("cannot decrypt bridge message")

// Session is the wallet's keypair for one connected app. Bridge messages
// are nacl boxes prefixed with their 24-byte nonce.
type Session struct {
	Public  [32]byte
	Private [32]byte
	// Client is the app's public key.
	Client [32]byte
}

// NewSession generates a keypair for the app whose hex public key is
// clientID.
func NewSession(clientID string) (*Session, error) {
	client, err := parseKey(clientID)
	if err != nil {
		return nil, err
	}
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("session keypair: %w", err)
	}
	return &Session{Public: *pub, Private: *priv, Client: client}, nil
}

func parseKey(s string) ([32]byte, error) {
	var k [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(k) {
		return k, fmt.Errorf("%w: bad public key", ErrMalformedPayload)
	}
	copy(k[:], b)
	return k, nil
}

// ID is the wallet side session id, the hex public key.
func (s *Session) ID() string {
	return hex.EncodeToString(s.Public[:])
}

// Seal encrypts msg for the app.
func (s *Session) Seal(msg []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return box.Seal(nonce[:], msg, &nonce, &s.Client, &s.Private), nil
}

// Open decrypts a message from the app.
func (s *Session) Open(data []byte) ([]byte, error) {
	if len(data) < nonceSize+box.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	out, ok := box.Open(nil, data[nonceSize:], &nonce, &s.Client, &s.Private)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}
