package vault

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/tonkeeper/tonkeeper-core/pkg/crypto"
)

// Version is the on-disk format of a vault entry.
//
//	v2: nacl/secretbox, words joined by "\n"
//	v3: nacl/secretbox, words as a JSON array
//	v4: XChaCha20-Poly1305 with the key id as associated data, JSON array
type Version int

const (
	V2 Version = 2
	V3 Version = 3
	V4 Version = 4

	// CurrentVersion is the format new entries are written in.
	CurrentVersion = V4
)

// Valid reports whether v is a known format.
func (v Version) Valid() bool {
	return v >= V2 && v <= V4
}

func (v Version) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// Encryption constants.
const (
	SaltSize  = 32
	NonceSize = 24
	KeySize   = 32

	// Bounds on the scrypt cost read back from storage.
	maxN = 1 << 20
	maxR = 32
	maxP = 16
)

// Crypto errors.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrKdfFailed            = errors.New("key derivation failed")
	ErrRandomUnavailable    = errors.New("secure random unavailable")
	ErrUnknownVersion       = errors.New("unknown vault format version")
)

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

// Params holds the scrypt parameters stored with every entry.
type Params struct {
	N      int `json:"n"`
	R      int `json:"r"`
	P      int `json:"p"`
	KeyLen int `json:"dk_len"`
}

// DefaultParams returns the parameters used for new entries.
func DefaultParams() Params {
	return Params{
		N:      1 << 14,
		R:      8,
		P:      1,
		KeyLen: KeySize,
	}
}

func (p Params) validate() error {
	if p.KeyLen != KeySize {
		return fmt.Errorf("%w: derived key length %d, want %d", ErrKdfFailed, p.KeyLen, KeySize)
	}
	if p.N <= 1 || p.N > maxN || p.N&(p.N-1) != 0 {
		return fmt.Errorf("%w: N=%d is not a power of two up to %d", ErrKdfFailed, p.N, maxN)
	}
	if p.R <= 0 || p.R > maxR || p.P <= 0 || p.P > maxP {
		return fmt.Errorf("%w: r=%d p=%d out of range", ErrKdfFailed, p.R, p.P)
	}
	return nil
}

// Entry is one encrypted mnemonic.
type Entry struct {
	Version    Version `json:"version"`
	KeyID      string  `json:"key_id"`
	Salt       []byte  `json:"salt"`
	Params     Params  `json:"params"`
	Ciphertext []byte  `json:"ciphertext"`
}

func (e *Entry) nonce() []byte {
	return e.Salt[:NonceSize]
}

func deriveKey(password, salt []byte, params Params) ([]byte, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	key, err := scrypt.Key(password, salt, params.N, params.R, params.P, params.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdfFailed, err)
	}
	return key, nil
}

func encodeWords(v Version, words []string) ([]byte, error) {
	switch v {
	case V2:
		return []byte(strings.Join(words, "\n")), nil
	case V3, V4:
		return json.Marshal(words)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, int(v))
	}
}

func decodeWords(v Version, plain []byte) ([]string, error) {
	if v == V2 {
		return strings.Split(string(plain), "\n"), nil
	}
	var words []string
	if err := json.Unmarshal(plain, &words); err != nil {
		return nil, err
	}
	return words, nil
}

// Encrypt seals words for keyID in format v. The salt is fresh for every
// call and its first 24 bytes are the cipher nonce.
func Encrypt(v Version, keyID string, words []string, password []byte, params Params) (*Entry, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, int(v))
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomUnavailable, err)
	}

	key, err := deriveKey(password, salt, params)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	plain, err := encodeWords(v, words)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(plain)

	e := &Entry{Version: v, KeyID: keyID, Salt: salt, Params: params}
	if v == V4 {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		e.Ciphertext = aead.Seal(nil, e.nonce(), plain, []byte(keyID))
		return e, nil
	}

	var k [KeySize]byte
	var n [NonceSize]byte
	copy(k[:], key)
	copy(n[:], e.nonce())
	e.Ciphertext = secretbox.Seal(nil, plain, &n, &k)
	crypto.Wipe(k[:])
	return e, nil
}

// Decrypt opens an entry. A wrong password and a damaged entry, including
// damaged KDF parameters, both yield ErrAuthenticationFailed.
func Decrypt(e *Entry, password []byte) ([]string, error) {
	if e == nil || len(e.Salt) != SaltSize {
		return nil, ErrAuthenticationFailed
	}
	if !e.Version.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, int(e.Version))
	}

	key, err := deriveKey(password, e.Salt, e.Params)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	defer crypto.Wipe(key)

	var plain []byte
	if e.Version == V4 {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		plain, err = aead.Open(nil, e.nonce(), e.Ciphertext, []byte(e.KeyID))
		if err != nil {
			return nil, ErrAuthenticationFailed
		}
	} else {
		var k [KeySize]byte
		var n [NonceSize]byte
		copy(k[:], key)
		copy(n[:], e.nonce())
		var ok bool
		plain, ok = secretbox.Open(nil, e.Ciphertext, &n, &k)
		crypto.Wipe(k[:])
		if !ok {
			return nil, ErrAuthenticationFailed
		}
	}
	defer crypto.Wipe(plain)

	words, err := decodeWords(e.Version, plain)
	if err != nil || len(words) == 0 {
		return nil, ErrAuthenticationFailed
	}
	return words, nil
}

func marshalEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

func unmarshalEntry(v Version, data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode %s entry: %w", v, err)
	}
	// The namespace decides the format.
	e.Version = v
	return &e, nil
}
