package wallet

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tonkeeper/tonkeeper-core/pkg/crypto"
)

// TON seed derivation constants.
const (
	SeedSize = 64

	seedSalt             = "TON default seed"
	seedIterations       = 100000
	basicSeedSalt        = "TON seed version"
	basicSeedIterations  = seedIterations / 256
	privateKeySeedLength = 32
)

// entropy is HMAC-SHA512 keyed by the space-joined phrase over an empty
// mnemonic password.
func (m Mnemonic) entropy() []byte {
	mac := hmac.New(sha512.New, []byte(strings.Join(m.words, " ")))
	return mac.Sum(nil)
}

// Seed derives the 64-byte TON seed with PBKDF2-SHA512.
func (m Mnemonic) Seed() ([]byte, error) {
	if m.IsZero() {
		return nil, fmt.Errorf("%w: empty", ErrInvalidMnemonic)
	}
	ent := m.entropy()
	defer crypto.Wipe(ent)
	return pbkdf2.Key(ent, []byte(seedSalt), seedIterations, SeedSize, sha512.New), nil
}

// IsBasicSeed reports whether the phrase passes the TON basic-seed check
// used to tell TON phrases apart from arbitrary word lists.
func (m Mnemonic) IsBasicSeed() bool {
	if m.IsZero() {
		return false
	}
	ent := m.entropy()
	defer crypto.Wipe(ent)
	seed := pbkdf2.Key(ent, []byte(basicSeedSalt), basicSeedIterations, SeedSize, sha512.New)
	return seed[0] == 0
}

// PrivateKey derives the ed25519 signing key. The caller owns the key and
// must Zero it once signing is done.
func (m Mnemonic) PrivateKey() (*crypto.PrivateKey, error) {
	seed, err := m.Seed()
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(seed)
	return crypto.PrivateKeyFromSeed(seed[:privateKeySeedLength])
}

// PublicKey derives the ed25519 public key.
func (m Mnemonic) PublicKey() ([]byte, error) {
	key, err := m.PrivateKey()
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return key.PublicKey(), nil
}
