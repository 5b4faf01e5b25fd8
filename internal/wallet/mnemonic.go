// Package wallet defines wallet identities, wallet keys and mnemonics.
package wallet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// Accepted mnemonic lengths.
const (
	WordCount12 = 12
	WordCount24 = 24
)

// ErrInvalidMnemonic is returned for word lists that are not 12 or 24 words
// from the BIP39 English list.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// errMnemonicSerialization guards against accidental plaintext encoding.
var errMnemonicSerialization = errors.New("mnemonic must not be serialized")

// Mnemonic is a validated seed phrase. The zero value holds no words.
// It redacts itself in fmt output and refuses JSON encoding, so the only
// way to persist words is through the vault.
type Mnemonic struct {
	words []string
}

// NewMnemonic validates words and returns a Mnemonic. Words are trimmed and
// lowercased first.
func NewMnemonic(words []string) (Mnemonic, error) {
	if len(words) != WordCount12 && len(words) != WordCount24 {
		return Mnemonic{}, fmt.Errorf("%w: %d words, want %d or %d", ErrInvalidMnemonic, len(words), WordCount12, WordCount24)
	}
	normalized := make([]string, len(words))
	for i, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if _, ok := bip39.GetWordIndex(w); !ok {
			return Mnemonic{}, fmt.Errorf("%w: word %d is not in the wordlist", ErrInvalidMnemonic, i+1)
		}
		normalized[i] = w
	}
	return Mnemonic{words: normalized}, nil
}

// ParseMnemonic splits a whitespace-separated phrase and validates it.
func ParseMnemonic(phrase string) (Mnemonic, error) {
	return NewMnemonic(strings.Fields(phrase))
}

// GenerateMnemonic creates a new 24-word mnemonic whose seed passes the TON
// basic-seed check, so it is accepted by every TON wallet.
func GenerateMnemonic() (Mnemonic, error) {
	list := bip39.GetWordList()
	size := big.NewInt(int64(len(list)))
	for {
		words := make([]string, WordCount24)
		for i := range words {
			n, err := rand.Int(rand.Reader, size)
			if err != nil {
				return Mnemonic{}, fmt.Errorf("generate mnemonic: %w", err)
			}
			words[i] = list[n.Int64()]
		}
		m := Mnemonic{words: words}
		if m.IsBasicSeed() {
			return m, nil
		}
	}
}

// Words returns a copy of the word list.
func (m Mnemonic) Words() []string {
	out := make([]string, len(m.words))
	copy(out, m.words)
	return out
}

// Len returns the number of words.
func (m Mnemonic) Len() int {
	return len(m.words)
}

// IsZero reports whether m holds no words.
func (m Mnemonic) IsZero() bool {
	return len(m.words) == 0
}

// HasBIP39Checksum reports whether the words also form a checksummed BIP39
// phrase. Such phrases were usually created by another wallet.
func (m Mnemonic) HasBIP39Checksum() bool {
	return bip39.IsMnemonicValid(strings.Join(m.words, " "))
}

// Equal compares two mnemonics word by word.
func (m Mnemonic) Equal(o Mnemonic) bool {
	if len(m.words) != len(o.words) {
		return false
	}
	for i := range m.words {
		if m.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Wipe drops the references to the words.
func (m *Mnemonic) Wipe() {
	for i := range m.words {
		m.words[i] = ""
	}
	m.words = nil
}

// String implements fmt.Stringer without revealing the words.
func (m Mnemonic) String() string {
	return fmt.Sprintf("Mnemonic(%d words, redacted)", len(m.words))
}

// GoString implements fmt.GoStringer without revealing the words.
func (m Mnemonic) GoString() string {
	return m.String()
}

// MarshalJSON always fails.
func (m Mnemonic) MarshalJSON() ([]byte, error) {
	return nil, errMnemonicSerialization
}

// MarshalText always fails.
func (m Mnemonic) MarshalText() ([]byte, error) {
	return nil, errMnemonicSerialization
}
