package wallet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tonkeeper/tonkeeper-core/pkg/crypto"
)

func TestSeed_Deterministic(t *testing.T) {
	m, _ := ParseMnemonic(testPhrase24)

	s1, err := m.Seed()
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	s2, _ := m.Seed()
	if len(s1) != SeedSize {
		t.Errorf("seed length = %d, want %d", len(s1), SeedSize)
	}
	if !bytes.Equal(s1, s2) {
		t.Error("seed derivation should be deterministic")
	}
}

func TestSeed_Empty(t *testing.T) {
	var m Mnemonic
	if _, err := m.Seed(); !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("Seed() on empty mnemonic error = %v, want ErrInvalidMnemonic", err)
	}
}

func TestPrivateKey_SignsForPublicKey(t *testing.T) {
	m, _ := ParseMnemonic(testPhrase24)

	key, err := m.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey() error: %v", err)
	}
	defer key.Zero()

	pub, err := m.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error: %v", err)
	}
	if !bytes.Equal(pub, key.PublicKey()) {
		t.Fatal("PublicKey() does not match PrivateKey().PublicKey()")
	}

	msg := []byte("hello")
	sig, _ := key.Sign(msg)
	if !crypto.VerifySignature(msg, sig, pub) {
		t.Error("signature from derived key does not verify")
	}
}

func TestPublicKey_DiffersPerMnemonic(t *testing.T) {
	m1, _ := ParseMnemonic(testPhrase24)
	m2, _ := ParseMnemonic(testPhrase12)

	p1, _ := m1.PublicKey()
	p2, _ := m2.PublicKey()
	if bytes.Equal(p1, p2) {
		t.Error("different mnemonics should derive different keys")
	}
}
