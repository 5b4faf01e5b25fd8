package tonconnect

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"

	"golang.org/x/crypto/nacl/box"
)

func TestSession_RoundTrip(t *testing.T) {
	appPub, appPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := NewSession(hex.EncodeToString(appPub[:]))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sealed, err := s.Seal([]byte(`{"event":"connect"}`))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := box.Open(nil, sealed[24:], &nonce, &s.Public, appPriv)
	if !ok || string(plain) != `{"event":"connect"}` {
		t.Fatalf("app cannot open wallet message: %q", plain)
	}

	var n2 [24]byte
	n2[0] = 7
	fromApp := box.Seal(n2[:], []byte("hello wallet"), &n2, &s.Public, appPriv)
	got, err := s.Open(fromApp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, []byte("hello wallet")) {
		t.Errorf("Open = %q", got)
	}

	fromApp[len(fromApp)-1] ^= 1
	if _, err := s.Open(fromApp); !errors.Is(err, ErrDecrypt) {
		t.Errorf("tampered: err = %v, want ErrDecrypt", err)
	}
	if _, err := s.Open([]byte("short")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("short: err = %v, want ErrDecrypt", err)
	}
}

func TestNewSession_BadClientID(t *testing.T) {
	if _, err := NewSession("nothex"); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", err)
	}
}
