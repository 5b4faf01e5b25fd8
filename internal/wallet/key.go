package wallet

import (
	"bytes"
	"encoding/hex"

	"github.com/tonkeeper/tonkeeper-core/pkg/crypto"
)

// WalletKey is a public key with a display name. Equality is by key bytes;
// one key can back several wallet contract revisions.
type WalletKey struct {
	PublicKey []byte `json:"public_key"`
	Name      string `json:"name"`
}

// ID returns the vault identifier of the key.
func (k WalletKey) ID() string {
	return crypto.KeyID(k.PublicKey)
}

// Equal compares keys by public key bytes.
func (k WalletKey) Equal(o WalletKey) bool {
	return bytes.Equal(k.PublicKey, o.PublicKey)
}

// Hex returns the hex-encoded public key.
func (k WalletKey) Hex() string {
	return hex.EncodeToString(k.PublicKey)
}
