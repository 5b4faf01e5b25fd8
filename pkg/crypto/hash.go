// Package crypto provides the signing and hashing primitives shared by the
// vault, the message builder and TonConnect.
package crypto

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// KeyIDSize is the number of hash bytes kept in a key id.
const KeyIDSize = 16

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// KeyID derives the stable identifier of a public key. Vault entries and
// logs refer to keys by this id so the key itself never has to appear.
func KeyID(publicKey []byte) string {
	h := Hash(publicKey)
	return hex.EncodeToString(h[:KeyIDSize])
}
