package tonconnect

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/xssnick/tonutils-go/address"
)

const (
	proofPrefix   = "ton-proof-item-v2/"
	connectPrefix = "ton-connect"
)

// ProofDomain is the app domain a proof is bound to.
type ProofDomain struct {
	LengthBytes uint32 `json:"lengthBytes"`
	Value       string `json:"value"`
}

// Proof is the ton_proof reply.
type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Signature string      `json:"signature"`
	Payload   string      `json:"payload"`
}

// proofMessage builds the signed ton_proof message:
//
//	"ton-proof-item-v2/" | wc int32 BE | hash | len uint32 LE | domain | ts uint64 LE | payload
func proofMessage(addr *address.Address, domain string, ts time.Time, payload string) []byte {
	msg := make([]byte, 0, len(proofPrefix)+4+32+4+len(domain)+8+len(payload))
	msg = append(msg, proofPrefix...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(addr.Workchain()))
	msg = append(msg, addr.Data()...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(domain)))
	msg = append(msg, domain...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(ts.Unix()))
	msg = append(msg, payload...)
	return msg
}

// ProofHash is what the wallet key signs for a ton_proof:
// sha256(0xffff | "ton-connect" | sha256(message)).
func ProofHash(addr *address.Address, domain string, ts time.Time, payload string) []byte {
	inner := sha256.Sum256(proofMessage(addr, domain, ts, payload))
	buf := make([]byte, 0, 2+len(connectPrefix)+len(inner))
	buf = append(buf, 0xff, 0xff)
	buf = append(buf, connectPrefix...)
	buf = append(buf, inner[:]...)
	h := sha256.Sum256(buf)
	return h[:]
}
