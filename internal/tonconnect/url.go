// Package tonconnect implements the wallet side of the TonConnect v2
// protocol: connect links, app manifests, the per-wallet app registry,
// bridge session crypto and the connect/sendTransaction handling.
package tonconnect

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ProtocolVersion is the only supported TonConnect version.
const ProtocolVersion = 2

// Item names of a connect request.
const (
	ItemTonAddr  = "ton_addr"
	ItemTonProof = "ton_proof"
)

// Protocol errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported tonconnect version")
	ErrMalformedPayload   = errors.New("malformed tonconnect payload")
)

// ConnectItem is one requested item.
type ConnectItem struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"`
}

// ConnectPayload is the JSON in the r parameter of a connect link.
type ConnectPayload struct {
	ManifestURL string        `json:"manifestUrl"`
	Items       []ConnectItem `json:"items"`
}

// ConnectRequest is a parsed connect link.
type ConnectRequest struct {
	Version int
	// ClientID is the app's session public key, hex.
	ClientID string
	Payload  ConnectPayload
	// Return is the ret strategy ("back", "none" or a URL).
	Return string
}

// ProofPayload returns the ton_proof payload and whether a proof was asked.
func (r *ConnectRequest) ProofPayload() (string, bool) {
	for _, it := range r.Payload.Items {
		if it.Name == ItemTonProof {
			return it.Payload, true
		}
	}
	return "", false
}

// ParseURL parses a connect link. Accepted forms are custom schemes
// (tc://?v=2&id=..&r=..) and universal links whose path ends in
// /ton-connect.
func ParseURL(raw string) (*ConnectRequest, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch u.Scheme {
	case "http", "https":
		if !strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), "/ton-connect") {
			return nil, fmt.Errorf("%w: not a ton-connect link", ErrMalformedPayload)
		}
	case "":
		return nil, fmt.Errorf("%w: missing scheme", ErrMalformedPayload)
	}

	q := u.Query()
	if v := q.Get("v"); v != fmt.Sprint(ProtocolVersion) {
		return nil, fmt.Errorf("%w: v=%q", ErrUnsupportedVersion, v)
	}

	id := strings.ToLower(q.Get("id"))
	if key, err := hex.DecodeString(id); err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%w: bad client id", ErrMalformedPayload)
	}

	var p ConnectPayload
	if err := json.Unmarshal([]byte(q.Get("r")), &p); err != nil {
		return nil, fmt.Errorf("%w: request: %v", ErrMalformedPayload, err)
	}
	if p.ManifestURL == "" {
		return nil, fmt.Errorf("%w: no manifest url", ErrMalformedPayload)
	}
	hasAddr := false
	for _, it := range p.Items {
		if it.Name == ItemTonAddr {
			hasAddr = true
		}
	}
	if !hasAddr {
		return nil, fmt.Errorf("%w: %s item required", ErrMalformedPayload, ItemTonAddr)
	}

	return &ConnectRequest{
		Version:  ProtocolVersion,
		ClientID: id,
		Payload:  p,
		Return:   q.Get("ret"),
	}, nil
}
