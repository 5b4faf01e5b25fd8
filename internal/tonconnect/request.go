package tonconnect

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/tonkeeper/tonkeeper-core/internal/store"
	"github.com/tonkeeper/tonkeeper-core/internal/tonapi"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
	"github.com/tonkeeper/tonkeeper-core/pkg/tx"
)

// RequestState is the lifecycle of a sendTransaction request.
type RequestState int

const (
	RequestPending RequestState = iota
	RequestEmulated
	RequestSent
	RequestRejected
	RequestCancelled
	RequestFailed
)

var requestStateNames = map[RequestState]string{
	RequestPending:   "pending",
	RequestEmulated:  "emulated",
	RequestSent:      "sent",
	RequestRejected:  "rejected",
	RequestCancelled: "cancelled",
	RequestFailed:    "failed",
}

func (s RequestState) String() string {
	if n, ok := requestStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("RequestState(%d)", int(s))
}

// Terminal reports whether no further transition can happen.
func (s RequestState) Terminal() bool {
	return s >= RequestSent
}

// MessageParam is one message of a sendTransaction request. Amount is in
// nanotons; Payload and StateInit are base64 BOCs.
type MessageParam struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	Payload   string `json:"payload,omitempty"`
	StateInit string `json:"stateInit,omitempty"`
}

// SendTransactionParam is the sendTransaction request body.
type SendTransactionParam struct {
	// ValidUntil is a unix time in seconds; 0 means no limit from the app.
	ValidUntil int64          `json:"valid_until"`
	Network    string         `json:"network,omitempty"`
	From       string         `json:"from,omitempty"`
	Messages   []MessageParam `json:"messages"`
}

// Request is a snapshot of a sendTransaction request.
type Request struct {
	ID         uuid.UUID
	WalletID   string
	ClientID   string
	AppName    string
	Messages   []tx.RawMessage
	ValidUntil time.Time
	State      RequestState
	Emulation  *tonapi.Emulation
	// Hash and BOC of the broadcast message, set once Sent.
	Hash []byte
	BOC  []byte
	Err  error
}

// Fee is the emulated fee, zero before emulation.
func (r Request) Fee() tlb.Coins {
	if r.Emulation == nil {
		return tlb.ZeroCoins
	}
	return r.Emulation.Fee
}

func decodeBOC(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// decodeMessages validates param for w and returns the raw messages and the
// deadline (zero when the app set none).
func decodeMessages(param SendTransactionParam, w wallet.Wallet, now time.Time) ([]tx.RawMessage, time.Time, error) {
	var deadline time.Time
	if param.ValidUntil != 0 {
		deadline = time.Unix(param.ValidUntil, 0)
		if !now.Before(deadline) {
			return nil, deadline, fmt.Errorf("%w: valid until %s", ErrRequestExpired, deadline.UTC().Format(time.RFC3339))
		}
	}
	if param.Network != "" && param.Network != w.Identity.Network.ChainID() {
		return nil, deadline, fmt.Errorf("%w: network %s, wallet is on %s", ErrMalformedPayload, param.Network, w.Identity.Network)
	}
	if param.From != "" {
		from, err := store.ParseAddress(param.From)
		if err != nil {
			return nil, deadline, fmt.Errorf("%w: from: %v", ErrMalformedPayload, err)
		}
		self, err := w.Address()
		if err != nil {
			return nil, deadline, err
		}
		if from.StringRaw() != self.StringRaw() {
			return nil, deadline, fmt.Errorf("%w: request is for another wallet", ErrMalformedPayload)
		}
	}
	if len(param.Messages) == 0 || len(param.Messages) > tx.MaxMessages {
		return nil, deadline, fmt.Errorf("%w: %d messages", ErrMalformedPayload, len(param.Messages))
	}

	msgs := make([]tx.RawMessage, 0, len(param.Messages))
	for i, m := range param.Messages {
		to, err := store.ParseAddress(strings.TrimSpace(m.Address))
		if err != nil {
			return nil, deadline, fmt.Errorf("%w: message %d address: %v", ErrMalformedPayload, i, err)
		}
		amount, ok := new(big.Int).SetString(m.Amount, 10)
		if !ok || amount.Sign() < 0 {
			return nil, deadline, fmt.Errorf("%w: message %d amount %q", ErrMalformedPayload, i, m.Amount)
		}
		payload, err := decodeBOC(m.Payload)
		if err != nil {
			return nil, deadline, fmt.Errorf("%w: message %d payload: %v", ErrMalformedPayload, i, err)
		}
		init, err := decodeBOC(m.StateInit)
		if err != nil {
			return nil, deadline, fmt.Errorf("%w: message %d state init: %v", ErrMalformedPayload, i, err)
		}
		msgs = append(msgs, tx.RawMessage{To: to, Amount: tlb.FromNanoTON(amount), Payload: payload, StateInit: init})
	}
	return msgs, deadline, nil
}

// AppRequest is a decrypted bridge message from an app.
type AppRequest struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// Bridge methods.
const (
	MethodSendTransaction = "sendTransaction"
	MethodDisconnect      = "disconnect"
)

// ErrUnsupportedMethod is returned for app requests the wallet does not
// handle.
var ErrUnsupportedMethod = errors.New("method not supported")

// SendTransaction decodes the parameter of a sendTransaction request.
func (r *AppRequest) SendTransaction() (SendTransactionParam, error) {
	var p SendTransactionParam
	if r.Method != MethodSendTransaction || len(r.Params) != 1 {
		return p, fmt.Errorf("%w: not a %s request", ErrMalformedPayload, MethodSendTransaction)
	}
	if err := json.Unmarshal([]byte(r.Params[0]), &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return p, nil
}
