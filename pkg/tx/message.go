package tx

import (
	"errors"
	"fmt"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Send modes of a wallet message.
const (
	ModePayFeesSeparately uint8 = 1
	ModeIgnoreErrors      uint8 = 2
	ModeCarryAllBalance   uint8 = 128

	// DefaultMode is used for every message unless the transfer sends the
	// whole balance.
	DefaultMode = ModePayFeesSeparately | ModeIgnoreErrors
)

// Message errors.
var (
	ErrNoDestination = errors.New("message has no destination")
	ErrNoMessages    = errors.New("transfer has no messages")
	ErrTooManyMsgs   = errors.New("too many messages")
)

// Message is one internal message sent by the wallet.
type Message struct {
	Mode      uint8
	To        *address.Address
	Amount    tlb.Coins
	Bounce    bool
	Body      *cell.Cell
	StateInit *cell.Cell
}

// cell encodes the message as int_msg_info with addr_none source; the
// validator fills in the source, lt and fees.
func (m Message) cell() (*cell.Cell, error) {
	if m.To == nil {
		return nil, ErrNoDestination
	}
	b := cell.BeginCell().
		MustStoreUInt(0, 1).    // int_msg_info$0
		MustStoreBoolBit(true). // ihr_disabled
		MustStoreBoolBit(m.Bounce).
		MustStoreBoolBit(false). // bounced
		MustStoreAddr(nil).
		MustStoreAddr(m.To).
		MustStoreBigCoins(m.Amount.Nano()).
		MustStoreBoolBit(false). // no extra currencies
		MustStoreCoins(0).       // ihr_fee
		MustStoreCoins(0).       // fwd_fee
		MustStoreUInt(0, 64).    // created_lt
		MustStoreUInt(0, 32)     // created_at

	if m.StateInit != nil {
		b.MustStoreBoolBit(true).MustStoreBoolBit(true).MustStoreRef(m.StateInit)
	} else {
		b.MustStoreBoolBit(false)
	}
	if m.Body != nil {
		b.MustStoreBoolBit(true).MustStoreRef(m.Body)
	} else {
		b.MustStoreBoolBit(false)
	}
	return b.EndCell(), nil
}

// CommentCell encodes a text comment (op 0 + snake string).
func CommentCell(text string) (*cell.Cell, error) {
	b := cell.BeginCell().MustStoreUInt(0, 32)
	if err := b.StoreStringSnake(text); err != nil {
		return nil, fmt.Errorf("encode comment: %w", err)
	}
	return b.EndCell(), nil
}

// ParseBOC decodes a base64 or raw BOC into its root cell. Empty input
// returns nil.
func ParseBOC(data []byte) (*cell.Cell, error) {
	if len(data) == 0 {
		return nil, nil
	}
	c, err := cell.FromBOC(data)
	if err != nil {
		return nil, fmt.Errorf("decode boc: %w", err)
	}
	return c, nil
}
