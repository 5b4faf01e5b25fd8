package tx

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
	"github.com/tonkeeper/tonkeeper-core/pkg/crypto"
)

// MaxMessages is the number of internal messages a v3/v4 wallet accepts in
// one external message.
const MaxMessages = 4

// DefaultTimeout is how long a signed message stays valid.
const DefaultTimeout = 5 * time.Minute

// Signing errors.
var (
	ErrUserRejected = errors.New("signing rejected")
	ErrBadSignature = errors.New("invalid signature")
	ErrStale        = errors.New("signed message expired")
)

// Signer produces an ed25519 signature over the signing hash of an unsigned
// transfer. A nil or empty signature with a nil error means the user
// declined.
type Signer interface {
	Sign(ctx context.Context, t *UnsignedTransfer) ([]byte, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, t *UnsignedTransfer) ([]byte, error)

// Sign calls f.
func (f SignerFunc) Sign(ctx context.Context, t *UnsignedTransfer) ([]byte, error) {
	return f(ctx, t)
}

// Transfer is a plain TON transfer.
type Transfer struct {
	To      *address.Address
	Amount  tlb.Coins
	Comment string
	// SendAll carries the whole remaining balance; Amount is ignored.
	SendAll bool
	// Body replaces the comment when set.
	Body      *cell.Cell
	StateInit *cell.Cell
}

// RawMessage is a message given as BOCs, as TonConnect apps send them.
type RawMessage struct {
	To        *address.Address
	Amount    tlb.Coins
	Payload   []byte
	StateInit []byte
}

// UnsignedTransfer is what a Signer is asked to sign.
type UnsignedTransfer struct {
	Wallet     wallet.Wallet
	Address    *address.Address
	Seqno      uint32
	ValidUntil time.Time
	Messages   []Message
	// Payload is the cell the wallet contract checks the signature against.
	Payload *cell.Cell
}

// SigningHash is the hash the signature covers.
func (u *UnsignedTransfer) SigningHash() []byte {
	return u.Payload.Hash()
}

// SignedMessage is a ready-to-broadcast external message.
type SignedMessage struct {
	Address    *address.Address
	Seqno      uint32
	ValidUntil time.Time
	Cell       *cell.Cell
	BOC        []byte
	// Hash is the external message hash, used to track the transaction.
	Hash []byte
}

// Stale reports whether the message can no longer be accepted at now.
func (m *SignedMessage) Stale(now time.Time) bool {
	return !now.Before(m.ValidUntil)
}

// Builder assembles a wallet external message. Add* calls record the first
// error, which Build returns.
type Builder struct {
	Wallet  wallet.Wallet
	Seqno   uint32
	Timeout time.Duration
	// ValidUntil, when set, fixes the expiry of the message and overrides
	// Timeout, so every Unsigned call yields the same payload.
	ValidUntil time.Time
	// Now defaults to time.Now.
	Now func() time.Time

	msgs []Message
	err  error
}

// NewBuilder creates a builder for w at seqno.
func NewBuilder(w wallet.Wallet, seqno uint32) *Builder {
	return &Builder{Wallet: w, Seqno: seqno, Timeout: DefaultTimeout}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) add(m Message) *Builder {
	if b.err != nil {
		return b
	}
	if m.To == nil {
		return b.fail(ErrNoDestination)
	}
	if len(b.msgs) == MaxMessages {
		return b.fail(fmt.Errorf("%w: max %d", ErrTooManyMsgs, MaxMessages))
	}
	b.msgs = append(b.msgs, m)
	return b
}

func (b *Builder) self() (*address.Address, error) {
	return b.Wallet.Address()
}

// Messages returns the messages added so far.
func (b *Builder) Messages() []Message {
	return append([]Message(nil), b.msgs...)
}

// AddTransfer adds a TON transfer. Bounce follows the destination address
// flag.
func (b *Builder) AddTransfer(t Transfer) *Builder {
	if t.To == nil {
		return b.fail(ErrNoDestination)
	}
	m := Message{
		Mode:      DefaultMode,
		To:        t.To,
		Amount:    t.Amount,
		Bounce:    t.To.IsBounceable(),
		Body:      t.Body,
		StateInit: t.StateInit,
	}
	if t.SendAll {
		m.Mode = ModeCarryAllBalance | ModeIgnoreErrors
		m.Amount = tlb.ZeroCoins
	}
	if m.Body == nil && t.Comment != "" {
		c, err := CommentCell(t.Comment)
		if err != nil {
			return b.fail(err)
		}
		m.Body = c
	}
	return b.add(m)
}

// AddJettonTransfer adds a jetton transfer sent to the wallet's jetton
// wallet.
func (b *Builder) AddJettonTransfer(j JettonTransfer) *Builder {
	if b.err != nil {
		return b
	}
	if j.JettonWallet == nil || j.To == nil {
		return b.fail(ErrNoDestination)
	}
	resp := j.ResponseTo
	if resp == nil {
		self, err := b.self()
		if err != nil {
			return b.fail(err)
		}
		resp = self
	}
	body, err := jettonTransferBody(j, resp)
	if err != nil {
		return b.fail(err)
	}
	attached := j.Attached
	if attached.Nano().Sign() == 0 {
		attached = tlb.FromNanoTONU(JettonTransferAmount)
	}
	return b.add(Message{
		Mode:      DefaultMode,
		To:        j.JettonWallet,
		Amount:    attached,
		Bounce:    true,
		Body:      body,
		StateInit: j.StateInit,
	})
}

// AddStakeDeposit adds a deposit of amount into pool.
func (b *Builder) AddStakeDeposit(pool StakingPool, amount tlb.Coins) *Builder {
	if b.err != nil {
		return b
	}
	if pool.Address == nil {
		return b.fail(ErrNoDestination)
	}
	m, err := stakeDepositMessage(pool, amount, 0)
	if err != nil {
		return b.fail(err)
	}
	return b.add(m)
}

// AddStakeWithdraw adds a withdrawal request. The attached value is the
// pool's fixed withdrawal fee.
func (b *Builder) AddStakeWithdraw(w StakeWithdraw) *Builder {
	if b.err != nil {
		return b
	}
	if w.Pool.Address == nil {
		return b.fail(ErrNoDestination)
	}
	self, err := b.self()
	if err != nil {
		return b.fail(err)
	}
	m, err := stakeWithdrawMessage(w, self)
	if err != nil {
		return b.fail(err)
	}
	return b.add(m)
}

// AddDNSChange points the wallet record of a domain at d.Wallet.
func (b *Builder) AddDNSChange(d DNSChange) *Builder {
	if d.Domain == nil || d.Wallet == nil {
		return b.fail(ErrNoDestination)
	}
	return b.add(Message{
		Mode:   DefaultMode,
		To:     d.Domain,
		Amount: tlb.FromNanoTONU(DNSOperationAmount),
		Bounce: true,
		Body:   dnsWalletBody(d.Wallet, d.QueryID),
	})
}

// AddDNSRenew extends the domain's lease.
func (b *Builder) AddDNSRenew(d DNSChange) *Builder {
	if d.Domain == nil {
		return b.fail(ErrNoDestination)
	}
	return b.add(Message{
		Mode:   DefaultMode,
		To:     d.Domain,
		Amount: tlb.FromNanoTONU(DNSOperationAmount),
		Bounce: true,
		Body:   dnsRenewBody(d.QueryID),
	})
}

// AddRaw adds a message given as BOCs.
func (b *Builder) AddRaw(r RawMessage) *Builder {
	if b.err != nil {
		return b
	}
	if r.To == nil {
		return b.fail(ErrNoDestination)
	}
	body, err := ParseBOC(r.Payload)
	if err != nil {
		return b.fail(fmt.Errorf("payload: %w", err))
	}
	init, err := ParseBOC(r.StateInit)
	if err != nil {
		return b.fail(fmt.Errorf("state init: %w", err))
	}
	return b.add(Message{
		Mode:      DefaultMode,
		To:        r.To,
		Amount:    r.Amount,
		Bounce:    r.To.IsBounceable(),
		Body:      body,
		StateInit: init,
	})
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Unsigned assembles the signing payload.
func (b *Builder) Unsigned() (*UnsignedTransfer, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.msgs) == 0 {
		return nil, ErrNoMessages
	}
	self, err := b.self()
	if err != nil {
		return nil, err
	}
	validUntil := b.ValidUntil
	if validUntil.IsZero() {
		timeout := b.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		validUntil = b.now().Add(timeout)
	}
	validUntil = validUntil.Truncate(time.Second)

	p := cell.BeginCell().
		MustStoreUInt(uint64(wallet.DefaultSubwallet), 32).
		MustStoreUInt(uint64(validUntil.Unix()), 32).
		MustStoreUInt(uint64(b.Seqno), 32)
	if b.Wallet.Identity.Revision.HasOpByte() {
		p.MustStoreUInt(0, 8)
	}
	for _, m := range b.msgs {
		c, err := m.cell()
		if err != nil {
			return nil, err
		}
		p.MustStoreUInt(uint64(m.Mode), 8).MustStoreRef(c)
	}

	return &UnsignedTransfer{
		Wallet:     b.Wallet,
		Address:    self,
		Seqno:      b.Seqno,
		ValidUntil: validUntil,
		Messages:   b.Messages(),
		Payload:    p.EndCell(),
	}, nil
}

// Build asks signer for a signature and returns the external message.
func (b *Builder) Build(ctx context.Context, signer Signer) (*SignedMessage, error) {
	u, err := b.Unsigned()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig, err := signer.Sign(ctx, u)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUserRejected, err)
	}
	if len(sig) == 0 {
		return nil, ErrUserRejected
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadSignature, len(sig))
	}
	if !crypto.VerifySignature(u.SigningHash(), sig, b.Wallet.Identity.PublicKey) {
		return nil, ErrBadSignature
	}

	m, err := b.external(u, sig)
	if err != nil {
		return nil, err
	}
	log.Builder.Debug().
		Uint32("seqno", m.Seqno).
		Int("messages", len(u.Messages)).
		Hex("hash", m.Hash).
		Msg("Message signed")
	return m, nil
}

// Preview builds the external message with an all-zero signature. It is
// only good for emulation and fee estimation.
func (b *Builder) Preview() (*SignedMessage, error) {
	u, err := b.Unsigned()
	if err != nil {
		return nil, err
	}
	return b.external(u, make([]byte, ed25519.SignatureSize))
}

// FeeQuery returns the inputs of a fee estimate for the previewed message:
// the body BOC and, for an undeployed wallet, the init code and data BOCs.
func (b *Builder) FeeQuery() (addr *address.Address, body, code, data []byte, err error) {
	u, err := b.Unsigned()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	bodyCell := signedBody(u, make([]byte, ed25519.SignatureSize))
	if b.Seqno == 0 {
		init, err := b.stateInit()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		code, data = init.Code.ToBOC(), init.Data.ToBOC()
	}
	return u.Address, bodyCell.ToBOC(), code, data, nil
}

func (b *Builder) stateInit() (*tlb.StateInit, error) {
	return b.Wallet.StateInit()
}

func signedBody(u *UnsignedTransfer, sig []byte) *cell.Cell {
	return cell.BeginCell().
		MustStoreSlice(sig, 512).
		MustStoreBuilder(u.Payload.ToBuilder()).
		EndCell()
}

// external wraps the signed body into ext_in_msg_info with the state init
// when the wallet is not deployed yet.
func (b *Builder) external(u *UnsignedTransfer, sig []byte) (*SignedMessage, error) {
	ext := cell.BeginCell().
		MustStoreUInt(0b10, 2).
		MustStoreAddr(nil).
		MustStoreAddr(u.Address).
		MustStoreCoins(0)

	if u.Seqno == 0 {
		init, err := b.stateInit()
		if err != nil {
			return nil, err
		}
		initCell, err := tlb.ToCell(init)
		if err != nil {
			return nil, fmt.Errorf("encode state init: %w", err)
		}
		ext.MustStoreBoolBit(true).MustStoreBoolBit(true).MustStoreRef(initCell)
	} else {
		ext.MustStoreBoolBit(false)
	}
	ext.MustStoreBoolBit(true).MustStoreRef(signedBody(u, sig))

	c := ext.EndCell()
	return &SignedMessage{
		Address:    u.Address,
		Seqno:      u.Seqno,
		ValidUntil: u.ValidUntil,
		Cell:       c,
		BOC:        c.ToBOC(),
		Hash:       c.Hash(),
	}, nil
}
