package tx

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Operation codes of the message bodies built here.
const (
	OpJettonTransfer   uint64 = 0x0f8a7ea5
	OpJettonBurn       uint64 = 0x595f07bc
	OpChangeDNSRecord  uint64 = 0x4eb1f0f9
	OpLiquidTFDeposit  uint64 = 0x47d54391
	OpWhalesDeposit    uint64 = 2077040623
	OpWhalesWithdraw   uint64 = 3665837821
	opDNSSmcAddress    uint64 = 0x9fd3
	tfDepositComment          = "d"
	tfWithdrawComment         = "w"
	dnsWalletRecordKey        = "wallet"
)

// Payload errors.
var (
	ErrBelowMinStake     = errors.New("amount below pool minimum stake")
	ErrUnknownPool       = errors.New("unknown staking implementation")
	ErrNoLiquidJetton    = errors.New("liquid pool withdrawal needs the pool jetton wallet")
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// QueryID returns a fresh query id: unix seconds in the high half, random
// low half.
func QueryID() uint64 {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return uint64(time.Now().Unix())<<32 | uint64(binary.BigEndian.Uint32(buf[:]))
}

// JettonTransfer moves jettons from the wallet's jetton wallet.
type JettonTransfer struct {
	// JettonWallet is the sender's jetton wallet contract.
	JettonWallet *address.Address
	To           *address.Address
	// ResponseTo receives the excess TON; the sending wallet when nil.
	ResponseTo *address.Address
	Amount     *big.Int
	Comment    string
	// CustomPayload and StateInit are passed through when set, e.g. for
	// jettons that need a claim proof or an undeployed jetton wallet.
	CustomPayload *cell.Cell
	StateInit     *cell.Cell
	// Attached defaults to JettonTransferAmount.
	Attached tlb.Coins
	// Forward defaults to JettonForwardAmount with a comment, 0 without.
	Forward tlb.Coins
	QueryID uint64
}

func jettonTransferBody(j JettonTransfer, responseTo *address.Address) (*cell.Cell, error) {
	if j.Amount == nil || j.Amount.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	forward := j.Forward.Nano()
	var forwardPayload *cell.Cell
	if j.Comment != "" {
		c, err := CommentCell(j.Comment)
		if err != nil {
			return nil, err
		}
		forwardPayload = c
		if forward.Sign() == 0 {
			forward = new(big.Int).SetUint64(JettonForwardAmount)
		}
	}
	qid := j.QueryID
	if qid == 0 {
		qid = QueryID()
	}

	b := cell.BeginCell().
		MustStoreUInt(OpJettonTransfer, 32).
		MustStoreUInt(qid, 64).
		MustStoreBigCoins(j.Amount).
		MustStoreAddr(j.To).
		MustStoreAddr(responseTo).
		MustStoreMaybeRef(j.CustomPayload).
		MustStoreBigCoins(forward)
	if forwardPayload != nil {
		b.MustStoreBoolBit(true).MustStoreRef(forwardPayload)
	} else {
		b.MustStoreBoolBit(false)
	}
	return b.EndCell(), nil
}

// DNSChange updates or renews a .ton domain record.
type DNSChange struct {
	// Domain is the NFT item contract of the domain.
	Domain *address.Address
	// Wallet is the new wallet record; nil with Renew only.
	Wallet  *address.Address
	QueryID uint64
}

// dnsKey hashes a record name into the 256-bit record key.
func dnsKey(name string) *big.Int {
	h := sha256.Sum256([]byte(name))
	return new(big.Int).SetBytes(h[:])
}

func dnsChangeBody(key *big.Int, value *cell.Cell, qid uint64) *cell.Cell {
	if qid == 0 {
		qid = QueryID()
	}
	return cell.BeginCell().
		MustStoreUInt(OpChangeDNSRecord, 32).
		MustStoreUInt(qid, 64).
		MustStoreBigUInt(key, 256).
		MustStoreMaybeRef(value).
		EndCell()
}

// dnsRenewBody touches the domain with key 0 and no value, which extends it.
func dnsRenewBody(qid uint64) *cell.Cell {
	return dnsChangeBody(big.NewInt(0), nil, qid)
}

func dnsWalletBody(wallet *address.Address, qid uint64) *cell.Cell {
	value := cell.BeginCell().
		MustStoreUInt(opDNSSmcAddress, 16).
		MustStoreAddr(wallet).
		MustStoreUInt(0, 8).
		EndCell()
	return dnsChangeBody(dnsKey(dnsWalletRecordKey), value, qid)
}

// StakingPool is read-only reference data about a pool.
type StakingPool struct {
	Address        *address.Address
	Name           string
	Implementation Implementation
	APY            float64
	MinStake       tlb.Coins
	// LiquidJettonMaster is the pool token of liquid pools.
	LiquidJettonMaster *address.Address
}

// StakeWithdraw describes a withdrawal request.
type StakeWithdraw struct {
	Pool StakingPool
	// Amount to withdraw; zero withdraws everything for Whales pools. For
	// liquid pools it is the number of pool tokens to burn.
	Amount tlb.Coins
	// LiquidJettonWallet is the wallet's pool-token jetton wallet, required
	// for liquid pools.
	LiquidJettonWallet *address.Address
	QueryID            uint64
}

func stakeDepositMessage(pool StakingPool, amount tlb.Coins, qid uint64) (Message, error) {
	if amount.Nano().Sign() <= 0 {
		return Message{}, ErrNonPositiveAmount
	}
	if min := pool.MinStake.Nano(); min.Sign() > 0 && amount.Nano().Cmp(min) < 0 {
		return Message{}, fmt.Errorf("%w: %s < %s", ErrBelowMinStake, amount.String(), pool.MinStake.String())
	}
	if qid == 0 {
		qid = QueryID()
	}

	var body *cell.Cell
	switch pool.Implementation {
	case Whales:
		body = cell.BeginCell().
			MustStoreUInt(OpWhalesDeposit, 32).
			MustStoreUInt(qid, 64).
			MustStoreCoins(WhalesGasLimit).
			EndCell()
	case TF:
		c, err := CommentCell(tfDepositComment)
		if err != nil {
			return Message{}, err
		}
		body = c
	case LiquidTF:
		body = cell.BeginCell().
			MustStoreUInt(OpLiquidTFDeposit, 32).
			MustStoreUInt(qid, 64).
			EndCell()
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownPool, pool.Implementation)
	}
	return Message{Mode: DefaultMode, To: pool.Address, Amount: amount, Bounce: true, Body: body}, nil
}

func stakeWithdrawMessage(w StakeWithdraw, responseTo *address.Address) (Message, error) {
	qid := w.QueryID
	if qid == 0 {
		qid = QueryID()
	}
	fee := WithdrawalFeeCoins(w.Pool.Implementation)

	switch w.Pool.Implementation {
	case Whales:
		body := cell.BeginCell().
			MustStoreUInt(OpWhalesWithdraw, 32).
			MustStoreUInt(qid, 64).
			MustStoreCoins(WhalesGasLimit).
			MustStoreBigCoins(w.Amount.Nano()).
			EndCell()
		return Message{Mode: DefaultMode, To: w.Pool.Address, Amount: fee, Bounce: true, Body: body}, nil
	case TF:
		body, err := CommentCell(tfWithdrawComment)
		if err != nil {
			return Message{}, err
		}
		return Message{Mode: DefaultMode, To: w.Pool.Address, Amount: fee, Bounce: true, Body: body}, nil
	case LiquidTF:
		if w.LiquidJettonWallet == nil {
			return Message{}, ErrNoLiquidJetton
		}
		if w.Amount.Nano().Sign() <= 0 {
			return Message{}, ErrNonPositiveAmount
		}
		// Withdrawal options: wait till round end = 0, fill or kill = 0.
		opts := cell.BeginCell().MustStoreUInt(0, 1).MustStoreUInt(0, 1).EndCell()
		body := cell.BeginCell().
			MustStoreUInt(OpJettonBurn, 32).
			MustStoreUInt(qid, 64).
			MustStoreBigCoins(w.Amount.Nano()).
			MustStoreAddr(responseTo).
			MustStoreMaybeRef(opts).
			EndCell()
		return Message{Mode: DefaultMode, To: w.LiquidJettonWallet, Amount: fee, Bounce: true, Body: body}, nil
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownPool, w.Pool.Implementation)
	}
}
