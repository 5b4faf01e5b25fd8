package tx

import (
	"github.com/xssnick/tonutils-go/tlb"
)

// Fixed protocol amounts, in nanotons.
const (
	// DNSOperationAmount is attached to every DNS record change or renewal.
	DNSOperationAmount uint64 = 20_000_000
	// JettonTransferAmount is attached to a jetton transfer when the caller
	// sets nothing else.
	JettonTransferAmount uint64 = 50_000_000
	// JettonForwardAmount is forwarded to the recipient when the transfer
	// carries a comment, so the notification reaches them.
	JettonForwardAmount uint64 = 1

	// WhalesGasLimit is the gas limit field of Whales pool messages.
	WhalesGasLimit uint64 = 100_000
)

// Implementation is the kind of staking pool contract.
type Implementation string

const (
	LiquidTF Implementation = "liquidTF"
	TF       Implementation = "tf"
	Whales   Implementation = "whales"
)

// withdrawalFees is the fee the pool keeps for processing a withdrawal.
var withdrawalFees = map[Implementation]uint64{
	LiquidTF: 1_000_000_000,
	TF:       1_000_000_000,
	Whales:   200_000_000,
}

// WithdrawalFee returns the fixed withdrawal fee of kind in nanotons, or 0
// for an unknown kind.
func WithdrawalFee(kind Implementation) uint64 {
	return withdrawalFees[kind]
}

// WithdrawalFeeCoins is WithdrawalFee as coins.
func WithdrawalFeeCoins(kind Implementation) tlb.Coins {
	return tlb.FromNanoTONU(WithdrawalFee(kind))
}

// Valid reports whether kind is a known implementation.
func (kind Implementation) Valid() bool {
	_, ok := withdrawalFees[kind]
	return ok
}
