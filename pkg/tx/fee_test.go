package tx

import "testing"

func TestWithdrawalFee(t *testing.T) {
	tests := []struct {
		kind Implementation
		want uint64
	}{
		{LiquidTF, 1_000_000_000},
		{TF, 1_000_000_000},
		{Whales, 200_000_000},
		{"unknown", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := WithdrawalFee(tt.kind); got != tt.want {
				t.Errorf("WithdrawalFee(%q) = %d, want %d", tt.kind, got, tt.want)
			}
			if got := WithdrawalFeeCoins(tt.kind).Nano().Uint64(); got != tt.want {
				t.Errorf("WithdrawalFeeCoins(%q) = %d, want %d", tt.kind, got, tt.want)
			}
			if tt.kind.Valid() != (tt.want != 0) {
				t.Errorf("Valid(%q) = %v", tt.kind, tt.kind.Valid())
			}
		})
	}
}

func TestFixedAmounts(t *testing.T) {
	if DNSOperationAmount != 20_000_000 {
		t.Errorf("DNSOperationAmount = %d", DNSOperationAmount)
	}
	if JettonTransferAmount != 50_000_000 {
		t.Errorf("JettonTransferAmount = %d", JettonTransferAmount)
	}
	if JettonForwardAmount != 1 {
		t.Errorf("JettonForwardAmount = %d", JettonForwardAmount)
	}
}
