package signer

import (
	"context"

	"github.com/tonkeeper/tonkeeper-core/pkg/tx"
)

// ApproveFunc shows the transfer to the user and reports the decision.
type ApproveFunc func(ctx context.Context, t *tx.UnsignedTransfer) (bool, error)

// Approval asks the user to confirm before handing the transfer to the next
// signer.
type Approval struct {
	approve ApproveFunc
	next    tx.Signer
}

// NewApproval wraps next with a confirmation step.
func NewApproval(approve ApproveFunc, next tx.Signer) *Approval {
	return &Approval{approve: approve, next: next}
}

// Sign implements tx.Signer.
func (a *Approval) Sign(ctx context.Context, t *tx.UnsignedTransfer) ([]byte, error) {
	ok, err := a.approve(ctx, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return a.next.Sign(ctx, t)
}
