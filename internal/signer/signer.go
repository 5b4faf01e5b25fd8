// Package signer provides the ways a wallet can sign: with a mnemonic from
// the local vault, on an external device, or behind a user approval step.
package signer

import (
	"context"
	"fmt"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/vault"
	"github.com/tonkeeper/tonkeeper-core/pkg/tx"
)

// PasswordFunc asks the user for the vault password. Returning nil with no
// error means the user dismissed the prompt.
type PasswordFunc func(ctx context.Context) ([]byte, error)

// StaticPassword returns a PasswordFunc that always answers with a copy of p.
func StaticPassword(p []byte) PasswordFunc {
	return func(context.Context) ([]byte, error) {
		return append([]byte(nil), p...), nil
	}
}

// Vault signs with the mnemonic stored in the local vault. The password is
// asked for on every signature and cleared right after.
type Vault struct {
	vault    *vault.Vault
	keyID    string
	password PasswordFunc
}

// NewVault creates a vault signer for keyID.
func NewVault(v *vault.Vault, keyID string, password PasswordFunc) *Vault {
	return &Vault{vault: v, keyID: keyID, password: password}
}

// Sign implements tx.Signer. A dismissed password prompt declines.
func (s *Vault) Sign(ctx context.Context, t *tx.UnsignedTransfer) ([]byte, error) {
	return s.SignBytes(ctx, t.SigningHash())
}

// SignBytes signs an arbitrary message, e.g. a TonConnect proof hash.
func (s *Vault) SignBytes(ctx context.Context, msg []byte) ([]byte, error) {
	pw, err := s.password(ctx)
	if err != nil {
		return nil, err
	}
	if pw == nil {
		return nil, nil
	}
	defer vault.ZeroPassword(pw)

	// Wait out any re-encryption of the same key.
	var sig []byte
	err = s.vault.Queue().Do(ctx, s.keyID, func() error {
		var err error
		sig, err = s.vault.Sign(s.keyID, pw, msg)
		return err
	})
	if err != nil {
		log.WithKeyID(s.keyID).Warn().Err(err).Msg("Vault signing failed")
		return nil, fmt.Errorf("vault sign: %w", err)
	}
	return sig, nil
}
