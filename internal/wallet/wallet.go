package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tonwallet "github.com/xssnick/tonutils-go/ton/wallet"
)

// Revision is the wallet smart-contract revision.
type Revision string

const (
	RevisionV3R2 Revision = "v3R2"
	RevisionV4R2 Revision = "v4R2"
)

// DefaultSubwallet is the subwallet id used by standard wallets on workchain 0.
const DefaultSubwallet = tonwallet.DefaultSubwallet

// ErrUnknownRevision is returned for revisions the builder cannot encode.
var ErrUnknownRevision = errors.New("unknown wallet revision")

// Version maps the revision to the contract config used for address and
// state-init computation.
func (r Revision) Version() (tonwallet.Version, error) {
	switch r {
	case RevisionV3R2:
		return tonwallet.V3R2, nil
	case RevisionV4R2:
		return tonwallet.V4R2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRevision, string(r))
	}
}

// HasOpByte reports whether the signing payload carries the v4 op byte.
func (r Revision) HasOpByte() bool {
	return r == RevisionV4R2
}

// Network distinguishes mainnet and testnet wallets.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ChainID returns the TonConnect network id ("-239" mainnet, "-3" testnet).
func (n Network) ChainID() string {
	if n == Testnet {
		return "-3"
	}
	return "-239"
}

// Identity is what makes two wallets the same wallet.
type Identity struct {
	PublicKey []byte   `json:"public_key"`
	Revision  Revision `json:"revision"`
	Network   Network  `json:"network"`
}

// Metadata is user-facing decoration.
type Metadata struct {
	Label string `json:"label"`
	Emoji string `json:"emoji,omitempty"`
	Tint  string `json:"tint,omitempty"`
}

// SetupSettings tracks onboarding state.
type SetupSettings struct {
	BackupDate *time.Time `json:"backup_date,omitempty"`
}

// NotificationSettings holds push preferences.
type NotificationSettings struct {
	Enabled bool `json:"enabled"`
}

// Wallet is an immutable value. Updates build a new value with the With*
// helpers and go through the wallets store.
type Wallet struct {
	Identity      Identity             `json:"identity"`
	Metadata      Metadata             `json:"metadata"`
	Setup         SetupSettings        `json:"setup"`
	Notifications NotificationSettings `json:"notifications"`
}

// New returns a wallet for the given key, revision and network.
func New(key WalletKey, rev Revision, network Network, label string) Wallet {
	pub := make([]byte, len(key.PublicKey))
	copy(pub, key.PublicKey)
	return Wallet{
		Identity: Identity{PublicKey: pub, Revision: rev, Network: network},
		Metadata: Metadata{Label: label},
	}
}

// ID identifies the wallet across stores and the TonConnect registry.
func (w Wallet) ID() string {
	return fmt.Sprintf("%s:%s:%s", w.Key().ID(), w.Identity.Revision, w.Identity.Network)
}

// Key returns the wallet key backing this wallet.
func (w Wallet) Key() WalletKey {
	return WalletKey{PublicKey: w.Identity.PublicKey, Name: w.Metadata.Label}
}

// IsTestnet reports whether the wallet lives on testnet.
func (w Wallet) IsTestnet() bool {
	return w.Identity.Network == Testnet
}

// Address computes the wallet contract address (non-bounceable form for
// display is the caller's choice).
func (w Wallet) Address() (*address.Address, error) {
	if len(w.Identity.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("wallet public key must be %d bytes, got %d", ed25519.PublicKeySize, len(w.Identity.PublicKey))
	}
	ver, err := w.Identity.Revision.Version()
	if err != nil {
		return nil, err
	}
	addr, err := tonwallet.AddressFromPubKey(ed25519.PublicKey(w.Identity.PublicKey), ver, DefaultSubwallet)
	if err != nil {
		return nil, fmt.Errorf("wallet address: %w", err)
	}
	addr.SetTestnetOnly(w.IsTestnet())
	return addr, nil
}

// StateInit returns the code and data the wallet contract is deployed with.
func (w Wallet) StateInit() (*tlb.StateInit, error) {
	if len(w.Identity.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("wallet public key must be %d bytes, got %d", ed25519.PublicKeySize, len(w.Identity.PublicKey))
	}
	ver, err := w.Identity.Revision.Version()
	if err != nil {
		return nil, err
	}
	init, err := tonwallet.GetStateInit(ed25519.PublicKey(w.Identity.PublicKey), ver, DefaultSubwallet)
	if err != nil {
		return nil, fmt.Errorf("wallet state init: %w", err)
	}
	return init, nil
}

// StateInitBOC is StateInit serialized as a bag of cells.
func (w Wallet) StateInitBOC() ([]byte, error) {
	init, err := w.StateInit()
	if err != nil {
		return nil, err
	}
	c, err := tlb.ToCell(init)
	if err != nil {
		return nil, fmt.Errorf("encode state init: %w", err)
	}
	return c.ToBOC(), nil
}

// WithMetadata returns a copy with new metadata.
func (w Wallet) WithMetadata(m Metadata) Wallet {
	w.Metadata = m
	return w
}

// WithBackupDate returns a copy marked as backed up at t.
func (w Wallet) WithBackupDate(t time.Time) Wallet {
	t = t.UTC()
	w.Setup.BackupDate = &t
	return w
}

// WithNotifications returns a copy with new notification settings.
func (w Wallet) WithNotifications(n NotificationSettings) Wallet {
	w.Notifications = n
	return w
}
