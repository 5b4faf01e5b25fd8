// Package vault stores seed phrases encrypted under a user password.
//
// Entries live in one storage namespace per format version ("v2/", "v3/",
// "v4/"), keyed by the wallet key id. New entries are always written in the
// current version; older namespaces are only read during migration.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/storage"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
	"github.com/tonkeeper/tonkeeper-core/pkg/crypto"
)

// MinPasswordLength is the shortest accepted password (a 4 digit passcode).
const MinPasswordLength = 4

// vaultSlot is the queue key of operations that change which keys exist or
// which password they open with. It sorts before every hex key id.
const vaultSlot = "#vault"

// Vault errors.
var (
	ErrKeyNotFound      = errors.New("key not found in vault")
	ErrPasswordTooShort = errors.New("password too short")
)

// Vault is the encrypted mnemonic store.
type Vault struct {
	db      storage.DB
	spaces  map[Version]*storage.PrefixDB
	current Version
	params  Params
	queue   *KeyQueue
}

// Option configures a Vault.
type Option func(*Vault)

// WithParams sets the scrypt parameters for new entries.
func WithParams(p Params) Option {
	return func(v *Vault) { v.params = p }
}

// WithCurrentVersion sets the version new entries are written in.
// Only tests that prepare legacy vaults need it.
func WithCurrentVersion(ver Version) Option {
	return func(v *Vault) { v.current = ver }
}

// New creates a vault over db.
func New(db storage.DB, opts ...Option) *Vault {
	v := &Vault{
		db:      db,
		spaces:  make(map[Version]*storage.PrefixDB),
		current: CurrentVersion,
		params:  DefaultParams(),
		queue:   NewKeyQueue(),
	}
	for _, ver := range []Version{V2, V3, V4} {
		v.spaces[ver] = storage.NewPrefixDB(db, []byte(ver.String()+"/"))
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Current returns the version new entries are written in.
func (v *Vault) Current() Version {
	return v.current
}

// Queue exposes the per-key queue so callers can serialize their own work
// with vault re-encryption.
func (v *Vault) Queue() *KeyQueue {
	return v.queue
}

func (v *Vault) space(ver Version) (*storage.PrefixDB, error) {
	s, ok := v.spaces[ver]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, int(ver))
	}
	return s, nil
}

func checkPassword(password []byte) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: need at least %d characters", ErrPasswordTooShort, MinPasswordLength)
	}
	return nil
}

// Add encrypts m under password and stores it for key in the current
// version. Entries for the same key in older versions are removed in the
// same batch, so a key has exactly one live entry. When the vault already
// holds entries, password must open them.
func (v *Vault) Add(ctx context.Context, key wallet.WalletKey, m wallet.Mnemonic, password []byte) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	if m.IsZero() {
		return fmt.Errorf("%w: empty", wallet.ErrInvalidMnemonic)
	}
	id := key.ID()
	return v.queue.DoAll(ctx, []string{vaultSlot, id}, func() error {
		// Every entry shares one password.
		if err := v.verifyAny(password); err != nil {
			return err
		}
		words := m.Words()
		defer wipeWords(words)

		e, err := Encrypt(v.current, id, words, password, v.params)
		if err != nil {
			return err
		}
		data, err := marshalEntry(e)
		if err != nil {
			return err
		}

		b := storage.NewMultiBatch(v.db)
		if err := b.Put(v.spaces[v.current], []byte(id), data); err != nil {
			return err
		}
		for ver, s := range v.spaces {
			if ver != v.current {
				if err := b.Delete(s, []byte(id)); err != nil {
					return err
				}
			}
		}
		if err := b.Commit(); err != nil {
			return fmt.Errorf("store entry: %w", err)
		}
		log.WithKeyID(id).Info().Stringer("version", v.current).Msg("Mnemonic stored")
		return nil
	})
}

// Entry returns the raw entry for keyID in version ver.
func (v *Vault) Entry(ver Version, keyID string) (*Entry, error) {
	s, err := v.space(ver)
	if err != nil {
		return nil, err
	}
	data, err := s.Get([]byte(keyID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalEntry(ver, data)
}

func (v *Vault) decryptMnemonic(ver Version, keyID string, password []byte) (wallet.Mnemonic, error) {
	e, err := v.Entry(ver, keyID)
	if err != nil {
		return wallet.Mnemonic{}, err
	}
	words, err := Decrypt(e, password)
	if err != nil {
		return wallet.Mnemonic{}, err
	}
	defer wipeWords(words)
	m, err := wallet.NewMnemonic(words)
	if err != nil {
		return wallet.Mnemonic{}, ErrAuthenticationFailed
	}
	return m, nil
}

// Mnemonic decrypts the mnemonic of keyID. The caller owns the result and
// must Wipe it when done.
func (v *Vault) Mnemonic(keyID string, password []byte) (wallet.Mnemonic, error) {
	return v.decryptMnemonic(v.current, keyID, password)
}

// Sign decrypts the mnemonic of keyID, signs msg and drops the key material
// before returning.
func (v *Vault) Sign(keyID string, password, msg []byte) ([]byte, error) {
	m, err := v.Mnemonic(keyID, password)
	if err != nil {
		return nil, err
	}
	defer m.Wipe()

	key, err := m.PrivateKey()
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return key.Sign(msg)
}

// Delete removes keyID from every version.
func (v *Vault) Delete(ctx context.Context, keyID string) error {
	return v.queue.DoAll(ctx, []string{vaultSlot, keyID}, func() error {
		b := storage.NewMultiBatch(v.db)
		for _, s := range v.spaces {
			if err := b.Delete(s, []byte(keyID)); err != nil {
				return err
			}
		}
		if err := b.Commit(); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		log.WithKeyID(keyID).Info().Msg("Mnemonic deleted")
		return nil
	})
}

// KeyIDs lists the key ids stored in version ver.
func (v *Vault) KeyIDs(ver Version) ([]string, error) {
	s, err := v.space(ver)
	if err != nil {
		return nil, err
	}
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = string(k)
	}
	return ids, nil
}

// Has reports whether keyID has an entry in version ver.
func (v *Vault) Has(ver Version, keyID string) (bool, error) {
	s, err := v.space(ver)
	if err != nil {
		return false, err
	}
	return s.Has([]byte(keyID))
}

// IsEmpty reports whether version ver holds no entries.
func (v *Vault) IsEmpty(ver Version) (bool, error) {
	ids, err := v.KeyIDs(ver)
	if err != nil {
		return false, err
	}
	return len(ids) == 0, nil
}

// Verify checks password against a stored entry. Entries of the current
// version are tried first.
func (v *Vault) Verify(password []byte) error {
	for _, ver := range v.versions() {
		ids, err := v.KeyIDs(ver)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			continue
		}
		words, err := v.decryptWords(ver, ids[0], password)
		if err != nil {
			return err
		}
		wipeWords(words)
		return nil
	}
	return ErrKeyNotFound
}

// Empty reports whether no version holds an entry.
func (v *Vault) Empty() (bool, error) {
	for ver := range v.spaces {
		empty, err := v.IsEmpty(ver)
		if err != nil || !empty {
			return false, err
		}
	}
	return true, nil
}

// verifyAny is Verify that accepts any password on an empty vault.
func (v *Vault) verifyAny(password []byte) error {
	err := v.Verify(password)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}

// versions lists the current version first, then older ones newest first.
func (v *Vault) versions() []Version {
	out := []Version{v.current}
	for ver := V4; ver >= V2; ver-- {
		if ver != v.current {
			out = append(out, ver)
		}
	}
	return out
}

// exclusive holds the vault slot, lists keys with list and runs fn once it
// also holds the slot of every listed key. Listing inside the vault slot
// means no key can appear or vanish between the listing and fn.
func (v *Vault) exclusive(ctx context.Context, list func() ([]string, error), fn func(ids []string) error) error {
	return v.queue.Do(ctx, vaultSlot, func() error {
		ids, err := list()
		if err != nil {
			return err
		}
		return v.queue.DoAll(ctx, ids, func() error {
			return fn(ids)
		})
	})
}

// ChangePassword re-encrypts every entry, in every version, under
// newPassword and commits them in one batch. Nothing is written unless every
// entry opened with oldPassword.
func (v *Vault) ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	byVersion := make(map[Version][]string)
	list := func() ([]string, error) {
		var all []string
		for ver := range v.spaces {
			ids, err := v.KeyIDs(ver)
			if err != nil {
				return nil, err
			}
			byVersion[ver] = ids
			all = append(all, ids...)
		}
		return all, nil
	}

	return v.exclusive(ctx, list, func(all []string) error {
		if len(all) == 0 {
			return ErrKeyNotFound
		}
		done := log.Benchmark("vault.change_password")
		defer done()

		b := storage.NewMultiBatch(v.db)
		for ver, ids := range byVersion {
			for _, id := range ids {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := v.reencrypt(b, ver, id, oldPassword, newPassword); err != nil {
					return fmt.Errorf("key %s: %w", id, err)
				}
			}
		}
		if err := b.Commit(); err != nil {
			return fmt.Errorf("commit re-encrypted entries: %w", err)
		}
		log.Vault.Info().Int("keys", len(all)).Msg("Vault password changed")
		return nil
	})
}

// reencrypt stages the entry of id in version ver under newPassword. The
// entry keeps its version; migration is a separate step.
func (v *Vault) reencrypt(b *storage.MultiBatch, ver Version, id string, oldPassword, newPassword []byte) error {
	e, err := v.Entry(ver, id)
	if err != nil {
		return err
	}
	words, err := Decrypt(e, oldPassword)
	if err != nil {
		return err
	}
	ne, err := Encrypt(ver, id, words, newPassword, v.params)
	wipeWords(words)
	if err != nil {
		return err
	}
	data, err := marshalEntry(ne)
	if err != nil {
		return err
	}
	return b.Put(v.spaces[ver], []byte(id), data)
}

func wipeWords(words []string) {
	for i := range words {
		words[i] = ""
	}
}

// ZeroPassword clears a password buffer.
func ZeroPassword(p []byte) {
	crypto.Wipe(p)
}
