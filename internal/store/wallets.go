package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/storage"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
)

// Wallet list errors.
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletExists   = errors.New("wallet already exists")
)

var activeKey = []byte("active")

// Wallets is the persisted wallet list. Every change is written to storage
// and committed to the observed state in the same serialized section.
type Wallets struct {
	list  *storage.PrefixDB
	meta  *storage.PrefixDB
	db    storage.DB
	state *Store[string, wallet.Wallet]
}

// NewWallets opens the wallet list stored in db.
func NewWallets(db storage.DB) (*Wallets, error) {
	w := &Wallets{
		db:    db,
		list:  storage.NewPrefixDB(db, []byte("wallets/")),
		meta:  storage.NewPrefixDB(db, []byte("wallets-meta/")),
		state: New[string, wallet.Wallet](nil, WithName[string, wallet.Wallet]("wallets")),
	}
	err := w.list.ForEach(nil, func(key, value []byte) error {
		var wl wallet.Wallet
		if err := json.Unmarshal(value, &wl); err != nil {
			return fmt.Errorf("decode wallet %s: %w", key, err)
		}
		w.state.Set(string(key), wl)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Store.Debug().Int("wallets", w.state.Len()).Msg("Wallet list loaded")
	return w, nil
}

// Observe registers fn for wallet list changes.
func (w *Wallets) Observe(owner *Owner, fn func(Event[string, wallet.Wallet])) Token {
	return w.state.AddObserver(owner, fn)
}

// Add stores a new wallet. The first wallet becomes the active one.
func (w *Wallets) Add(wl wallet.Wallet) error {
	id := wl.ID()
	_, err := w.state.Update(id, func(_ wallet.Wallet, ok bool) (wallet.Wallet, error) {
		if ok {
			return wl, fmt.Errorf("%w: %s", ErrWalletExists, id)
		}
		data, err := json.Marshal(wl)
		if err != nil {
			return wl, err
		}
		b := storage.NewMultiBatch(w.db)
		if err := b.Put(w.list, []byte(id), data); err != nil {
			return wl, err
		}
		if has, _ := w.meta.Has(activeKey); !has {
			if err := b.Put(w.meta, activeKey, []byte(id)); err != nil {
				return wl, err
			}
		}
		return wl, b.Commit()
	})
	return err
}

// Get returns the wallet with id.
func (w *Wallets) Get(id string) (wallet.Wallet, error) {
	wl, ok := w.state.Get(id)
	if !ok {
		return wallet.Wallet{}, fmt.Errorf("%w: %s", ErrWalletNotFound, id)
	}
	return wl, nil
}

// Update applies fn to the wallet with id. The identity cannot change.
func (w *Wallets) Update(id string, fn func(wallet.Wallet) wallet.Wallet) (wallet.Wallet, error) {
	return w.state.Update(id, func(old wallet.Wallet, ok bool) (wallet.Wallet, error) {
		if !ok {
			return old, fmt.Errorf("%w: %s", ErrWalletNotFound, id)
		}
		nw := fn(old)
		if nw.ID() != id {
			return old, fmt.Errorf("update of %s changed the wallet identity", id)
		}
		data, err := json.Marshal(nw)
		if err != nil {
			return old, err
		}
		if err := w.list.Put([]byte(id), data); err != nil {
			return old, err
		}
		return nw, nil
	})
}

// Remove deletes the wallet with id. If it was active, the active wallet is
// cleared in the same batch.
func (w *Wallets) Remove(id string) error {
	return w.state.Delete(id, func(_ wallet.Wallet, ok bool) error {
		if !ok {
			return fmt.Errorf("%w: %s", ErrWalletNotFound, id)
		}
		b := storage.NewMultiBatch(w.db)
		if err := b.Delete(w.list, []byte(id)); err != nil {
			return err
		}
		if active, err := w.meta.Get(activeKey); err == nil && string(active) == id {
			if err := b.Delete(w.meta, activeKey); err != nil {
				return err
			}
		}
		return b.Commit()
	})
}

// List returns every wallet ordered by id.
func (w *Wallets) List() []wallet.Wallet {
	state := w.state.State()
	out := make([]wallet.Wallet, 0, len(state))
	for _, wl := range state {
		out = append(out, wl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SetActive marks id as the active wallet.
func (w *Wallets) SetActive(id string) error {
	if _, err := w.Get(id); err != nil {
		return err
	}
	return w.meta.Put(activeKey, []byte(id))
}

// Active returns the active wallet.
func (w *Wallets) Active() (wallet.Wallet, error) {
	id, err := w.meta.Get(activeKey)
	if errors.Is(err, storage.ErrNotFound) {
		return wallet.Wallet{}, ErrWalletNotFound
	}
	if err != nil {
		return wallet.Wallet{}, err
	}
	return w.Get(string(id))
}
