package tonconnect

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/storage"
)

// ErrUnknownApp is returned for client ids with no registered app.
var ErrUnknownApp = errors.New("unknown tonconnect app")

// App is a connected dApp for one wallet.
type App struct {
	WalletID    string    `json:"wallet_id"`
	ClientID    string    `json:"client_id"`
	Manifest    Manifest  `json:"manifest"`
	SessionPub  []byte    `json:"session_pub"`
	SessionPriv []byte    `json:"session_priv"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Session rebuilds the bridge session of the app.
func (a App) Session() (*Session, error) {
	client, err := parseKey(a.ClientID)
	if err != nil {
		return nil, err
	}
	if len(a.SessionPub) != 32 || len(a.SessionPriv) != 32 {
		return nil, fmt.Errorf("app %s: session keys missing", a.ClientID)
	}
	s := &Session{Client: client}
	copy(s.Public[:], a.SessionPub)
	copy(s.Private[:], a.SessionPriv)
	return s, nil
}

// Registry persists connected apps per wallet under "tonconnect/".
type Registry struct {
	mu sync.Mutex
	db *storage.PrefixDB
}

// NewRegistry creates a registry over db.
func NewRegistry(db storage.DB) *Registry {
	return &Registry{db: storage.NewPrefixDB(db, []byte("tonconnect/"))}
}

func appKey(walletID, clientID string) []byte {
	return []byte(walletID + "/" + strings.ToLower(clientID))
}

// Register stores app, replacing an earlier connection of the same client.
func (r *Registry) Register(app App) error {
	data, err := json.Marshal(app)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.db.Put(appKey(app.WalletID, app.ClientID), data); err != nil {
		return fmt.Errorf("store app: %w", err)
	}
	log.TonConnect.Info().Str("wallet", app.WalletID).Str("app", app.Manifest.Name).Msg("App connected")
	return nil
}

// Lookup returns the app of clientID connected to walletID.
func (r *Registry) Lookup(walletID, clientID string) (App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.db.Get(appKey(walletID, clientID))
	if errors.Is(err, storage.ErrNotFound) {
		return App{}, fmt.Errorf("%w: %s", ErrUnknownApp, clientID)
	}
	if err != nil {
		return App{}, err
	}
	var app App
	if err := json.Unmarshal(data, &app); err != nil {
		return App{}, fmt.Errorf("decode app: %w", err)
	}
	return app, nil
}

// Remove disconnects one app.
func (r *Registry) Remove(walletID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := appKey(walletID, clientID)
	ok, err := r.db.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownApp, clientID)
	}
	return r.db.Delete(key)
}

// Apps lists the apps of walletID, oldest connection first.
func (r *Registry) Apps(walletID string) ([]App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var apps []App
	err := r.db.ForEach([]byte(walletID+"/"), func(_, value []byte) error {
		var app App
		if err := json.Unmarshal(value, &app); err != nil {
			return fmt.Errorf("decode app: %w", err)
		}
		apps = append(apps, app)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ConnectedAt.Before(apps[j].ConnectedAt) })
	return apps, nil
}

// DisconnectAll removes every app of walletID in one batch and returns
// how many were removed.
func (r *Registry) DisconnectAll(walletID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.db.NewBatch()
	n := 0
	err := r.db.ForEach([]byte(walletID+"/"), func(key, _ []byte) error {
		n++
		return b.Delete(append([]byte(nil), key...))
	})
	if err != nil {
		return 0, err
	}
	if err := b.Commit(); err != nil {
		return 0, fmt.Errorf("disconnect apps: %w", err)
	}
	return n, nil
}
