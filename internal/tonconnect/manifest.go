package tonconnect

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
)

// Manifest cache defaults.
const (
	DefaultManifestCacheSize = 64
	DefaultManifestTTL       = time.Hour
)

// Manifest describes a dApp.
type Manifest struct {
	URL              string `json:"url"`
	Name             string `json:"name"`
	IconURL          string `json:"iconUrl"`
	TermsOfUseURL    string `json:"termsOfUseUrl,omitempty"`
	PrivacyPolicyURL string `json:"privacyPolicyUrl,omitempty"`
}

// Host returns the host of the app URL, the domain a ton_proof is bound to.
func (m Manifest) Host() string {
	u, err := url.Parse(m.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Getter fetches JSON documents; tonapi.Client implements it.
type Getter interface {
	Get(ctx context.Context, pathOrURL string, out interface{}) error
}

// Manifests fetches and caches app manifests.
type Manifests struct {
	getter Getter
	cache  *expirable.LRU[string, Manifest]
	group  singleflight.Group
}

// NewManifests creates a cache of size entries that expire after ttl.
func NewManifests(g Getter, size int, ttl time.Duration) *Manifests {
	if size <= 0 {
		size = DefaultManifestCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultManifestTTL
	}
	return &Manifests{getter: g, cache: expirable.NewLRU[string, Manifest](size, nil, ttl)}
}

// Get returns the manifest at manifestURL, fetching it at most once per TTL.
func (m *Manifests) Get(ctx context.Context, manifestURL string) (Manifest, error) {
	if mf, ok := m.cache.Get(manifestURL); ok {
		return mf, nil
	}
	v, err, _ := m.group.Do(manifestURL, func() (interface{}, error) {
		var mf Manifest
		if err := m.getter.Get(ctx, manifestURL, &mf); err != nil {
			return nil, fmt.Errorf("fetch manifest: %w", err)
		}
		if mf.URL == "" || mf.Name == "" {
			return nil, fmt.Errorf("%w: manifest lacks url or name", ErrMalformedPayload)
		}
		m.cache.Add(manifestURL, mf)
		log.TonConnect.Debug().Str("manifest", manifestURL).Str("app", mf.Name).Msg("Manifest cached")
		return mf, nil
	})
	if err != nil {
		return Manifest{}, err
	}
	return v.(Manifest), nil
}

// Len returns the number of cached manifests.
func (m *Manifests) Len() int {
	return m.cache.Len()
}
