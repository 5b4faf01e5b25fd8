package config

import (
	"fmt"
	"math/bits"
	"net/url"

	"github.com/rs/zerolog"
)

// Validate checks the config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}

	v := cfg.Vault
	if v.ScryptN <= 1 || bits.OnesCount(uint(v.ScryptN)) != 1 {
		return fmt.Errorf("vault.scrypt_n must be a power of two > 1, got %d", v.ScryptN)
	}
	if v.ScryptR <= 0 || v.ScryptP <= 0 {
		return fmt.Errorf("vault.scrypt_r and vault.scrypt_p must be positive")
	}
	if v.ScryptKeyLen != 32 {
		return fmt.Errorf("vault.scrypt_dklen must be 32")
	}
	if v.Version < 2 || v.Version > 4 {
		return fmt.Errorf("vault.version must be 2, 3 or 4")
	}

	for name, raw := range map[string]string{
		"api.endpoint":      cfg.API.Endpoint,
		"api.rpc":           cfg.API.RPCEndpoint,
		"tonconnect.bridge": cfg.TonConnect.BridgeURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", name)
		}
	}

	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if cfg.TonConnect.ManifestTTL <= 0 || cfg.TonConnect.RequestTimeout <= 0 {
		return fmt.Errorf("tonconnect timeouts must be positive")
	}
	if cfg.TonConnect.ManifestCache <= 0 {
		return fmt.Errorf("tonconnect.manifest_cache must be positive")
	}
	if cfg.Resolver.Debounce < 0 {
		return fmt.Errorf("resolver.debounce must not be negative")
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
