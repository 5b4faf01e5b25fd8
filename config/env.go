package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "TONKEEPER"

// envOverrides mirrors the overridable settings. Nil fields were not set.
type envOverrides struct {
	Network *string `envconfig:"NETWORK"`
	DataDir *string `envconfig:"DATADIR"`

	ScryptN *int `envconfig:"VAULT_SCRYPT_N"`
	ScryptR *int `envconfig:"VAULT_SCRYPT_R"`
	ScryptP *int `envconfig:"VAULT_SCRYPT_P"`

	APIEndpoint *string        `envconfig:"API_ENDPOINT"`
	RPCEndpoint *string        `envconfig:"API_RPC"`
	APIKey      *string        `envconfig:"API_KEY"`
	APITimeout  *time.Duration `envconfig:"API_TIMEOUT"`

	BridgeURL      *string        `envconfig:"TONCONNECT_BRIDGE"`
	ManifestTTL    *time.Duration `envconfig:"TONCONNECT_MANIFEST_TTL"`
	RequestTimeout *time.Duration `envconfig:"TONCONNECT_REQUEST_TIMEOUT"`

	Debounce *time.Duration `envconfig:"RESOLVER_DEBOUNCE"`

	LogLevel *string `envconfig:"LOG_LEVEL"`
	LogFile  *string `envconfig:"LOG_FILE"`
	LogJSON  *bool   `envconfig:"LOG_JSON"`
}

func readEnv() (*envOverrides, error) {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &o, nil
}

// ApplyEnv applies TONKEEPER_* environment overrides to cfg.
func ApplyEnv(cfg *Config) error {
	o, err := readEnv()
	if err != nil {
		return err
	}
	o.apply(cfg)
	return nil
}

func (o *envOverrides) apply(cfg *Config) {
	setIf(&cfg.DataDir, o.DataDir)
	if o.Network != nil {
		cfg.Network = NetworkType(*o.Network)
	}
	setIf(&cfg.Vault.ScryptN, o.ScryptN)
	setIf(&cfg.Vault.ScryptR, o.ScryptR)
	setIf(&cfg.Vault.ScryptP, o.ScryptP)
	setIf(&cfg.API.Endpoint, o.APIEndpoint)
	setIf(&cfg.API.RPCEndpoint, o.RPCEndpoint)
	setIf(&cfg.API.APIKey, o.APIKey)
	setIf(&cfg.API.Timeout, o.APITimeout)
	setIf(&cfg.TonConnect.BridgeURL, o.BridgeURL)
	setIf(&cfg.TonConnect.ManifestTTL, o.ManifestTTL)
	setIf(&cfg.TonConnect.RequestTimeout, o.RequestTimeout)
	setIf(&cfg.Resolver.Debounce, o.Debounce)
	setIf(&cfg.Log.Level, o.LogLevel)
	setIf(&cfg.Log.File, o.LogFile)
	setIf(&cfg.Log.JSON, o.LogJSON)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
