// Package config handles application configuration.
//
// Values are layered: built-in defaults, then <datadir>/tonkeeper.conf, then
// TONKEEPER_* environment variables, then command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds the wallet core configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Encrypted mnemonic storage
	Vault VaultConfig

	// Network collaborator (tonapi / toncenter)
	API APIConfig

	TonConnect TonConnectConfig

	Resolver ResolverConfig

	// Logging
	Log LogConfig
}

// VaultConfig holds the scrypt parameters for new vault entries.
type VaultConfig struct {
	ScryptN      int `conf:"vault.scrypt_n"`
	ScryptR      int `conf:"vault.scrypt_r"`
	ScryptP      int `conf:"vault.scrypt_p"`
	ScryptKeyLen int `conf:"vault.scrypt_dklen"`
	// Version new entries are written in (2, 3 or 4).
	Version int `conf:"vault.version"`
}

// APIConfig holds the network collaborator endpoints.
type APIConfig struct {
	Endpoint    string        `conf:"api.endpoint"`
	RPCEndpoint string        `conf:"api.rpc"`
	APIKey      string        `conf:"api.key"`
	Timeout     time.Duration `conf:"api.timeout"`
}

// TonConnectConfig holds TonConnect settings.
type TonConnectConfig struct {
	BridgeURL      string        `conf:"tonconnect.bridge"`
	ManifestCache  int           `conf:"tonconnect.manifest_cache"`
	ManifestTTL    time.Duration `conf:"tonconnect.manifest_ttl"`
	RequestTimeout time.Duration `conf:"tonconnect.request_timeout"`
}

// ResolverConfig holds address resolution settings.
type ResolverConfig struct {
	Debounce time.Duration `conf:"resolver.debounce"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `conf:"log.level"`
	File       string `conf:"log.file"`
	JSON       bool   `conf:"log.json"`
	MaxSizeMB  int    `conf:"log.max_size"`
	MaxBackups int    `conf:"log.max_backups"`
	MaxAgeDays int    `conf:"log.max_age"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.tonkeeper
//	macOS:   ~/Library/Application Support/Tonkeeper
//	Windows: %APPDATA%\Tonkeeper
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tonkeeper"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Tonkeeper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Tonkeeper")
		}
		return filepath.Join(home, "AppData", "Roaming", "Tonkeeper")
	default:
		return filepath.Join(home, ".tonkeeper")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the badger directory holding the vault, wallets and apps.
func (c *Config) DBDir() string {
	return filepath.Join(c.NetworkDataDir(), "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "tonkeeper.conf")
}
