package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Flags holds the command-line overrides bound to a flag set.
type Flags struct {
	fs *pflag.FlagSet

	// Core
	Network string
	Testnet bool
	DataDir string
	Config  string

	// Vault
	ScryptN int
	ScryptR int
	ScryptP int

	// Network API
	APIEndpoint string
	RPCEndpoint string
	APIKey      string
	APITimeout  time.Duration

	// TonConnect
	BridgeURL      string
	RequestTimeout time.Duration

	// Resolver
	Debounce time.Duration

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool
}

// BindFlags registers the config flags on fs, usually the persistent flag
// set of the root command.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.BoolVar(&f.Testnet, "testnet", false, "Shorthand for --network=testnet")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory (default: ~/.tonkeeper)")
	fs.StringVarP(&f.Config, "config", "c", "", "Config file path (default: <datadir>/tonkeeper.conf)")

	// Vault
	fs.IntVar(&f.ScryptN, "vault-scrypt-n", 0, "scrypt N for new vault entries")
	fs.IntVar(&f.ScryptR, "vault-scrypt-r", 0, "scrypt r for new vault entries")
	fs.IntVar(&f.ScryptP, "vault-scrypt-p", 0, "scrypt p for new vault entries")

	// Network API
	fs.StringVar(&f.APIEndpoint, "api-endpoint", "", "tonapi endpoint")
	fs.StringVar(&f.RPCEndpoint, "api-rpc", "", "toncenter JSON-RPC endpoint")
	fs.StringVar(&f.APIKey, "api-key", "", "API key sent with every request")
	fs.DurationVar(&f.APITimeout, "api-timeout", 0, "API request timeout")

	// TonConnect
	fs.StringVar(&f.BridgeURL, "bridge", "", "TonConnect bridge URL")
	fs.DurationVar(&f.RequestTimeout, "request-timeout", 0, "Validity window of dApp transaction requests")

	// Resolver
	fs.DurationVar(&f.Debounce, "resolve-debounce", 0, "Address resolver debounce delay")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path (default: stderr)")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	return f
}

func (f *Flags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// NetworkChoice returns the network selected on the command line, or "".
func (f *Flags) NetworkChoice() NetworkType {
	if f.changed("testnet") && f.Testnet {
		return Testnet
	}
	if f.changed("network") {
		return NetworkType(strings.ToLower(f.Network))
	}
	return ""
}

// ApplyFlags applies the flags the user actually set to cfg.
func ApplyFlags(cfg *Config, f *Flags) {
	if n := f.NetworkChoice(); n != "" {
		cfg.Network = n
	}
	if f.changed("datadir") {
		cfg.DataDir = f.DataDir
	}

	if f.changed("vault-scrypt-n") {
		cfg.Vault.ScryptN = f.ScryptN
	}
	if f.changed("vault-scrypt-r") {
		cfg.Vault.ScryptR = f.ScryptR
	}
	if f.changed("vault-scrypt-p") {
		cfg.Vault.ScryptP = f.ScryptP
	}

	if f.changed("api-endpoint") {
		cfg.API.Endpoint = f.APIEndpoint
	}
	if f.changed("api-rpc") {
		cfg.API.RPCEndpoint = f.RPCEndpoint
	}
	if f.changed("api-key") {
		cfg.API.APIKey = f.APIKey
	}
	if f.changed("api-timeout") {
		cfg.API.Timeout = f.APITimeout
	}

	if f.changed("bridge") {
		cfg.TonConnect.BridgeURL = f.BridgeURL
	}
	if f.changed("request-timeout") {
		cfg.TonConnect.RequestTimeout = f.RequestTimeout
	}
	if f.changed("resolve-debounce") {
		cfg.Resolver.Debounce = f.Debounce
	}

	if f.changed("log-level") {
		cfg.Log.Level = f.LogLevel
	}
	if f.changed("log-file") {
		cfg.Log.File = f.LogFile
	}
	if f.changed("log-json") {
		cfg.Log.JSON = f.LogJSON
	}
}

// Load loads configuration with the following precedence:
// 1. Default values for the selected network
// 2. Config file
// 3. TONKEEPER_* environment variables
// 4. Command-line flags
//
// Data directories and a default config file are created on first start.
func Load(f *Flags) (*Config, error) {
	if f == nil {
		f = &Flags{}
	}
	env, err := readEnv()
	if err != nil {
		return nil, err
	}

	dataDir := DefaultDataDir()
	setIf(&dataDir, env.DataDir)
	if f.changed("datadir") {
		dataDir = f.DataDir
	}
	configPath := f.Config
	if configPath == "" {
		configPath = (&Config{DataDir: dataDir}).ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Determine network first (needed for defaults)
	network := Mainnet
	if v, ok := fileValues["network"]; ok {
		network = NetworkType(strings.ToLower(v))
	}
	if env.Network != nil {
		network = NetworkType(strings.ToLower(*env.Network))
	}
	if n := f.NetworkChoice(); n != "" {
		network = n
	}

	cfg := Default(network)
	cfg.DataDir = dataDir
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}
	env.apply(cfg)
	ApplyFlags(cfg, f)
	cfg.Network = network

	// Auto-create data dirs + default config on first start.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.DBDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
