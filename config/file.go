package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key. Unknown keys are ignored.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Vault
	case "vault.scrypt_n":
		return setInt(&cfg.Vault.ScryptN, value)
	case "vault.scrypt_r":
		return setInt(&cfg.Vault.ScryptR, value)
	case "vault.scrypt_p":
		return setInt(&cfg.Vault.ScryptP, value)
	case "vault.scrypt_dklen":
		return setInt(&cfg.Vault.ScryptKeyLen, value)
	case "vault.version":
		return setInt(&cfg.Vault.Version, strings.TrimPrefix(strings.ToLower(value), "v"))

	// API
	case "api.endpoint":
		cfg.API.Endpoint = value
	case "api.rpc":
		cfg.API.RPCEndpoint = value
	case "api.key":
		cfg.API.APIKey = value
	case "api.timeout":
		return setDuration(&cfg.API.Timeout, value)

	// TonConnect
	case "tonconnect.bridge":
		cfg.TonConnect.BridgeURL = value
	case "tonconnect.manifest_cache":
		return setInt(&cfg.TonConnect.ManifestCache, value)
	case "tonconnect.manifest_ttl":
		return setDuration(&cfg.TonConnect.ManifestTTL, value)
	case "tonconnect.request_timeout":
		return setDuration(&cfg.TonConnect.RequestTimeout, value)

	// Resolver
	case "resolver.debounce":
		return setDuration(&cfg.Resolver.Debounce, value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	case "log.max_size":
		return setInt(&cfg.Log.MaxSizeMB, value)
	case "log.max_backups":
		return setInt(&cfg.Log.MaxBackups, value)
	case "log.max_age":
		return setInt(&cfg.Log.MaxAgeDays, value)
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	content := `# Tonkeeper wallet core configuration
#
# Precedence: this file < TONKEEPER_* environment variables < flags.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.tonkeeper)
# datadir = ~/.tonkeeper

# ============================================================================
# Vault
# ============================================================================

# scrypt parameters for new entries (N must be a power of two)
vault.scrypt_n = 16384
vault.scrypt_r = 8
vault.scrypt_p = 1
# vault.scrypt_dklen = 32

# ============================================================================
# Network API
# ============================================================================

api.endpoint = ` + d.API.Endpoint + `
api.rpc = ` + d.API.RPCEndpoint + `
# api.key =
api.timeout = 10s

# ============================================================================
# TonConnect
# ============================================================================

tonconnect.bridge = ` + d.TonConnect.BridgeURL + `
tonconnect.manifest_cache = 64
tonconnect.manifest_ttl = 1h
tonconnect.request_timeout = 5m

# ============================================================================
# Address resolver
# ============================================================================

resolver.debounce = 750ms

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
# log.max_size = 50
# log.max_backups = 3
# log.max_age = 28
`
	return os.WriteFile(path, []byte(content), 0600)
}
