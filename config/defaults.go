package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Vault: VaultConfig{
			ScryptN:      1 << 14,
			ScryptR:      8,
			ScryptP:      1,
			ScryptKeyLen: 32,
			Version:      4,
		},
		API: APIConfig{
			Endpoint:    "https://tonapi.io",
			RPCEndpoint: "https://toncenter.com/api/v2/jsonRPC",
			Timeout:     10 * time.Second,
		},
		TonConnect: TonConnectConfig{
			BridgeURL:      "https://bridge.tonapi.io/bridge",
			ManifestCache:  64,
			ManifestTTL:    time.Hour,
			RequestTimeout: 5 * time.Minute,
		},
		Resolver: ResolverConfig{
			Debounce: 750 * time.Millisecond,
		},
		Log: LogConfig{
			Level:      "info",
			JSON:       false,
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.API.Endpoint = "https://testnet.tonapi.io"
	cfg.API.RPCEndpoint = "https://testnet.toncenter.com/api/v2/jsonRPC"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
