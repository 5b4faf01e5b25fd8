// tonkeeper-cli is a command-line front end for the wallet core: keys,
// transfers, staking, DNS and TonConnect.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tonkeeper/tonkeeper-core/config"
	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/storage"
	"github.com/tonkeeper/tonkeeper-core/internal/store"
	"github.com/tonkeeper/tonkeeper-core/internal/tonapi"
	"github.com/tonkeeper/tonkeeper-core/internal/tonconnect"
	"github.com/tonkeeper/tonkeeper-core/internal/vault"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
)

const version = "0.1.0"

var (
	flags     *config.Flags
	assumeYes bool
	cfg       *config.Config
	app       *App
)

var rootCmd = &cobra.Command{
	Use:           "tonkeeper-cli",
	Short:         "TON wallet command-line client",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flags)
		if err != nil {
			return err
		}
		logFile := cfg.Log.File
		if logFile != "" && !filepath.IsAbs(logFile) {
			logFile = filepath.Join(cfg.LogsDir(), logFile)
		}
		log.Init(log.Options{
			Level:      cfg.Log.Level,
			JSON:       cfg.Log.JSON,
			File:       logFile,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   true,
		})
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

func init() {
	flags = config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation")
	rootCmd.AddCommand(walletCmd, vaultCmd, sendCmd, jettonCmd, stakeCmd, dnsCmd,
		resolveCmd, receiveCmd, tonconnectCmd)
}

// App holds the components opened for one command.
type App struct {
	DB         *storage.BadgerDB
	Vault      *vault.Vault
	Wallets    *store.Wallets
	API        *tonapi.Client
	Registry   *tonconnect.Registry
	Manifests  *tonconnect.Manifests
	TonConnect *tonconnect.Engine
}

// openApp opens the database and wires the components from cfg.
func openApp() (*App, error) {
	if app != nil {
		return app, nil
	}
	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	wallets, err := store.NewWallets(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	v := vault.New(db,
		vault.WithParams(vault.Params{
			N:      cfg.Vault.ScryptN,
			R:      cfg.Vault.ScryptR,
			P:      cfg.Vault.ScryptP,
			KeyLen: cfg.Vault.ScryptKeyLen,
		}),
		vault.WithCurrentVersion(vault.Version(cfg.Vault.Version)),
	)
	api := tonapi.New(tonapi.Options{
		Endpoint:    cfg.API.Endpoint,
		RPCEndpoint: cfg.API.RPCEndpoint,
		APIKey:      cfg.API.APIKey,
		Timeout:     cfg.API.Timeout,
	})
	registry := tonconnect.NewRegistry(db)
	manifests := tonconnect.NewManifests(api, cfg.TonConnect.ManifestCache, cfg.TonConnect.ManifestTTL)

	app = &App{
		DB:         db,
		Vault:      v,
		Wallets:    wallets,
		API:        api,
		Registry:   registry,
		Manifests:  manifests,
		TonConnect: tonconnect.NewEngine(api, manifests, registry),
	}
	return app, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// knownAccounts loads the labelled address list. A failed refresh leaves it
// empty.
func (a *App) knownAccounts(cmd *cobra.Command) *store.KnownAccounts {
	k := store.NewKnownAccounts(a.API)
	if err := k.Refresh(cmd.Context()); err != nil {
		log.CLI.Debug().Err(err).Msg("Known accounts unavailable")
	}
	return k
}

func closeApp() error {
	if app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}

// network maps the configured network onto wallet identities.
func network() wallet.Network {
	if cfg.Network == config.Testnet {
		return wallet.Testnet
	}
	return wallet.Mainnet
}

// selectWallet returns the wallet named by id, or the active one.
func selectWallet(a *App, id string) (wallet.Wallet, error) {
	if id != "" {
		return a.Wallets.Get(id)
	}
	w, err := a.Wallets.Active()
	if err != nil {
		return wallet.Wallet{}, fmt.Errorf("no active wallet (use 'wallet use <id>'): %w", err)
	}
	return w, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.CLI.Debug().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeApp()
		os.Exit(1)
	}
}
