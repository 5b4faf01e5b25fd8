package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/store"
	"github.com/tonkeeper/tonkeeper-core/internal/vault"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
)

var (
	walletLabel    string
	walletRevision string
	walletID       string
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Create, import and manage wallets",
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a new 24-word wallet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := wallet.GenerateMnemonic()
		if err != nil {
			return err
		}
		defer m.Wipe()

		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", strings.Join(m.Words(), " "))
		return addWallet(cmd, m)
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a wallet from its 12 or 24 word mnemonic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		phrase, err := readPassword("Mnemonic: ")
		if err != nil {
			return fmt.Errorf("read mnemonic: %w", err)
		}
		m, err := wallet.ParseMnemonic(string(phrase))
		vault.ZeroPassword(phrase)
		if err != nil {
			return err
		}
		defer m.Wipe()
		return addWallet(cmd, m)
	},
}

// addWallet stores m in the vault and registers the wallet contract.
func addWallet(cmd *cobra.Command, m wallet.Mnemonic) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	rev := wallet.Revision(walletRevision)
	if _, err := rev.Version(); err != nil {
		return err
	}
	pub, err := m.PublicKey()
	if err != nil {
		return err
	}
	label := walletLabel
	if label == "" {
		label = fmt.Sprintf("Wallet %d", len(a.Wallets.List())+1)
	}
	key := wallet.WalletKey{PublicKey: pub, Name: label}
	w := wallet.New(key, rev, network(), label)
	if _, err := a.Wallets.Get(w.ID()); err == nil {
		return fmt.Errorf("%w: %s", store.ErrWalletExists, w.ID())
	}

	// The first key sets the vault password; later keys must use it.
	empty, err := a.Vault.Empty()
	if err != nil {
		return err
	}
	var password []byte
	if empty {
		password, err = readNewPassword()
		if err != nil {
			return err
		}
	} else {
		password, err = readPassword("Vault password: ")
		if err != nil {
			return err
		}
	}
	defer vault.ZeroPassword(password)

	if err := a.Vault.Add(cmd.Context(), key, m, password); err != nil {
		return err
	}
	if err := a.Wallets.Add(w); err != nil {
		return err
	}
	if _, err := a.Wallets.Active(); errors.Is(err, store.ErrWalletNotFound) {
		if err := a.Wallets.SetActive(w.ID()); err != nil {
			return err
		}
	}

	addr, err := w.Address()
	if err != nil {
		return err
	}
	log.CLI.Info().Str("wallet", w.ID()).Msg("Wallet added")
	fmt.Printf("Wallet: %s\n", w.ID())
	fmt.Printf("Address: %s\n", displayAddress(addr, w))
	return nil
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wallets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		list := a.Wallets.List()
		if len(list) == 0 {
			fmt.Println("No wallets found.")
			return nil
		}
		active, _ := a.Wallets.Active()

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tLABEL\tREVISION\tADDRESS\tID")
		for _, w := range list {
			mark := ""
			if w.ID() == active.ID() {
				mark = "*"
			}
			addr, err := w.Address()
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, w.Metadata.Label, w.Identity.Revision,
				displayAddress(addr, w), w.ID())
		}
		return tw.Flush()
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use <wallet-id>",
	Short: "Make a wallet the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		return a.Wallets.SetActive(args[0])
	},
}

var walletRenameCmd = &cobra.Command{
	Use:   "rename <label>",
	Short: "Change the label of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, walletID)
		if err != nil {
			return err
		}
		_, err = a.Wallets.Update(w.ID(), func(old wallet.Wallet) wallet.Wallet {
			md := old.Metadata
			md.Label = args[0]
			return old.WithMetadata(md)
		})
		return err
	},
}

var walletBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Show the mnemonic of a wallet and mark it backed up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, walletID)
		if err != nil {
			return err
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		defer vault.ZeroPassword(password)

		var m wallet.Mnemonic
		err = a.Vault.Queue().Do(cmd.Context(), w.Key().ID(), func() error {
			var err error
			m, err = a.Vault.Mnemonic(w.Key().ID(), password)
			return err
		})
		if err != nil {
			return err
		}
		defer m.Wipe()

		fmt.Printf("  %s\n", strings.Join(m.Words(), " "))
		_, err = a.Wallets.Update(w.ID(), func(old wallet.Wallet) wallet.Wallet {
			return old.WithBackupDate(time.Now().UTC())
		})
		return err
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <wallet-id>",
	Short: "Remove a wallet, its connected apps and, when unused, its key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := a.Wallets.Get(args[0])
		if err != nil {
			return err
		}
		ok, err := confirm(cmd.Context(), fmt.Sprintf("Remove wallet %q?", w.Metadata.Label))
		if err != nil || !ok {
			return err
		}
		if err := a.TonConnect.DisconnectAll(w); err != nil {
			return err
		}
		if err := a.Wallets.Remove(w.ID()); err != nil {
			return err
		}
		for _, other := range a.Wallets.List() {
			if other.Key().Equal(w.Key()) {
				return nil
			}
		}
		return a.Vault.Delete(cmd.Context(), w.Key().ID())
	},
}

var walletBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the TON balance of a wallet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, walletID)
		if err != nil {
			return err
		}
		addr, err := w.Address()
		if err != nil {
			return err
		}
		balances := store.NewBalances(a.API)
		bal, err := balances.Load(cmd.Context(), addr.StringRaw())
		if err != nil {
			return err
		}
		fmt.Printf("%s TON\n", bal.String())

		rates := store.NewRates(a.API, []string{"USD"})
		if r, err := rates.Load(cmd.Context(), "ton"); err == nil {
			if usd, ok := r["USD"]; ok {
				fmt.Printf("≈ %.2f USD\n", usd*coinsFloat(bal))
			}
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{walletCreateCmd, walletImportCmd} {
		c.Flags().StringVar(&walletLabel, "label", "", "Wallet label")
		c.Flags().StringVar(&walletRevision, "revision", string(wallet.RevisionV4R2), "Wallet contract revision (v3R2 or v4R2)")
	}
	for _, c := range []*cobra.Command{walletRenameCmd, walletBackupCmd, walletBalanceCmd} {
		c.Flags().StringVar(&walletID, "wallet", "", "Wallet id (default: active wallet)")
	}
	walletCmd.AddCommand(walletCreateCmd, walletImportCmd, walletListCmd, walletUseCmd,
		walletRenameCmd, walletBackupCmd, walletRemoveCmd, walletBalanceCmd)
}
