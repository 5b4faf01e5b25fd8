package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/tonkeeper/tonkeeper-core/pkg/tx"
)

var (
	jettonDecimals int
	jettonComment  string

	stakeKind         string
	stakeMin          string
	stakeLiquidWallet string
)

var jettonCmd = &cobra.Command{
	Use:   "jetton",
	Short: "Jetton transfers",
}

var jettonSendCmd = &cobra.Command{
	Use:   "send <own-jetton-wallet> <recipient> <amount>",
	Short: "Send jettons from one of the wallet's jetton wallets",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, sendWallet)
		if err != nil {
			return err
		}
		jw, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		to, err := resolveRecipient(cmd.Context(), a, args[1])
		if err != nil {
			return err
		}
		amount, err := parseUnits(args[2], jettonDecimals)
		if err != nil {
			return err
		}
		return execute(cmd, a, w, func(b *tx.Builder) {
			b.AddJettonTransfer(tx.JettonTransfer{
				JettonWallet: jw,
				To:           to,
				Amount:       amount,
				Comment:      jettonComment,
				QueryID:      tx.QueryID(),
			})
		})
	},
}

var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Deposit into and withdraw from staking pools",
}

func stakingPool(addr string) (tx.StakingPool, error) {
	pool := tx.StakingPool{Implementation: tx.Implementation(stakeKind), MinStake: tlb.ZeroCoins}
	if !pool.Implementation.Valid() {
		return pool, fmt.Errorf("%w: %q", tx.ErrUnknownPool, stakeKind)
	}
	var err error
	if pool.Address, err = parseAddress(addr); err != nil {
		return pool, err
	}
	if stakeMin != "" {
		if pool.MinStake, err = tlb.FromTON(stakeMin); err != nil {
			return pool, fmt.Errorf("invalid --min-stake: %w", err)
		}
	}
	return pool, nil
}

var stakeDepositCmd = &cobra.Command{
	Use:   "deposit <pool> <amount>",
	Short: "Stake TON in a pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, sendWallet)
		if err != nil {
			return err
		}
		pool, err := stakingPool(args[0])
		if err != nil {
			return err
		}
		amount, err := parseTON(args[1])
		if err != nil {
			return err
		}
		return execute(cmd, a, w, func(b *tx.Builder) {
			b.AddStakeDeposit(pool, amount)
		})
	},
}

var stakeWithdrawCmd = &cobra.Command{
	Use:   "withdraw <pool> [amount]",
	Short: "Request a withdrawal from a pool",
	Long: `Request a withdrawal from a pool.

The pool keeps a fixed fee for processing the request: 1 TON for TF and
liquid TF pools, 0.2 TON for Whales pools. Without an amount a Whales pool
returns the whole stake. Liquid pools burn pool tokens from --liquid-wallet.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, sendWallet)
		if err != nil {
			return err
		}
		pool, err := stakingPool(args[0])
		if err != nil {
			return err
		}
		req := tx.StakeWithdraw{Pool: pool, Amount: tlb.ZeroCoins, QueryID: tx.QueryID()}
		if len(args) == 2 {
			if req.Amount, err = parseTON(args[1]); err != nil {
				return err
			}
		}
		if stakeLiquidWallet != "" {
			if req.LiquidJettonWallet, err = parseAddress(stakeLiquidWallet); err != nil {
				return err
			}
		}
		fmt.Printf("Withdrawal fee: %s TON\n", tx.WithdrawalFeeCoins(pool.Implementation).String())
		return execute(cmd, a, w, func(b *tx.Builder) {
			b.AddStakeWithdraw(req)
		})
	},
}

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "Manage .ton domains owned by the wallet",
}

var dnsLinkCmd = &cobra.Command{
	Use:   "link <domain-item> [target]",
	Short: "Point a domain's wallet record at target (default: this wallet)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, sendWallet)
		if err != nil {
			return err
		}
		domain, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		target, err := w.Address()
		if err != nil {
			return err
		}
		if len(args) == 2 {
			if target, err = resolveRecipient(cmd.Context(), a, args[1]); err != nil {
				return err
			}
		}
		return execute(cmd, a, w, func(b *tx.Builder) {
			b.AddDNSChange(tx.DNSChange{Domain: domain, Wallet: target, QueryID: tx.QueryID()})
		})
	},
}

var dnsRenewCmd = &cobra.Command{
	Use:   "renew <domain-item>",
	Short: "Renew a domain for another year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, sendWallet)
		if err != nil {
			return err
		}
		domain, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		return execute(cmd, a, w, func(b *tx.Builder) {
			b.AddDNSRenew(tx.DNSChange{Domain: domain, QueryID: tx.QueryID()})
		})
	},
}

func init() {
	jettonSendCmd.Flags().IntVar(&jettonDecimals, "decimals", 9, "Jetton decimals")
	jettonSendCmd.Flags().StringVar(&jettonComment, "comment", "", "Comment forwarded to the recipient")
	jettonCmd.AddCommand(jettonSendCmd)

	kinds := []string{string(tx.LiquidTF), string(tx.TF), string(tx.Whales)}
	for _, c := range []*cobra.Command{stakeDepositCmd, stakeWithdrawCmd} {
		c.Flags().StringVar(&stakeKind, "kind", string(tx.Whales), "Pool implementation: "+strings.Join(kinds, ", "))
	}
	stakeDepositCmd.Flags().StringVar(&stakeMin, "min-stake", "", "Pool minimum stake in TON")
	stakeWithdrawCmd.Flags().StringVar(&stakeLiquidWallet, "liquid-wallet", "", "Pool-token jetton wallet (liquid pools)")
	stakeCmd.AddCommand(stakeDepositCmd, stakeWithdrawCmd)

	dnsCmd.AddCommand(dnsLinkCmd, dnsRenewCmd)
}
