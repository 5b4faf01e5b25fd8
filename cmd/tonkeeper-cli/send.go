package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/signer"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
	"github.com/tonkeeper/tonkeeper-core/pkg/tx"
)

var (
	sendComment string
	sendAll     bool
	sendWallet  string
	sendDryRun  bool
)

var sendCmd = &cobra.Command{
	Use:   "send <recipient> <amount>",
	Short: "Send TON to an address or domain",
	Long: `Send TON to an address or domain.

The amount is in TON ("1.5"). With --all the whole balance is sent and the
amount argument is ignored.

Examples:
  tonkeeper-cli send foundation.ton 1.5 --comment "thanks"
  tonkeeper-cli send UQB...xyz 0 --all`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, sendWallet)
		if err != nil {
			return err
		}
		to, err := resolveRecipient(cmd.Context(), a, args[0])
		if err != nil {
			return err
		}
		if sendComment == "" && a.knownAccounts(cmd).RequiresMemo(to) {
			return fmt.Errorf("recipient requires a comment, use --comment")
		}

		t := tx.Transfer{To: to, Comment: sendComment, SendAll: sendAll}
		if !sendAll {
			if t.Amount, err = parseTON(args[1]); err != nil {
				return err
			}
		}
		return execute(cmd, a, w, func(b *tx.Builder) {
			b.AddTransfer(t)
		})
	},
}

// execute fills a builder for w, shows the estimated fee, asks for
// confirmation, signs with the vault and broadcasts.
func execute(cmd *cobra.Command, a *App, w wallet.Wallet, fill func(*tx.Builder)) error {
	ctx := cmd.Context()
	addr, err := w.Address()
	if err != nil {
		return err
	}
	seqno, err := a.API.Seqno(ctx, addr)
	if err != nil {
		return fmt.Errorf("fetch seqno: %w", err)
	}

	b := tx.NewBuilder(w, seqno)
	fill(b)

	qAddr, body, code, data, err := b.FeeQuery()
	if err != nil {
		return err
	}
	fee := tlb.ZeroCoins
	if fees, err := a.API.EstimateFee(ctx, qAddr, body, code, data); err != nil {
		log.CLI.Warn().Err(err).Msg("Fee estimation failed")
	} else {
		fee = fees.Total()
	}

	for i, m := range b.Messages() {
		fmt.Printf("#%d  %s TON -> %s\n", i+1, m.Amount.String(), m.To.String())
	}
	fmt.Printf("Estimated fee: %s TON\n", fee.String())
	if sendDryRun {
		return nil
	}

	approve := func(ctx context.Context, _ *tx.UnsignedTransfer) (bool, error) {
		return confirm(ctx, "Sign and send?")
	}
	s := signer.NewApproval(approve, signer.NewVault(a.Vault, w.Key().ID(), passwordPrompt))
	msg, err := b.Build(ctx, s)
	if err != nil {
		return err
	}
	if msg.Stale(time.Now()) {
		return tx.ErrStale
	}
	if err := a.API.SendBoc(ctx, msg.BOC); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	log.CLI.Info().Str("wallet", w.ID()).Uint32("seqno", msg.Seqno).Msg("Message sent")
	fmt.Printf("Sent. Message hash: %x\n", msg.Hash)
	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendComment, "comment", "", "Text comment attached to the transfer")
	sendCmd.Flags().BoolVar(&sendAll, "all", false, "Send the whole balance")
	for _, c := range []*cobra.Command{sendCmd, jettonSendCmd, stakeDepositCmd, stakeWithdrawCmd, dnsLinkCmd, dnsRenewCmd} {
		c.Flags().StringVar(&sendWallet, "wallet", "", "Wallet id (default: active wallet)")
		c.Flags().BoolVar(&sendDryRun, "dry-run", false, "Show the messages and fee without signing")
	}
}
