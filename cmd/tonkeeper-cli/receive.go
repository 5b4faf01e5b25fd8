package main

import (
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var (
	receiveAmount  string
	receiveComment string
	receivePNG     string
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show the wallet address as a ton://transfer link and QR code",
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
		display := displayAddress(addr, w)

		q := url.Values{}
		if receiveAmount != "" {
			c, err := parseTON(receiveAmount)
			if err != nil {
				return err
			}
			q.Set("amount", c.Nano().String())
		}
		if receiveComment != "" {
			q.Set("text", receiveComment)
		}
		link := "ton://transfer/" + display
		if len(q) > 0 {
			link += "?" + q.Encode()
		}

		qr, err := qrcode.New(link, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("failed to create QR code: %w", err)
		}
		if receivePNG != "" {
			if err := qr.WriteFile(256, receivePNG); err != nil {
				return fmt.Errorf("failed to write PNG: %w", err)
			}
		}
		fmt.Print(qr.ToSmallString(false))
		fmt.Println(display)
		fmt.Println(link)
		return nil
	},
}

func init() {
	receiveCmd.Flags().StringVar(&walletID, "wallet", "", "Wallet id (default: active wallet)")
	receiveCmd.Flags().StringVar(&receiveAmount, "amount", "", "Requested amount in TON")
	receiveCmd.Flags().StringVar(&receiveComment, "comment", "", "Requested comment")
	receiveCmd.Flags().StringVar(&receivePNG, "png", "", "Also write the QR code to this PNG file")
}
