package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/signer"
	"github.com/tonkeeper/tonkeeper-core/internal/tonconnect"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
)

var disconnectAll bool

var tonconnectCmd = &cobra.Command{
	Use:     "tonconnect",
	Aliases: []string{"tc"},
	Short:   "Connect to dApps and answer their requests",
}

func bridge() *tonconnect.Bridge {
	return tonconnect.NewBridge(cfg.TonConnect.BridgeURL, cfg.API.Timeout)
}

var tcConnectCmd = &cobra.Command{
	Use:   "connect <link>",
	Short: "Answer a tc:// or universal connect link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, walletID)
		if err != nil {
			return err
		}
		req, err := a.TonConnect.Open(args[0])
		if err != nil {
			return err
		}
		m, err := a.Manifests.Get(ctx, req.Payload.ManifestURL)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s) wants to connect to %s\n", m.Name, m.URL, w.Metadata.Label)
		if _, ok := req.ProofPayload(); ok {
			fmt.Println("It asks for proof of wallet ownership; you will be asked for your password.")
		}
		ok, err := confirm(ctx, "Connect?")
		if err != nil || !ok {
			return err
		}

		resp, err := a.TonConnect.Connect(ctx, req, w, signer.NewVault(a.Vault, w.Key().ID(), passwordPrompt))
		if err != nil {
			return err
		}
		if err := a.TonConnect.SendReply(ctx, bridge(), w, req.ClientID, resp); err != nil {
			return fmt.Errorf("connected, but the reply did not reach the app: %w", err)
		}
		fmt.Printf("Connected to %s.\n", m.Name)
		return nil
	},
}

var tcAppsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List apps connected to a wallet",
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
		apps, err := a.Registry.Apps(w.ID())
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			fmt.Println("No connected apps.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tURL\tCONNECTED\tCLIENT ID")
		for _, app := range apps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", app.Manifest.Name, app.Manifest.URL,
				formatTime(app.ConnectedAt), app.ClientID)
		}
		return tw.Flush()
	},
}

var tcDisconnectCmd = &cobra.Command{
	Use:   "disconnect [client-id]",
	Short: "Disconnect one app, or every app with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, walletID)
		if err != nil {
			return err
		}
		var clients []string
		switch {
		case disconnectAll:
			apps, err := a.Registry.Apps(w.ID())
			if err != nil {
				return err
			}
			for _, app := range apps {
				clients = append(clients, app.ClientID)
			}
		case len(args) == 1:
			if _, err := a.Registry.Lookup(w.ID(), args[0]); err != nil {
				return err
			}
			clients = args
		default:
			return fmt.Errorf("give a client id or --all")
		}

		b := bridge()
		for _, id := range clients {
			if err := a.TonConnect.SendReply(ctx, b, w, id, a.TonConnect.NewDisconnectEvent()); err != nil {
				log.CLI.Warn().Err(err).Str("client", id).Msg("Disconnect event not delivered")
			}
		}
		if disconnectAll {
			return a.TonConnect.DisconnectAll(w)
		}
		return a.TonConnect.Disconnect(w, args[0])
	},
}

var tcHandleCmd = &cobra.Command{
	Use:   "handle <client-id> <message>",
	Short: "Handle an encrypted app request received from the bridge",
	Long: `Handle an encrypted app request received from the bridge.

<message> is the base64 "message" field of the bridge event. Transaction
requests are emulated first; the fee is shown before you approve.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		w, err := selectWallet(a, walletID)
		if err != nil {
			return err
		}
		clientID := strings.ToLower(args[0])
		data, err := base64.StdEncoding.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("message is not base64: %w", err)
		}
		req, err := a.TonConnect.OpenRequest(w, clientID, data)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TonConnect.RequestTimeout)
		defer cancel()
		reply, runErr := handleAppRequest(ctx, a, w, clientID, req)
		if reply != nil {
			if err := a.TonConnect.SendReply(ctx, bridge(), w, clientID, reply); err != nil {
				log.CLI.Warn().Err(err).Msg("Reply not delivered")
			}
		}
		return runErr
	},
}

func handleAppRequest(ctx context.Context, a *App, w wallet.Wallet, clientID string, req *tonconnect.AppRequest) (interface{}, error) {
	switch req.Method {
	case tonconnect.MethodSendTransaction:
		param, err := req.SendTransaction()
		if err != nil {
			return tonconnect.ErrorReply(req.ID, err), err
		}
		r, err := a.TonConnect.HandleSendTransaction(ctx, w, clientID, param, approveRequest,
			signer.NewVault(a.Vault, w.Key().ID(), passwordPrompt))
		if err == nil {
			fmt.Printf("Sent. Message hash: %x\n", r.Hash)
		}
		return tonconnect.ReplyTo(req.ID, r, err), err

	case tonconnect.MethodDisconnect:
		if err := a.TonConnect.Disconnect(w, clientID); err != nil {
			return nil, err
		}
		fmt.Println("App disconnected.")
		return nil, nil

	default:
		err := fmt.Errorf("%w: %s", tonconnect.ErrUnsupportedMethod, req.Method)
		return tonconnect.ErrorReply(req.ID, err), err
	}
}

// approveRequest shows an emulated request and asks the user.
func approveRequest(ctx context.Context, r tonconnect.Request) (bool, error) {
	fmt.Printf("%s asks to send:\n", r.AppName)
	for i, m := range r.Messages {
		fmt.Printf("  #%d  %s TON -> %s\n", i+1, m.Amount.String(), m.To.String())
	}
	fmt.Printf("Estimated fee: %s TON\n", r.Fee().String())
	if r.Emulation != nil && r.Emulation.TransferAll {
		fmt.Println("Warning: this request sends your whole balance.")
	}
	return confirm(ctx, "Approve?")
}

func init() {
	for _, c := range []*cobra.Command{tcConnectCmd, tcAppsCmd, tcDisconnectCmd, tcHandleCmd} {
		c.Flags().StringVar(&walletID, "wallet", "", "Wallet id (default: active wallet)")
	}
	tcDisconnectCmd.Flags().BoolVar(&disconnectAll, "all", false, "Disconnect every app of the wallet")
	tonconnectCmd.AddCommand(tcConnectCmd, tcAppsCmd, tcDisconnectCmd, tcHandleCmd)
}
