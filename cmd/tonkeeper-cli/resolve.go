package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonkeeper/tonkeeper-core/internal/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <address-or-domain>",
	Short: "Resolve a recipient the way the send form does",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		r := resolver.New(a.API, resolver.WithDebounce(cfg.Resolver.Debounce))
		defer r.Close()

		done := make(chan resolver.State, 1)
		stop := r.Observe(func(s resolver.State) {
			if resolver.Terminal(s) {
				select {
				case done <- s:
				default:
				}
			}
		})
		defer stop()
		r.Resolve(args[0])

		select {
		case s := <-done:
			switch s := s.(type) {
			case resolver.Resolved:
				raw := s.Address.StringRaw()
				fmt.Printf("%s (%s)\n", s.Address.String(), s.Source)
				fmt.Printf("raw: %s\n", raw)
				known := a.knownAccounts(cmd)
				if acc, ok := known.Lookup(s.Address); ok {
					fmt.Printf("known account: %s\n", acc.Name)
				}
				if known.RequiresMemo(s.Address) {
					fmt.Println("this recipient requires a comment (memo)")
				}
			case resolver.Failed:
				return s.Err
			}
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
		return nil
	},
}
