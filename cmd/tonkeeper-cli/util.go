package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/tonkeeper/tonkeeper-core/internal/resolver"
	"github.com/tonkeeper/tonkeeper-core/internal/store"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
)

// displayAddress renders a wallet address the way users share it:
// user-friendly and non-bounceable.
func displayAddress(addr *address.Address, w wallet.Wallet) string {
	a := addr.Copy()
	a.SetBounce(false)
	a.SetTestnetOnly(w.IsTestnet())
	return a.String()
}

func coinsFloat(c tlb.Coins) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(c.Nano()), big.NewFloat(1e9)).Float64()
	return f
}

// parseTON parses a decimal TON amount such as "1.5".
func parseTON(s string) (tlb.Coins, error) {
	c, err := tlb.FromTON(s)
	if err != nil {
		return tlb.Coins{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if c.Nano().Sign() <= 0 {
		return tlb.Coins{}, fmt.Errorf("amount must be positive")
	}
	return c, nil
}

// parseUnits parses a decimal token amount into base units.
func parseUnits(s string, decimals int) (*big.Int, error) {
	c, err := tlb.FromDecimal(s, decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if c.Nano().Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return c.Nano(), nil
}

// resolveRecipient turns an address or domain into an address. The CLI has
// the whole input at once, so no debounce is applied.
func resolveRecipient(ctx context.Context, a *App, input string) (*address.Address, error) {
	r := resolver.New(a.API, resolver.WithDebounce(0))
	defer r.Close()
	addr, src, err := r.Lookup(ctx, input)
	if err != nil {
		return nil, err
	}
	if src == resolver.SourceDomain {
		fmt.Printf("%s -> %s\n", input, addr.String())
	}
	return addr, nil
}

// parseAddress parses a raw or user-friendly address.
func parseAddress(s string) (*address.Address, error) {
	addr, err := store.ParseAddress(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
