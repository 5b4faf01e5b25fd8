package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/tonkeeper/tonkeeper-core/internal/tonapi"
)

// BalanceSource fetches account balances.
type BalanceSource interface {
	Balance(ctx context.Context, addr *address.Address) (tlb.Coins, error)
}

// RatesSource fetches token prices.
type RatesSource interface {
	Rates(ctx context.Context, tokens, currencies []string) (tonapi.Rates, error)
}

// ListSource fetches the curated lists the wallet shows.
type ListSource interface {
	PopularApps(ctx context.Context, lang string) ([]tonapi.PopularApp, error)
	KnownAccounts(ctx context.Context) ([]tonapi.KnownAccount, error)
	FiatMethods(ctx context.Context, country string) ([]tonapi.FiatMethod, error)
}

// ParseAddress accepts raw ("0:<hex>") and user-friendly addresses.
func ParseAddress(s string) (*address.Address, error) {
	if strings.Contains(s, ":") {
		return address.ParseRawAddr(s)
	}
	return address.ParseAddr(s)
}

// NewBalances creates a balance store keyed by account address.
func NewBalances(src BalanceSource) *Store[string, tlb.Coins] {
	return New(func(ctx context.Context, key string) (tlb.Coins, error) {
		addr, err := ParseAddress(key)
		if err != nil {
			return tlb.ZeroCoins, fmt.Errorf("balance of %q: %w", key, err)
		}
		return src.Balance(ctx, addr)
	}, WithName[string, tlb.Coins]("balances"))
}

// NewRates creates a rates store keyed by token symbol. Each value maps
// currency to price.
func NewRates(src RatesSource, currencies []string) *Store[string, map[string]float64] {
	cur := append([]string(nil), currencies...)
	return New(func(ctx context.Context, token string) (map[string]float64, error) {
		rates, err := src.Rates(ctx, []string{token}, cur)
		if err != nil {
			return nil, err
		}
		prices, ok := rates[strings.ToUpper(token)]
		if !ok {
			return nil, fmt.Errorf("no rates for %s", token)
		}
		return prices, nil
	}, WithName[string, map[string]float64]("rates"))
}

// NewPopularApps creates a store of popular dApps keyed by language.
func NewPopularApps(src ListSource) *Store[string, []tonapi.PopularApp] {
	return New(src.PopularApps, WithName[string, []tonapi.PopularApp]("popular_apps"))
}

// NewFiatMethods creates a store of fiat providers keyed by country code.
func NewFiatMethods(src ListSource) *Store[string, []tonapi.FiatMethod] {
	return New(src.FiatMethods, WithName[string, []tonapi.FiatMethod]("fiat_methods"))
}

// KnownAccounts holds labelled addresses indexed by raw address.
type KnownAccounts struct {
	*Store[string, tonapi.KnownAccount]
	src ListSource
}

// NewKnownAccounts creates an empty known accounts store.
func NewKnownAccounts(src ListSource) *KnownAccounts {
	return &KnownAccounts{
		Store: New[string, tonapi.KnownAccount](nil, WithName[string, tonapi.KnownAccount]("known_accounts")),
		src:   src,
	}
}

// Refresh reloads the whole list. Entries with unparsable addresses are
// skipped.
func (k *KnownAccounts) Refresh(ctx context.Context) error {
	list, err := k.src.KnownAccounts(ctx)
	if err != nil {
		return err
	}
	for _, acc := range list {
		addr, err := ParseAddress(acc.Address)
		if err != nil {
			continue
		}
		k.Set(addr.StringRaw(), acc)
	}
	return nil
}

// Lookup finds the entry for an address in any form.
func (k *KnownAccounts) Lookup(addr *address.Address) (tonapi.KnownAccount, bool) {
	return k.Get(addr.StringRaw())
}

// RequiresMemo reports whether transfers to addr must carry a comment.
func (k *KnownAccounts) RequiresMemo(addr *address.Address) bool {
	acc, ok := k.Lookup(addr)
	return ok && acc.RequireMemo
}
