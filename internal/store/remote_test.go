package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"github.com/tonkeeper/tonkeeper-core/internal/tonapi"
)

const rawAddr = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

type fakeAPI struct {
	balanceCalls int32
	balance      tlb.Coins
	rates        tonapi.Rates
	known        []tonapi.KnownAccount
	err          error
}

func (f *fakeAPI) Balance(ctx context.Context, addr *address.Address) (tlb.Coins, error) {
	atomic.AddInt32(&f.balanceCalls, 1)
	return f.balance, f.err
}

func (f *fakeAPI) Rates(ctx context.Context, tokens, currencies []string) (tonapi.Rates, error) {
	return f.rates, f.err
}

func (f *fakeAPI) PopularApps(ctx context.Context, lang string) ([]tonapi.PopularApp, error) {
	return []tonapi.PopularApp{{Name: "app-" + lang}}, f.err
}

func (f *fakeAPI) KnownAccounts(ctx context.Context) ([]tonapi.KnownAccount, error) {
	return f.known, f.err
}

func (f *fakeAPI) FiatMethods(ctx context.Context, country string) ([]tonapi.FiatMethod, error) {
	return []tonapi.FiatMethod{{ID: country}}, f.err
}

func TestBalances(t *testing.T) {
	api := &fakeAPI{balance: tlb.MustFromTON("2.5")}
	s := NewBalances(api)

	got, err := s.Load(context.Background(), rawAddr)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Nano().Int64() != 2_500_000_000 {
		t.Errorf("balance = %s, want 2.5", got.String())
	}
	if _, err := s.Load(context.Background(), "not an address"); err == nil {
		t.Error("invalid address should fail")
	}
	if api.balanceCalls != 1 {
		t.Errorf("network calls = %d, want 1", api.balanceCalls)
	}
}

func TestRates(t *testing.T) {
	api := &fakeAPI{rates: tonapi.Rates{"TON": {"USD": 5.5}}}
	s := NewRates(api, []string{"USD"})
	prices, err := s.Load(context.Background(), "ton")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if prices["USD"] != 5.5 {
		t.Errorf("TON/USD = %v", prices["USD"])
	}
	if _, err := s.Load(context.Background(), "NOT"); err == nil {
		t.Error("missing token should fail")
	}
}

func TestLists(t *testing.T) {
	api := &fakeAPI{}
	apps, err := NewPopularApps(api).Load(context.Background(), "ru")
	if err != nil || apps[0].Name != "app-ru" {
		t.Errorf("popular apps = %+v, %v", apps, err)
	}
	methods, err := NewFiatMethods(api).Load(context.Background(), "DE")
	if err != nil || methods[0].ID != "DE" {
		t.Errorf("fiat methods = %+v, %v", methods, err)
	}
}

func TestKnownAccounts(t *testing.T) {
	api := &fakeAPI{known: []tonapi.KnownAccount{
		{Address: rawAddr, Name: "Exchange", RequireMemo: true},
		{Address: "garbage", Name: "Broken"},
	}}
	k := NewKnownAccounts(api)
	if err := k.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if k.Len() != 1 {
		t.Errorf("entries = %d, want 1", k.Len())
	}

	addr, _ := address.ParseRawAddr(rawAddr)
	friendly, err := address.ParseAddr(addr.String())
	if err != nil {
		t.Fatalf("ParseAddr() error: %v", err)
	}
	if !k.RequiresMemo(friendly) {
		t.Error("lookup by friendly form should find the raw entry")
	}

	api.err = errors.New("offline")
	if err := k.Refresh(context.Background()); err == nil {
		t.Error("Refresh() should surface network errors")
	}
	if k.Len() != 1 {
		t.Error("failed refresh must keep previous entries")
	}
}
