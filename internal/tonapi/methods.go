package tonapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
)

type runGetMethodParams struct {
	Address string        `json:"address"`
	Method  string        `json:"method"`
	Stack   []interface{} `json:"stack"`
}

type runGetMethodResult struct {
	GasUsed  int64               `json:"gas_used"`
	Stack    [][]json.RawMessage `json:"stack"`
	ExitCode int                 `json:"exit_code"`
}

// Seqno returns the wallet sequence number. Accounts without deployed code
// report 0, the seqno of the first transfer that deploys them.
func (c *Client) Seqno(ctx context.Context, addr *address.Address) (uint32, error) {
	var res runGetMethodResult
	params := runGetMethodParams{Address: addr.String(), Method: "seqno", Stack: []interface{}{}}
	if err := c.Call(ctx, "runGetMethod", params, &res); err != nil {
		return 0, err
	}
	// 0 and 1 are the TVM success codes; anything else means no contract.
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return 0, nil
	}
	if len(res.Stack) == 0 || len(res.Stack[0]) < 2 {
		return 0, fmt.Errorf("seqno: empty stack")
	}
	var num string
	if err := json.Unmarshal(res.Stack[0][1], &num); err != nil {
		return 0, fmt.Errorf("seqno: %w", err)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(num, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("seqno: parse %q: %w", num, err)
	}
	return uint32(v), nil
}

// Balance returns the TON balance of addr.
func (c *Client) Balance(ctx context.Context, addr *address.Address) (tlb.Coins, error) {
	var res string
	if err := c.Call(ctx, "getAddressBalance", map[string]string{"address": addr.String()}, &res); err != nil {
		return tlb.ZeroCoins, err
	}
	n, ok := new(big.Int).SetString(res, 10)
	if !ok {
		return tlb.ZeroCoins, fmt.Errorf("balance: bad amount %q", res)
	}
	return tlb.FromNanoTON(n), nil
}

// Fees is the fee breakdown returned by EstimateFee.
type Fees struct {
	InFwdFee   int64 `json:"in_fwd_fee"`
	StorageFee int64 `json:"storage_fee"`
	GasFee     int64 `json:"gas_fee"`
	FwdFee     int64 `json:"fwd_fee"`
}

// Total sums every component.
func (f Fees) Total() tlb.Coins {
	return tlb.FromNanoTONU(uint64(f.InFwdFee + f.StorageFee + f.GasFee + f.FwdFee))
}

// EstimateFee asks the node for the source fees of an external message body.
// Signatures are not checked, so an unsigned body works.
func (c *Client) EstimateFee(ctx context.Context, addr *address.Address, body, initCode, initData []byte) (Fees, error) {
	params := map[string]interface{}{
		"address":       addr.String(),
		"body":          base64.StdEncoding.EncodeToString(body),
		"ignore_chksig": true,
	}
	if initCode != nil {
		params["init_code"] = base64.StdEncoding.EncodeToString(initCode)
		params["init_data"] = base64.StdEncoding.EncodeToString(initData)
	}
	var res struct {
		SourceFees Fees `json:"source_fees"`
	}
	if err := c.Call(ctx, "estimateFee", params, &res); err != nil {
		return Fees{}, err
	}
	return res.SourceFees, nil
}

// SendBoc broadcasts a serialized external message. It is never retried
// here; callers re-check the seqno before sending again.
func (c *Client) SendBoc(ctx context.Context, boc []byte) error {
	return c.Call(ctx, "sendBoc", map[string]string{"boc": base64.StdEncoding.EncodeToString(boc)}, nil)
}

// Action is one step of an emulated trace.
type Action struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Emulation is the dry-run result of a message.
type Emulation struct {
	Fee         tlb.Coins
	Risk        tlb.Coins
	TransferAll bool
	Actions     []Action
}

type emulationResponse struct {
	Event struct {
		Extra   int64    `json:"extra"`
		Actions []Action `json:"actions"`
	} `json:"event"`
	Risk struct {
		TON         int64 `json:"ton"`
		TransferAll bool  `json:"transfer_all_remaining_balance"`
	} `json:"risk"`
}

// Emulate runs the message against current chain state and returns the fee
// the wallet would pay.
func (c *Client) Emulate(ctx context.Context, boc []byte) (*Emulation, error) {
	var res emulationResponse
	in := map[string]string{"boc": base64.StdEncoding.EncodeToString(boc)}
	if err := c.Post(ctx, "/v2/wallet/emulate", in, &res); err != nil {
		return nil, err
	}
	e := &Emulation{
		Fee:         tlb.ZeroCoins,
		Risk:        tlb.FromNanoTONU(uint64(max(res.Risk.TON, 0))),
		TransferAll: res.Risk.TransferAll,
		Actions:     res.Event.Actions,
	}
	// extra is the account balance change beyond transfers: negative = fee.
	if res.Event.Extra < 0 {
		e.Fee = tlb.FromNanoTONU(uint64(-res.Event.Extra))
	}
	return e, nil
}

// Rates maps token -> currency -> price.
type Rates map[string]map[string]float64

// Rates fetches prices of tokens in currencies.
func (c *Client) Rates(ctx context.Context, tokens, currencies []string) (Rates, error) {
	q := url.Values{}
	q.Set("tokens", strings.Join(tokens, ","))
	q.Set("currencies", strings.Join(currencies, ","))
	var res struct {
		Rates map[string]struct {
			Prices map[string]float64 `json:"prices"`
		} `json:"rates"`
	}
	if err := c.Get(ctx, "/v2/rates?"+q.Encode(), &res); err != nil {
		return nil, err
	}
	out := make(Rates, len(res.Rates))
	for token, r := range res.Rates {
		out[strings.ToUpper(token)] = r.Prices
	}
	return out, nil
}

// ResolveDNS resolves a .ton / .t.me domain to the wallet it points at.
func (c *Client) ResolveDNS(ctx context.Context, domain string) (*address.Address, error) {
	var res struct {
		Wallet *struct {
			Address string `json:"address"`
		} `json:"wallet"`
	}
	if err := c.Get(ctx, "/v2/dns/"+url.PathEscape(domain)+"/resolve", &res); err != nil {
		return nil, err
	}
	if res.Wallet == nil || res.Wallet.Address == "" {
		return nil, fmt.Errorf("%w: %s has no wallet record", ErrNotFound, domain)
	}
	if addr, err := address.ParseRawAddr(res.Wallet.Address); err == nil {
		return addr, nil
	}
	return address.ParseAddr(res.Wallet.Address)
}

// PopularApp is an entry of the curated dApp list.
type PopularApp struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// PopularApps fetches the curated dApp list for a language.
func (c *Client) PopularApps(ctx context.Context, lang string) ([]PopularApp, error) {
	var res struct {
		Apps []PopularApp `json:"apps"`
	}
	if err := c.Get(ctx, "/apps/popular?lang="+url.QueryEscape(lang), &res); err != nil {
		return nil, err
	}
	return res.Apps, nil
}

// KnownAccount is a labelled address, e.g. an exchange deposit wallet.
type KnownAccount struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	RequireMemo bool   `json:"require_memo"`
}

// KnownAccounts fetches the list of labelled addresses.
func (c *Client) KnownAccounts(ctx context.Context) ([]KnownAccount, error) {
	var res []KnownAccount
	if err := c.Get(ctx, "/accounts/known", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// FiatMethod is a buy/sell provider.
type FiatMethod struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Currencies []string `json:"currencies"`
}

// FiatMethods fetches the providers available in a country.
func (c *Client) FiatMethods(ctx context.Context, country string) ([]FiatMethod, error) {
	var res struct {
		Methods []FiatMethod `json:"methods"`
	}
	if err := c.Get(ctx, "/fiat/methods?country="+url.QueryEscape(country), &res); err != nil {
		return nil, err
	}
	return res.Methods, nil
}
