package tonapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xssnick/tonutils-go/address"

	klog "github.com/tonkeeper/tonkeeper-core/internal/log"
)

const testAddr = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     int64           `json:"id"`
}

// rpcServer answers JSON-RPC calls with results[method].
func rpcServer(t *testing.T, results map[string]string) (*Client, *[]rpcCall) {
	t.Helper()
	klog.SetOutput(io.Discard, "disabled")

	var calls []rpcCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Errorf("decode request: %v", err)
		}
		calls = append(calls, call)
		res, ok := results[call.Method]
		if !ok {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		w.Write([]byte(`{"ok":true,"jsonrpc":"2.0","id":1,"result":` + res + `}`))
	}))
	t.Cleanup(srv.Close)
	return New(Options{RPCEndpoint: srv.URL, Endpoint: srv.URL}), &calls
}

func restServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	klog.SetOutput(io.Discard, "disabled")
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{Endpoint: srv.URL, RPCEndpoint: srv.URL, APIKey: "secret"})
}

func mustAddr(t *testing.T) *address.Address {
	t.Helper()
	a, err := address.ParseRawAddr(testAddr)
	if err != nil {
		t.Fatalf("ParseRawAddr() error: %v", err)
	}
	return a
}

func TestClient_Seqno(t *testing.T) {
	c, calls := rpcServer(t, map[string]string{
		"runGetMethod": `{"gas_used":100,"stack":[["num","0x1f"]],"exit_code":0}`,
	})

	seqno, err := c.Seqno(context.Background(), mustAddr(t))
	if err != nil {
		t.Fatalf("Seqno() error: %v", err)
	}
	if seqno != 31 {
		t.Errorf("seqno = %d, want 31", seqno)
	}
	if len(*calls) != 1 || !strings.Contains(string((*calls)[0].Params), `"method":"seqno"`) {
		t.Errorf("unexpected calls: %+v", *calls)
	}
}

func TestClient_SeqnoUninitialized(t *testing.T) {
	c, _ := rpcServer(t, map[string]string{
		"runGetMethod": `{"gas_used":0,"stack":[],"exit_code":-13}`,
	})
	seqno, err := c.Seqno(context.Background(), mustAddr(t))
	if err != nil {
		t.Fatalf("Seqno() error: %v", err)
	}
	if seqno != 0 {
		t.Errorf("seqno = %d, want 0 for undeployed wallet", seqno)
	}
}

func TestClient_Balance(t *testing.T) {
	c, _ := rpcServer(t, map[string]string{"getAddressBalance": `"1500000000"`})
	bal, err := c.Balance(context.Background(), mustAddr(t))
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if bal.Nano().Int64() != 1_500_000_000 {
		t.Errorf("balance = %s, want 1.5 TON", bal.String())
	}
}

func TestClient_EstimateFee(t *testing.T) {
	c, calls := rpcServer(t, map[string]string{
		"estimateFee": `{"source_fees":{"in_fwd_fee":1000,"storage_fee":10,"gas_fee":3000,"fwd_fee":500}}`,
	})
	fees, err := c.EstimateFee(context.Background(), mustAddr(t), []byte{1, 2}, nil, nil)
	if err != nil {
		t.Fatalf("EstimateFee() error: %v", err)
	}
	if fees.Total().Nano().Int64() != 4510 {
		t.Errorf("total fee = %s, want 4510 nano", fees.Total().Nano())
	}
	if !strings.Contains(string((*calls)[0].Params), `"ignore_chksig":true`) {
		t.Error("fee estimation should skip signature checks")
	}
}

func TestClient_RPCError(t *testing.T) {
	c, _ := rpcServer(t, map[string]string{})
	err := c.SendBoc(context.Background(), []byte{0xb5})

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("error code = %d, want -32601", rpcErr.Code)
	}
}

func TestClient_RPCStringError(t *testing.T) {
	c := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"ok":false,"error":"LITE_SERVER_UNKNOWN: cannot apply external message","code":500}`))
	})
	err := c.SendBoc(context.Background(), []byte{0xb5})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != 500 || !strings.Contains(rpcErr.Message, "cannot apply") {
		t.Errorf("rpc error = %+v", rpcErr)
	}
}

func TestClient_NetworkError(t *testing.T) {
	c := New(Options{RPCEndpoint: "http://127.0.0.1:1/", Timeout: time.Second})
	err := c.SendBoc(context.Background(), []byte{1})
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	c := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Rates(ctx, []string{"TON"}, []string{"USD"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClient_Emulate(t *testing.T) {
	c := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/wallet/emulate" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Error("missing API key")
		}
		w.Write([]byte(`{"event":{"extra":-5500000,"actions":[{"type":"TonTransfer","status":"ok"}]},"risk":{"ton":100000000,"transfer_all_remaining_balance":false}}`))
	})
	e, err := c.Emulate(context.Background(), []byte{0xb5, 0xee})
	if err != nil {
		t.Fatalf("Emulate() error: %v", err)
	}
	if e.Fee.Nano().Int64() != 5_500_000 {
		t.Errorf("fee = %s, want 5500000 nano", e.Fee.Nano())
	}
	if e.Risk.Nano().Int64() != 100_000_000 || len(e.Actions) != 1 {
		t.Errorf("emulation = %+v", e)
	}
}

func TestClient_Rates(t *testing.T) {
	c := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tokens") != "ton" || r.URL.Query().Get("currencies") != "USD,EUR" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"rates":{"ton":{"prices":{"USD":5.25,"EUR":4.8}}}}`))
	})
	rates, err := c.Rates(context.Background(), []string{"ton"}, []string{"USD", "EUR"})
	if err != nil {
		t.Fatalf("Rates() error: %v", err)
	}
	if rates["TON"]["USD"] != 5.25 {
		t.Errorf("TON/USD = %v, want 5.25", rates["TON"]["USD"])
	}
}

func TestClient_ResolveDNS(t *testing.T) {
	c := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/dns/foundation.ton/resolve":
			w.Write([]byte(`{"wallet":{"address":"` + testAddr + `"}}`))
		case "/v2/dns/empty.ton/resolve":
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	})

	addr, err := c.ResolveDNS(context.Background(), "foundation.ton")
	if err != nil {
		t.Fatalf("ResolveDNS() error: %v", err)
	}
	if addr.StringRaw() != testAddr {
		t.Errorf("address = %s, want %s", addr.StringRaw(), testAddr)
	}

	for _, domain := range []string{"empty.ton", "missing.ton"} {
		if _, err := c.ResolveDNS(context.Background(), domain); !errors.Is(err, ErrNotFound) {
			t.Errorf("ResolveDNS(%s) error = %v, want ErrNotFound", domain, err)
		}
	}
}

func TestClient_HTTPError(t *testing.T) {
	c := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit"}`))
	})
	_, err := c.PopularApps(context.Background(), "en")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %T: %v", err, err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", httpErr.Status)
	}
}

func TestClient_ExternalURLHasNoAPIKey(t *testing.T) {
	ext := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("API key sent to a third-party host")
		}
		w.Write([]byte(`{"name":"dApp"}`))
	}))
	defer ext.Close()

	c := restServer(t, func(w http.ResponseWriter, r *http.Request) {})
	var out struct{ Name string }
	if err := c.Get(context.Background(), ext.URL+"/tonconnect-manifest.json", &out); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if out.Name != "dApp" {
		t.Errorf("name = %q", out.Name)
	}
}

func TestClient_Lists(t *testing.T) {
	c := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/apps/popular":
			w.Write([]byte(`{"apps":[{"name":"Getgems","url":"https://getgems.io"}]}`))
		case "/accounts/known":
			w.Write([]byte(`[{"address":"` + testAddr + `","name":"Exchange","require_memo":true}]`))
		case "/fiat/methods":
			w.Write([]byte(`{"methods":[{"id":"mercuryo","title":"Mercuryo","url":"https://exchange.mercuryo.io","currencies":["USD"]}]}`))
		}
	})
	ctx := context.Background()

	apps, err := c.PopularApps(ctx, "en")
	if err != nil || len(apps) != 1 || apps[0].Name != "Getgems" {
		t.Errorf("PopularApps() = %+v, %v", apps, err)
	}
	known, err := c.KnownAccounts(ctx)
	if err != nil || len(known) != 1 || !known[0].RequireMemo {
		t.Errorf("KnownAccounts() = %+v, %v", known, err)
	}
	methods, err := c.FiatMethods(ctx, "DE")
	if err != nil || len(methods) != 1 || methods[0].ID != "mercuryo" {
		t.Errorf("FiatMethods() = %+v, %v", methods, err)
	}
}
