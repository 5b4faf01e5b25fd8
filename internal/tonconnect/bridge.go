package tonconnect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/tonapi"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
)

// DefaultBridgeTTL is how long the bridge keeps an undelivered message.
const DefaultBridgeTTL = 5 * time.Minute

// Bridge delivers sealed messages to apps through a TonConnect HTTP bridge.
type Bridge struct {
	url    string
	client *http.Client
}

// NewBridge creates a bridge client for baseURL, e.g.
// https://bridge.tonapi.io/bridge.
func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	return &Bridge{
		url:    strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts a sealed message from the wallet session to the app clientID.
func (b *Bridge) Send(ctx context.Context, from *Session, clientID string, sealed []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultBridgeTTL
	}
	q := url.Values{}
	q.Set("client_id", from.ID())
	q.Set("to", strings.ToLower(clientID))
	q.Set("ttl", strconv.Itoa(int(ttl/time.Second)))

	body := strings.NewReader(base64.StdEncoding.EncodeToString(sealed))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+"/message?"+q.Encode(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: bridge: %v", tonapi.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &tonapi.HTTPError{Status: resp.StatusCode, Body: string(msg)}
	}
	log.TonConnect.Debug().Str("to", clientID).Int("bytes", len(sealed)).Msg("Bridge message sent")
	return nil
}

// SendReply seals v as JSON for the connected app and sends it through
// the bridge.
func (e *Engine) SendReply(ctx context.Context, b *Bridge, w wallet.Wallet, clientID string, v interface{}) error {
	app, err := e.registry.Lookup(w.ID(), clientID)
	if err != nil {
		return err
	}
	s, err := app.Session()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sealed, err := s.Seal(data)
	if err != nil {
		return err
	}
	return b.Send(ctx, s, clientID, sealed, DefaultBridgeTTL)
}
