package tonconnect

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/address"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/internal/store"
	"github.com/tonkeeper/tonkeeper-core/internal/tonapi"
	"github.com/tonkeeper/tonkeeper-core/internal/wallet"
	"github.com/tonkeeper/tonkeeper-core/pkg/tx"
)

// Engine errors.
var (
	ErrRequestExpired  = errors.New("request expired")
	ErrCancelled       = errors.New("request cancelled")
	ErrEmulationFailed = errors.New("emulation failed")
	ErrUnknownRequest  = errors.New("unknown request")
)

// ConnState is the state of one app connection.
type ConnState int

const (
	ConnNone ConnState = iota
	ConnParsed
	ConnAwaitingWallet
	ConnConnected
	ConnDisconnected
)

func (s ConnState) String() string {
	switch s {
	case ConnParsed:
		return "parsed"
	case ConnAwaitingWallet:
		return "awaiting_wallet"
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	default:
		return "none"
	}
}

// Network is the chain collaborator the engine needs.
type Network interface {
	Seqno(ctx context.Context, addr *address.Address) (uint32, error)
	Emulate(ctx context.Context, boc []byte) (*tonapi.Emulation, error)
	SendBoc(ctx context.Context, boc []byte) error
}

// ProofSigner signs a ton_proof hash with the wallet key. A nil signature
// means the user declined.
type ProofSigner interface {
	SignBytes(ctx context.Context, msg []byte) ([]byte, error)
}

// Approver shows an emulated request to the user.
type Approver func(ctx context.Context, req Request) (bool, error)

// ReplyItem is one item of a connect reply.
type ReplyItem struct {
	Name            string `json:"name"`
	Address         string `json:"address,omitempty"`
	Network         string `json:"network,omitempty"`
	PublicKey       string `json:"publicKey,omitempty"`
	WalletStateInit string `json:"walletStateInit,omitempty"`
	Proof           *Proof `json:"proof,omitempty"`
}

// DeviceInfo describes the wallet to the app.
type DeviceInfo struct {
	Platform           string        `json:"platform"`
	AppName            string        `json:"appName"`
	AppVersion         string        `json:"appVersion"`
	MaxProtocolVersion int           `json:"maxProtocolVersion"`
	Features           []interface{} `json:"features"`
}

// ConnectResponse is the connect event sent back to the app.
type ConnectResponse struct {
	Event   string `json:"event"`
	ID      int64  `json:"id"`
	Payload struct {
		Items  []ReplyItem `json:"items"`
		Device DeviceInfo  `json:"device"`
	} `json:"payload"`

	App App `json:"-"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDevice sets the device info sent on connect.
func WithDevice(d DeviceInfo) Option {
	return func(e *Engine) { e.device = d }
}

// Engine handles connects and sendTransaction requests.
type Engine struct {
	net       Network
	manifests *Manifests
	registry  *Registry
	requests  *store.Store[uuid.UUID, Request]
	now       func() time.Time
	device    DeviceInfo

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelCauseFunc
	conns   map[string]ConnState
	eventID int64
}

// NewEngine creates an engine.
func NewEngine(net Network, manifests *Manifests, registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		net:       net,
		manifests: manifests,
		registry:  registry,
		requests:  store.New[uuid.UUID, Request](nil, store.WithName[uuid.UUID, Request]("tonconnect-requests")),
		now:       time.Now,
		device: DeviceInfo{
			Platform:           "linux",
			AppName:            "Tonkeeper",
			AppVersion:         "1.0.0",
			MaxProtocolVersion: ProtocolVersion,
			Features: []interface{}{
				"SendTransaction",
				map[string]interface{}{"name": "SendTransaction", "maxMessages": tx.MaxMessages},
			},
		},
		cancels: make(map[uuid.UUID]context.CancelCauseFunc),
		conns:   make(map[string]ConnState),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) setConn(clientID string, s ConnState) {
	e.mu.Lock()
	e.conns[clientID] = s
	e.mu.Unlock()
}

// ConnectionState returns the connection state of clientID.
func (e *Engine) ConnectionState(clientID string) ConnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[clientID]
}

// Open parses a connect link and tracks the connection as parsed.
func (e *Engine) Open(raw string) (*ConnectRequest, error) {
	req, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	e.setConn(req.ClientID, ConnParsed)
	return req, nil
}

// Connect answers req with wallet w: it fetches the app manifest, builds
// the ton_addr item and, when asked, a ton_proof signed by signer, then
// registers the app.
func (e *Engine) Connect(ctx context.Context, req *ConnectRequest, w wallet.Wallet, signer ProofSigner) (*ConnectResponse, error) {
	e.setConn(req.ClientID, ConnAwaitingWallet)
	resp, err := e.connect(ctx, req, w, signer)
	if err != nil {
		e.setConn(req.ClientID, ConnParsed)
		return nil, err
	}
	e.setConn(req.ClientID, ConnConnected)
	return resp, nil
}

func (e *Engine) connect(ctx context.Context, req *ConnectRequest, w wallet.Wallet, signer ProofSigner) (*ConnectResponse, error) {
	manifest, err := e.manifests.Get(ctx, req.Payload.ManifestURL)
	if err != nil {
		return nil, err
	}
	addr, err := w.Address()
	if err != nil {
		return nil, err
	}
	init, err := w.StateInitBOC()
	if err != nil {
		return nil, err
	}

	items := []ReplyItem{{
		Name:            ItemTonAddr,
		Address:         addr.StringRaw(),
		Network:         w.Identity.Network.ChainID(),
		PublicKey:       hex.EncodeToString(w.Identity.PublicKey),
		WalletStateInit: base64.StdEncoding.EncodeToString(init),
	}}

	if payload, ok := req.ProofPayload(); ok {
		ts := e.now()
		domain := manifest.Host()
		sig, err := signer.SignBytes(ctx, ProofHash(addr, domain, ts, payload))
		if err != nil {
			return nil, fmt.Errorf("sign proof: %w", err)
		}
		if len(sig) == 0 {
			return nil, tx.ErrUserRejected
		}
		items = append(items, ReplyItem{
			Name: ItemTonProof,
			Proof: &Proof{
				Timestamp: ts.Unix(),
				Domain:    ProofDomain{LengthBytes: uint32(len(domain)), Value: domain},
				Signature: base64.StdEncoding.EncodeToString(sig),
				Payload:   payload,
			},
		})
	}

	session, err := NewSession(req.ClientID)
	if err != nil {
		return nil, err
	}
	app := App{
		WalletID:    w.ID(),
		ClientID:    req.ClientID,
		Manifest:    manifest,
		SessionPub:  session.Public[:],
		SessionPriv: session.Private[:],
		ConnectedAt: e.now().UTC(),
	}
	if err := e.registry.Register(app); err != nil {
		return nil, err
	}

	resp := &ConnectResponse{Event: "connect", ID: e.nextEventID(), App: app}
	resp.Payload.Items = items
	resp.Payload.Device = e.device
	return resp, nil
}

func (e *Engine) nextEventID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventID++
	return e.eventID
}

// Disconnect removes the app of clientID from wallet w.
func (e *Engine) Disconnect(w wallet.Wallet, clientID string) error {
	if err := e.registry.Remove(w.ID(), clientID); err != nil {
		return err
	}
	e.setConn(clientID, ConnDisconnected)
	log.TonConnect.Info().Str("wallet", w.ID()).Str("client", clientID).Msg("App disconnected")
	return nil
}

// DisconnectAll removes every app of wallet w.
func (e *Engine) DisconnectAll(w wallet.Wallet) error {
	apps, err := e.registry.Apps(w.ID())
	if err != nil {
		return err
	}
	if _, err := e.registry.DisconnectAll(w.ID()); err != nil {
		return err
	}
	for _, a := range apps {
		e.setConn(a.ClientID, ConnDisconnected)
	}
	return nil
}

// OpenRequest decrypts a bridge message from a connected app.
func (e *Engine) OpenRequest(w wallet.Wallet, clientID string, data []byte) (*AppRequest, error) {
	app, err := e.registry.Lookup(w.ID(), clientID)
	if err != nil {
		return nil, err
	}
	s, err := app.Session()
	if err != nil {
		return nil, err
	}
	plain, err := s.Open(data)
	if err != nil {
		return nil, err
	}
	var req AppRequest
	if err := json.Unmarshal(plain, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &req, nil
}

// SealReply encrypts v as JSON for a connected app.
func (e *Engine) SealReply(w wallet.Wallet, clientID string, v interface{}) ([]byte, error) {
	app, err := e.registry.Lookup(w.ID(), clientID)
	if err != nil {
		return nil, err
	}
	s, err := app.Session()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s.Seal(data)
}

// Request returns a snapshot of request id.
func (e *Engine) Request(id uuid.UUID) (Request, bool) {
	return e.requests.Get(id)
}

// ObserveRequests calls fn on every request transition while owner lives.
func (e *Engine) ObserveRequests(owner *store.Owner, fn func(Request)) store.Token {
	return e.requests.AddObserver(owner, func(ev store.Event[uuid.UUID, Request]) {
		fn(ev.Value)
	})
}

// Result is the outcome of a submitted request.
type Result struct {
	Request Request
	Err     error
}

// HandleSendTransaction runs a sendTransaction request to completion:
// seqno, unsigned preview, emulation, approval, signature, broadcast.
// Nothing is broadcast unless emulation succeeded and the user approved.
func (e *Engine) HandleSendTransaction(ctx context.Context, w wallet.Wallet, clientID string, param SendTransactionParam, approve Approver, signer tx.Signer) (Request, error) {
	_, ch, err := e.Submit(ctx, w, clientID, param, approve, signer)
	if err != nil {
		return Request{}, err
	}
	res := <-ch
	return res.Request, res.Err
}

// Submit validates the request and runs it in the background. The returned
// id can be passed to Cancel; the channel receives exactly one Result.
func (e *Engine) Submit(ctx context.Context, w wallet.Wallet, clientID string, param SendTransactionParam, approve Approver, signer tx.Signer) (uuid.UUID, <-chan Result, error) {
	app, err := e.registry.Lookup(w.ID(), clientID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	msgs, deadline, err := decodeMessages(param, w, e.now())
	if err != nil {
		return uuid.Nil, nil, err
	}

	req := Request{
		ID:         uuid.New(),
		WalletID:   w.ID(),
		ClientID:   clientID,
		AppName:    app.Manifest.Name,
		Messages:   msgs,
		ValidUntil: deadline,
		State:      RequestPending,
	}
	e.requests.Set(req.ID, req)

	rctx, cancel := context.WithCancelCause(ctx)
	e.mu.Lock()
	e.cancels[req.ID] = cancel
	e.mu.Unlock()

	ch := make(chan Result, 1)
	go func() {
		final, err := e.run(rctx, req, w, approve, signer)
		e.mu.Lock()
		delete(e.cancels, req.ID)
		e.mu.Unlock()
		cancel(nil)
		ch <- Result{Request: final, Err: err}
	}()
	return req.ID, ch, nil
}

// Cancel stops a running request. A request that already broadcast cannot
// be cancelled.
func (e *Engine) Cancel(id uuid.UUID) error {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	cancel(ErrCancelled)
	return nil
}

func (e *Engine) transition(id uuid.UUID, fn func(*Request)) Request {
	out, _ := e.requests.Update(id, func(old Request, _ bool) (Request, error) {
		fn(&old)
		return old, nil
	})
	return out
}

// finish moves the request into its terminal state for err.
func (e *Engine) finish(ctx context.Context, id uuid.UUID, err error) (Request, error) {
	state := RequestFailed
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		state = RequestCancelled
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
	case errors.Is(err, tx.ErrUserRejected):
		state = RequestRejected
	}
	r := e.transition(id, func(r *Request) {
		r.State = state
		r.Err = err
	})
	log.TonConnect.Info().Stringer("request", id).Stringer("state", state).Err(err).Msg("Request finished")
	return r, err
}

func (e *Engine) run(ctx context.Context, req Request, w wallet.Wallet, approve Approver, signer tx.Signer) (Request, error) {
	logger := log.TonConnect.With().Stringer("request", req.ID).Str("app", req.AppName).Logger()

	addr, err := w.Address()
	if err != nil {
		return e.finish(ctx, req.ID, err)
	}
	seqno, err := e.net.Seqno(ctx, addr)
	if err != nil {
		return e.finish(ctx, req.ID, cause(ctx, err))
	}

	// One expiry for the emulated and the signed message, never past the
	// app's deadline.
	b := tx.NewBuilder(w, seqno)
	b.Now = e.now
	b.ValidUntil = e.now().Add(b.Timeout)
	if !req.ValidUntil.IsZero() && req.ValidUntil.Before(b.ValidUntil) {
		b.ValidUntil = req.ValidUntil
	}
	for _, m := range req.Messages {
		b.AddRaw(m)
	}

	preview, err := b.Preview()
	if err != nil {
		return e.finish(ctx, req.ID, err)
	}
	emu, err := e.net.Emulate(ctx, preview.BOC)
	if err != nil {
		if ctx.Err() != nil {
			return e.finish(ctx, req.ID, cause(ctx, err))
		}
		return e.finish(ctx, req.ID, fmt.Errorf("%w: %w", ErrEmulationFailed, err))
	}
	snap := e.transition(req.ID, func(r *Request) {
		r.State = RequestEmulated
		r.Emulation = emu
	})
	logger.Debug().Str("fee", emu.Fee.String()).Msg("Request emulated")

	ok, err := approve(ctx, snap)
	if err != nil {
		return e.finish(ctx, req.ID, cause(ctx, err))
	}
	if !ok {
		return e.finish(ctx, req.ID, tx.ErrUserRejected)
	}
	if e.expired(req) {
		return e.finish(ctx, req.ID, ErrRequestExpired)
	}

	signed, err := b.Build(ctx, signer)
	if err != nil {
		return e.finish(ctx, req.ID, cause(ctx, err))
	}
	if ctx.Err() != nil {
		return e.finish(ctx, req.ID, cause(ctx, ctx.Err()))
	}
	if signed.Stale(e.now()) || e.expired(req) {
		return e.finish(ctx, req.ID, ErrRequestExpired)
	}

	if err := e.net.SendBoc(ctx, signed.BOC); err != nil {
		return e.finish(ctx, req.ID, cause(ctx, err))
	}
	final := e.transition(req.ID, func(r *Request) {
		r.State = RequestSent
		r.Hash = signed.Hash
		r.BOC = signed.BOC
	})
	logger.Info().Uint32("seqno", signed.Seqno).Hex("hash", signed.Hash).Msg("Request sent")
	return final, nil
}

// expired reports whether the app's deadline for r has passed.
func (e *Engine) expired(r Request) bool {
	return !r.ValidUntil.IsZero() && !e.now().Before(r.ValidUntil)
}

// cause prefers the cancellation cause of ctx over err.
func cause(ctx context.Context, err error) error {
	if c := context.Cause(ctx); c != nil {
		return c
	}
	return err
}
