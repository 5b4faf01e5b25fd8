package tonconnect

import (
	"encoding/base64"
	"errors"

	"github.com/tonkeeper/tonkeeper-core/pkg/tx"
)

// Wallet error codes of the TonConnect protocol.
const (
	CodeUnknown           = 0
	CodeBadRequest        = 1
	CodeUnknownApp        = 100
	CodeUserDeclined      = 300
	CodeMethodUnsupported = 400
)

// ReplyError is the error object of a failed reply.
type ReplyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Reply answers an app request.
type Reply struct {
	Result string      `json:"result,omitempty"`
	Error  *ReplyError `json:"error,omitempty"`
	ID     string      `json:"id"`
}

// DisconnectEvent tells the app the wallet dropped the connection.
type DisconnectEvent struct {
	Event   string   `json:"event"`
	ID      int64    `json:"id"`
	Payload struct{} `json:"payload"`
}

// NewDisconnectEvent returns the event sent when the wallet disconnects.
func (e *Engine) NewDisconnectEvent() DisconnectEvent {
	return DisconnectEvent{Event: "disconnect", ID: e.nextEventID()}
}

// ReplyTo builds the reply to a sendTransaction request from its outcome.
// A sent request answers with the signed message BOC.
func ReplyTo(id string, req Request, err error) Reply {
	if err == nil && req.State == RequestSent {
		return Reply{Result: base64.StdEncoding.EncodeToString(req.BOC), ID: id}
	}
	return Reply{Error: replyError(err), ID: id}
}

// ErrorReply builds an error reply for a request that never ran.
func ErrorReply(id string, err error) Reply {
	return Reply{Error: replyError(err), ID: id}
}

func replyError(err error) *ReplyError {
	code := CodeUnknown
	switch {
	case err == nil:
	case errors.Is(err, tx.ErrUserRejected), errors.Is(err, ErrCancelled):
		code = CodeUserDeclined
	case errors.Is(err, ErrUnknownApp):
		code = CodeUnknownApp
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrRequestExpired):
		code = CodeBadRequest
	case errors.Is(err, ErrUnsupportedMethod):
		code = CodeMethodUnsupported
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &ReplyError{Code: code, Message: msg}
}
