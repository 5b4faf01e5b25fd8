package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonkeeper/tonkeeper-core/internal/log"
	"github.com/tonkeeper/tonkeeper-core/pkg/tx"
)

// ErrDeviceRejected is returned by a Transport when the user declined on
// the device.
var ErrDeviceRejected = errors.New("rejected on device")

// Transport talks to an external signing device (hardware wallet, air-gapped
// phone). The device receives the signing payload BOC so it can show the
// messages before signing.
type Transport interface {
	SignPayload(ctx context.Context, payload []byte) ([]byte, error)
}

// Device signs on an external device.
type Device struct {
	transport Transport
}

// NewDevice creates a device signer.
func NewDevice(t Transport) *Device {
	return &Device{transport: t}
}

// Sign implements tx.Signer. A decline on the device yields a nil
// signature.
func (d *Device) Sign(ctx context.Context, t *tx.UnsignedTransfer) ([]byte, error) {
	sig, err := d.transport.SignPayload(ctx, t.Payload.ToBOC())
	if errors.Is(err, ErrDeviceRejected) {
		log.Builder.Info().Uint32("seqno", t.Seqno).Msg("Transfer rejected on device")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	return sig, nil
}
