package realtime

import (
	"context"
	"errors"
)

// ErrChannelClosed is returned by Send and SendAudio once the data
// path is gone. Results produced after teardown are dropped against
// this error rather than sent into a dead connection.
var ErrChannelClosed = errors.New("session channel is closed")

// Channel is one long-lived bidirectional session: negotiate, exchange
// structured events alongside audio, close. Implementations deliver
// inbound envelopes and lifecycle transitions through the connect
// callbacks; they make no ordering promises beyond arrival order.
type Channel interface {
	Connect(ctx context.Context, credential string, opts ...ConnectOption) error
	// Send marshals and transmits one client event. It reports
	// ErrChannelClosed when the data path is not open.
	Send(ctx context.Context, event any) error
	// SendAudio forwards one chunk of captured PCM16 microphone audio.
	SendAudio(audio []byte) error
	IsOpen() bool
	Close() error
}

type ConnectOptions struct {
	// OnEvent receives each raw inbound envelope in arrival order.
	OnEvent func(raw []byte)
	// OnOpen fires once the data path reports open.
	OnOpen func()
	// OnClosed fires when the data path goes away, with the transport
	// error if the closure was not requested.
	OnClosed func(err error)
}

type ConnectOption func(*ConnectOptions)

func WithEventCallback(onEvent func(raw []byte)) ConnectOption {
	return func(o *ConnectOptions) { o.OnEvent = onEvent }
}

func WithOpenCallback(onOpen func()) ConnectOption {
	return func(o *ConnectOptions) { o.OnOpen = onOpen }
}

func WithClosedCallback(onClosed func(err error)) ConnectOption {
	return func(o *ConnectOptions) { o.OnClosed = onClosed }
}
