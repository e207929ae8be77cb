// Package websocket is the WebSocket-based session channel. It skips
// SDP negotiation entirely: the realtime endpoint is dialed directly
// with the ephemeral credential, and captured audio travels as
// base64-encoded append events instead of a media track.
package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"
)

// Compile-time interface check.
var _ realtime.Channel = (*Channel)(nil)

const defaultEndpoint = "wss://api.openai.com/v1/realtime"

type Channel struct {
	endpoint string
	model    string

	connMu sync.Mutex
	conn   *websocket.Conn

	open      atomic.Bool
	closeOnce sync.Once
}

type Option func(*Channel)

func WithEndpoint(endpoint string) Option {
	return func(c *Channel) { c.endpoint = endpoint }
}

func WithModel(model string) Option {
	return func(c *Channel) { c.model = model }
}

func NewChannel(opts ...Option) *Channel {
	channel := &Channel{endpoint: defaultEndpoint}
	for _, opt := range opts {
		opt(channel)
	}
	return channel
}

func (c *Channel) Connect(ctx context.Context, credential string, opts ...realtime.ConnectOption) error {
	ctx, span := tracer.Start(ctx, "connect websocket channel")
	defer span.End()

	options := realtime.ConnectOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return c.recordConnectError(span, fmt.Errorf("invalid endpoint: %w", err))
	}
	if c.model != "" {
		queryParams := endpoint.Query()
		queryParams.Set("model", c.model)
		endpoint.RawQuery = queryParams.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), http.Header{
		"Authorization": {"Bearer " + credential},
		"OpenAI-Beta":   {"realtime=v1"},
	})
	if err != nil {
		return c.recordConnectError(span, fmt.Errorf("failed to open socket connection: %w", err))
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.open.Store(true)

	go c.readAndProcessMessages(ctx, conn, options)

	// The socket has no separate data-path handshake; it is usable as
	// soon as the dial completes.
	if options.OnOpen != nil {
		options.OnOpen()
	}

	return nil
}

func (c *Channel) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options realtime.ConnectOptions) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			wasOpen := c.open.Swap(false)
			c.connMu.Lock()
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			} else if err != nil {
				logger.WarnContext(ctx, "failed to read realtime socket message", "error", err)
			}
			if wasOpen && options.OnClosed != nil {
				options.OnClosed(err)
			}
			return
		}
		if msgType == websocket.TextMessage && options.OnEvent != nil {
			options.OnEvent(msg)
		}
	}
}

func (c *Channel) Send(_ context.Context, event any) error {
	if !c.IsOpen() {
		return realtime.ErrChannelClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return realtime.ErrChannelClosed
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write to realtime socket: %w", err)
	}
	return nil
}

// SendAudio forwards captured PCM16 as a base64 append event.
func (c *Channel) SendAudio(pcm []byte) error {
	return c.Send(context.Background(), realtime.InputAudioAppendEvent{
		Type:  realtime.TypeInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (c *Channel) IsOpen() bool {
	return c.open.Load()
}

func (c *Channel) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.open.Store(false)

		c.connMu.Lock()
		conn := c.conn
		c.conn = nil
		c.connMu.Unlock()

		if conn != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			closeErr = conn.Close()
		}
	})
	return closeErr
}

func (c *Channel) recordConnectError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
