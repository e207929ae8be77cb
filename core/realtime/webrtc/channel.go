// Package webrtc is the WebRTC-based session channel: an audio track
// plus one "oai-events" data channel on a single peer connection,
// negotiated by posting the local SDP offer through the backend and
// applying the remote answer.
package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/audio"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"
)

// Compile-time interface check.
var _ realtime.Channel = (*Channel)(nil)

const dataChannelLabel = "oai-events"

// iceGatherTimeout is the maximum time to wait for ICE candidate
// gathering to complete before posting the SDP offer.
const iceGatherTimeout = 15 * time.Second

// Negotiator exchanges a local SDP offer for the remote answer. The
// backend client satisfies this.
type Negotiator interface {
	Negotiate(ctx context.Context, offerSDP string, credential string) (string, error)
}

type Channel struct {
	negotiator Negotiator

	// captureRate is the PCM16 sample rate delivered to SendAudio,
	// decimated down to the fixed G.711 track rate.
	captureRate int

	mu          sync.Mutex
	conn        *pion.PeerConnection
	dataChannel *pion.DataChannel
	audioTrack  *pion.TrackLocalStaticSample

	open      atomic.Bool
	closeOnce sync.Once
	callbacks realtime.ConnectOptions
}

type Option func(*Channel)

// WithCaptureSampleRate declares the PCM16 rate the capture client
// produces. Must be an integer multiple of 8000.
func WithCaptureSampleRate(sampleRate int) Option {
	return func(c *Channel) { c.captureRate = sampleRate }
}

func NewChannel(negotiator Negotiator, opts ...Option) *Channel {
	channel := &Channel{
		negotiator:  negotiator,
		captureRate: audio.DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel
}

// Connect brings up the peer connection: local audio track, data
// channel, offer, ICE gathering, negotiated answer. The data path is
// not usable until the open callback fires.
func (c *Channel) Connect(ctx context.Context, credential string, opts ...realtime.ConnectOption) error {
	ctx, span := tracer.Start(ctx, "connect webrtc channel")
	defer span.End()

	options := realtime.ConnectOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	conn, err := pion.NewPeerConnection(pion.Configuration{})
	if err != nil {
		return c.recordConnectError(span, fmt.Errorf("failed to create peer connection: %w", err))
	}

	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypePCMU, ClockRate: audio.MulawSampleRate, Channels: 1},
		"audio", "microphone",
	)
	if err != nil {
		conn.Close()
		return c.recordConnectError(span, fmt.Errorf("failed to create audio track: %w", err))
	}
	if _, err := conn.AddTrack(track); err != nil {
		conn.Close()
		return c.recordConnectError(span, fmt.Errorf("failed to add audio track: %w", err))
	}

	dataChannel, err := conn.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		conn.Close()
		return c.recordConnectError(span, fmt.Errorf("failed to create data channel: %w", err))
	}

	c.mu.Lock()
	c.conn = conn
	c.dataChannel = dataChannel
	c.audioTrack = track
	c.callbacks = options
	c.mu.Unlock()

	dataChannel.OnOpen(func() {
		c.open.Store(true)
		if options.OnOpen != nil {
			options.OnOpen()
		}
	})
	dataChannel.OnClose(func() {
		wasOpen := c.open.Swap(false)
		if wasOpen && options.OnClosed != nil {
			options.OnClosed(nil)
		}
	})
	dataChannel.OnMessage(func(msg pion.DataChannelMessage) {
		if options.OnEvent != nil {
			options.OnEvent(msg.Data)
		}
	})
	conn.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		logger.InfoContext(ctx, "ice connection state changed", "state", state.String())
		if state == pion.ICEConnectionStateFailed {
			if c.open.Swap(false) && options.OnClosed != nil {
				options.OnClosed(fmt.Errorf("ice connection failed"))
			}
		}
	})

	offer, err := conn.CreateOffer(nil)
	if err != nil {
		c.Close()
		return c.recordConnectError(span, fmt.Errorf("failed to create offer: %w", err))
	}

	// Vanilla ICE: gather every candidate before publishing the offer
	// so negotiation needs exactly one round-trip.
	gatherComplete := pion.GatheringCompletePromise(conn)
	if err := conn.SetLocalDescription(offer); err != nil {
		c.Close()
		return c.recordConnectError(span, fmt.Errorf("failed to set local description: %w", err))
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		c.Close()
		return c.recordConnectError(span, fmt.Errorf("timed out gathering ice candidates"))
	case <-ctx.Done():
		c.Close()
		return c.recordConnectError(span, ctx.Err())
	}

	answerSDP, err := c.negotiator.Negotiate(ctx, conn.LocalDescription().SDP, credential)
	if err != nil {
		c.Close()
		return c.recordConnectError(span, fmt.Errorf("failed to negotiate session: %w", err))
	}

	answer := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answerSDP}
	if err := conn.SetRemoteDescription(answer); err != nil {
		c.Close()
		return c.recordConnectError(span, fmt.Errorf("failed to set remote description: %w", err))
	}

	return nil
}

// Send marshals one client event onto the data channel.
func (c *Channel) Send(_ context.Context, event any) error {
	if !c.IsOpen() {
		return realtime.ErrChannelClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	c.mu.Lock()
	dataChannel := c.dataChannel
	c.mu.Unlock()
	if dataChannel == nil {
		return realtime.ErrChannelClosed
	}

	if err := dataChannel.SendText(string(payload)); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

// SendAudio decimates captured PCM16 to the G.711 rate, encodes it to
// mulaw, and writes it as a media sample on the audio track.
func (c *Channel) SendAudio(pcm []byte) error {
	if !c.IsOpen() {
		return realtime.ErrChannelClosed
	}

	c.mu.Lock()
	track := c.audioTrack
	c.mu.Unlock()
	if track == nil {
		return realtime.ErrChannelClosed
	}

	factor := c.captureRate / audio.MulawSampleRate
	narrowband, err := audio.DownsamplePCM16(pcm, factor)
	if err != nil {
		return fmt.Errorf("failed to downsample audio: %w", err)
	}
	mulaw, err := audio.PCM16ToMulaw(narrowband)
	if err != nil {
		return fmt.Errorf("failed to encode audio: %w", err)
	}

	sample := media.Sample{
		Data:     mulaw,
		Duration: time.Duration(len(mulaw)) * time.Second / audio.MulawSampleRate,
	}
	if err := track.WriteSample(sample); err != nil {
		return fmt.Errorf("failed to write audio sample: %w", err)
	}
	return nil
}

func (c *Channel) IsOpen() bool {
	return c.open.Load()
}

// Close tears down the data channel, track, and peer connection.
func (c *Channel) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.open.Store(false)

		c.mu.Lock()
		dataChannel := c.dataChannel
		conn := c.conn
		c.dataChannel = nil
		c.audioTrack = nil
		c.conn = nil
		c.mu.Unlock()

		if dataChannel != nil {
			if err := dataChannel.Close(); err != nil {
				closeErr = fmt.Errorf("failed to close data channel: %w", err)
			}
		}
		if conn != nil {
			if err := conn.Close(); err != nil && closeErr == nil {
				closeErr = fmt.Errorf("failed to close peer connection: %w", err)
			}
		}
	})
	return closeErr
}

func (c *Channel) recordConnectError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
