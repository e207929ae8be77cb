// Package orchestration drives one realtime drive-thru ordering
// session: it negotiates the session channel, interprets inbound agent
// events, dispatches function calls against the order ledger and
// backend, and reports everything worth showing to the presenter.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/order"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"
)

// ErrSessionActive is returned by Start while a negotiation or open
// session is already in progress.
var ErrSessionActive = errors.New("session is already negotiating or open")

// ErrNotConfigured is returned by Start when the orchestrator is
// missing its backend or channel factory.
var ErrNotConfigured = errors.New("orchestrator is missing backend or channel factory")

type session struct {
	channel realtime.Channel
	runtime *sessionRuntime
	cancel  context.CancelFunc
}

type Orchestrator struct {
	state atomic.Int32

	backend        Backend
	channelFactory func() realtime.Channel
	presenter      Presenter
	audioInput     AudioInput

	voice    Voice
	greeting string

	ledger     *order.Ledger
	dispatcher *dispatcher

	mu      sync.Mutex
	session *session

	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		presenter: noopPresenter{},
		voice:     DefaultVoice,
		greeting:  DefaultGreeting,
		ledger:    order.NewLedger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.dispatcher = newDispatcher(orderTools(o))
	return o
}

// State is the current connection state of the session.
func (o *Orchestrator) State() ConnectionState {
	return ConnectionState(o.state.Load())
}

// SessionConfig is the configuration that will be announced on the
// next negotiated session.
func (o *Orchestrator) SessionConfig() SessionConfig {
	return SessionConfig{Voice: o.voice, Tools: o.dispatcher.descriptors()}
}

// Voice returns the currently selected voice.
func (o *Orchestrator) Voice() Voice { return o.voice }

// SetVoice selects the voice for the next session. It is rejected
// while a session is negotiating or open; the voice is immutable for
// the lifetime of a session.
func (o *Orchestrator) SetVoice(voice Voice) error {
	if !voice.IsSupported() {
		return fmt.Errorf("unsupported voice %q", voice)
	}
	if !o.State().startable() {
		return fmt.Errorf("cannot change voice while session is %s", o.State())
	}
	o.voice = voice
	return nil
}

// Ledger exposes the order state for presentation snapshots.
func (o *Orchestrator) Ledger() *order.Ledger { return o.ledger }

// Start negotiates a new session: credential fetch, channel handshake,
// then (once the data path opens) session configuration followed by
// the scripted greeting, in that fixed order. A failure in any step
// moves the orchestrator to Failed and is reported once through the
// presenter; no retry is attempted.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.backend == nil || o.channelFactory == nil {
		return ErrNotConfigured
	}
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateNegotiating)) &&
		!o.state.CompareAndSwap(int32(StateClosed), int32(StateNegotiating)) &&
		!o.state.CompareAndSwap(int32(StateFailed), int32(StateNegotiating)) {
		return ErrSessionActive
	}

	ctx, span := tracer.Start(ctx, "start session")
	defer span.End()

	o.presenter.Status("Initializing...")

	credential, err := o.backend.Session(ctx, string(o.voice))
	if err != nil {
		return o.failNegotiation(span, fmt.Errorf("failed to fetch session credential: %w", err))
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	channel := o.channelFactory()
	runtime := newSessionRuntime(o, channel)
	sess := &session{channel: channel, runtime: runtime, cancel: cancel}

	o.mu.Lock()
	o.session = sess
	o.mu.Unlock()

	go runtime.run(sessionCtx)

	err = channel.Connect(ctx, credential,
		realtime.WithEventCallback(runtime.enqueue),
		realtime.WithOpenCallback(func() { o.onChannelOpen(sessionCtx, sess) }),
		realtime.WithClosedCallback(func(err error) { o.onChannelClosed(err) }),
	)
	if err != nil {
		o.mu.Lock()
		o.session = nil
		o.mu.Unlock()
		cancel()
		runtime.close()
		channel.Close()
		return o.failNegotiation(span, fmt.Errorf("failed to establish session channel: %w", err))
	}

	if o.audioInput != nil {
		go func() {
			if err := o.audioInput.Stream(sessionCtx, func(audio []byte) {
				if !channel.IsOpen() {
					return
				}
				if err := channel.SendAudio(audio); err != nil && !errors.Is(err, realtime.ErrChannelClosed) {
					logger.WarnContext(sessionCtx, "failed to forward captured audio", "error", err)
				}
			}); err != nil {
				logger.WarnContext(sessionCtx, "audio capture stopped", "error", err)
			}
		}()
	}

	return nil
}

// onChannelOpen completes the Negotiating to Open transition once the
// data path reports open.
func (o *Orchestrator) onChannelOpen(ctx context.Context, sess *session) {
	if !o.state.CompareAndSwap(int32(StateNegotiating), int32(StateOpen)) {
		// Stop raced the handshake; the session is already gone.
		return
	}

	update := realtime.NewSessionUpdate(string(o.voice), o.dispatcher.descriptors())
	if err := sess.channel.Send(ctx, update); err != nil {
		o.recordSessionError(ctx, fmt.Errorf("failed to send session configuration: %w", err))
	}
	if err := sess.channel.Send(ctx, realtime.NewUserMessage(o.greeting)); err != nil {
		o.recordSessionError(ctx, fmt.Errorf("failed to send greeting: %w", err))
	}

	o.presenter.Status("Connected")
}

func (o *Orchestrator) onChannelClosed(err error) {
	o.mu.Lock()
	sess := o.session
	o.session = nil
	o.mu.Unlock()
	if sess == nil {
		// Teardown was requested locally; Stop already reported it.
		return
	}

	o.state.Store(int32(StateClosed))
	sess.cancel()
	sess.runtime.close()
	sess.channel.Close()

	if err != nil {
		o.presenter.Error(fmt.Sprintf("Connection lost: %v", err))
	}
	o.presenter.Status("Ready to start")
}

// Stop tears down the current session. In-flight dispatch results are
// discarded by the runtime's live-channel check, so stopping mid-call
// is safe at any point.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	sess := o.session
	o.session = nil
	o.mu.Unlock()
	if sess == nil {
		return
	}

	o.state.Store(int32(StateClosed))
	sess.cancel()
	sess.runtime.close()
	if err := sess.channel.Close(); err != nil {
		logger.Warn("failed to close session channel", "error", err)
	}

	o.presenter.Status("Ready to start")
}

// ClearConversation empties the order ledger and refreshes the
// rendered summary. It is an explicit user action, independent of
// session lifecycle and of order finalization.
func (o *Orchestrator) ClearConversation() {
	o.ledger.Clear()
	o.presentOrder()
	if o.State() != StateOpen {
		o.presenter.Status("Ready to start")
	}
}

// Close stops any live session and releases the audio input. The
// orchestrator is not usable afterwards.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.Stop()

		switch c := o.audioInput.(type) {
		case interface{ Close() error }:
			if err := c.Close(); err != nil {
				logger.Warn("failed to close audio input", "error", err)
			}
		case interface{ Close() }:
			c.Close()
		}
	})
}

func (o *Orchestrator) presentOrder() {
	o.presenter.OrderSummary(o.ledger.Snapshot())
}

func (o *Orchestrator) failNegotiation(span trace.Span, err error) error {
	o.state.Store(int32(StateFailed))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.presenter.Error(err.Error())
	o.presenter.Status("Failed to connect")
	return err
}

func (o *Orchestrator) recordSessionError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.WarnContext(ctx, "session error", "error", err)
}
