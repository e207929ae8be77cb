package orchestration

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"
)

const eventQueueCapacity = 16

// sessionRuntime serializes inbound event handling for one session.
// Envelopes are queued in arrival order and processed one at a time to
// completion, nested backend I/O included, so a function call's ledger
// mutations always precede the acknowledgment sent for that call and a
// dispatch can never re-enter while another is running.
type sessionRuntime struct {
	orchestrator *Orchestrator
	channel      realtime.Channel

	queue     chan []byte
	closeCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSessionRuntime(o *Orchestrator, channel realtime.Channel) *sessionRuntime {
	return &sessionRuntime{
		orchestrator: o,
		channel:      channel,
		queue:        make(chan []byte, eventQueueCapacity),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// enqueue hands one raw envelope to the runtime. The payload is copied
// because transport buffers may be reused after the callback returns.
func (r *sessionRuntime) enqueue(raw []byte) {
	payload := append([]byte(nil), raw...)

	select {
	case <-r.closeCh:
	case r.queue <- payload:
	default:
		logger.Warn("event queue full, dropping inbound event")
	}
}

func (r *sessionRuntime) run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-r.closeCh:
			return
		case <-ctx.Done():
			return
		case raw := <-r.queue:
			r.process(ctx, raw)
		}
	}
}

func (r *sessionRuntime) close() {
	r.closeOnce.Do(func() { close(r.closeCh) })
}

// process interprets one inbound envelope. Malformed payloads are
// logged and surfaced as a presenter error without touching the
// session; the channel stays up and later events are still handled.
func (r *sessionRuntime) process(ctx context.Context, raw []byte) {
	eventType, err := realtime.PeekType(raw)
	if err != nil {
		r.reportProcessingError(ctx, err)
		return
	}

	switch eventType {
	case realtime.TypeResponseDone:
		var turn realtime.ResponseDone
		if err := json.Unmarshal(raw, &turn); err != nil {
			r.reportProcessingError(ctx, err)
			return
		}
		r.processTurn(ctx, turn)

	case realtime.TypeError:
		var errEvent realtime.ErrorEvent
		if err := json.Unmarshal(raw, &errEvent); err != nil {
			r.reportProcessingError(ctx, err)
			return
		}
		logger.WarnContext(ctx, "agent reported error",
			"error_type", errEvent.Error.Type, "message", errEvent.Error.Message)
		r.orchestrator.presenter.Error(errEvent.Error.Message)
	}
}

// processTurn handles one completed agent turn: forward the transcript
// if the turn carried one, then run its function call (at most one per
// turn) and acknowledge the result before requesting the next turn.
func (r *sessionRuntime) processTurn(ctx context.Context, turn realtime.ResponseDone) {
	if transcript := turn.Transcript(); transcript != "" {
		r.orchestrator.presenter.TranscriptEntry("assistant", transcript)
	}

	call := turn.FunctionCall()
	if call == nil {
		return
	}

	ctx, span := tracer.Start(ctx, "handle function call")
	defer span.End()
	span.SetAttributes(
		attribute.String("call.name", call.Name),
		attribute.String("call.id", call.CallID),
	)

	result, handled := r.orchestrator.dispatcher.dispatch(ctx, *call)
	if !handled {
		// Unknown operation: intentional silence, no reply on the wire.
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "failed to marshal dispatch result", "error", err)
		return
	}

	// The session may have been stopped while the dispatch was waiting
	// on the backend; a result with no live channel is dropped, not
	// sent into a dead connection.
	if !r.channel.IsOpen() {
		logger.InfoContext(ctx, "discarding dispatch result, session closed", "call_id", call.CallID)
		return
	}

	if err := r.channel.Send(ctx, realtime.NewFunctionOutput(call.CallID, string(payload))); err != nil {
		r.orchestrator.recordSessionError(ctx, err)
		return
	}
	if err := r.channel.Send(ctx, realtime.NewResponseCreate()); err != nil {
		r.orchestrator.recordSessionError(ctx, err)
	}
}

func (r *sessionRuntime) reportProcessingError(ctx context.Context, err error) {
	logger.WarnContext(ctx, "failed to process inbound event", "error", err)
	r.orchestrator.presenter.Error("Error processing message: " + err.Error())
}
