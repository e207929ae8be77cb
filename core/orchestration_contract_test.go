package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/order"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"
)

// scriptedChannel is an in-memory Channel: Connect opens it and fires
// the open callback immediately, tests inject inbound envelopes
// through deliver, and outbound events are recorded for assertions.
type scriptedChannel struct {
	mu   sync.Mutex
	open bool
	sent []any

	opts       realtime.ConnectOptions
	connectErr error
	audioSent  int
}

func (c *scriptedChannel) Connect(_ context.Context, credential string, opts ...realtime.ConnectOption) error {
	if c.connectErr != nil {
		return c.connectErr
	}

	for _, opt := range opts {
		opt(&c.opts)
	}

	c.mu.Lock()
	c.open = true
	c.mu.Unlock()

	if c.opts.OnOpen != nil {
		c.opts.OnOpen()
	}
	return nil
}

func (c *scriptedChannel) Send(_ context.Context, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return realtime.ErrChannelClosed
	}
	c.sent = append(c.sent, event)
	return nil
}

func (c *scriptedChannel) SendAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return realtime.ErrChannelClosed
	}
	c.audioSent++
	return nil
}

func (c *scriptedChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *scriptedChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *scriptedChannel) deliver(raw string) {
	c.opts.OnEvent([]byte(raw))
}

func (c *scriptedChannel) remoteClose(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	if c.opts.OnClosed != nil {
		c.opts.OnClosed(err)
	}
}

func (c *scriptedChannel) sentEvents() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

// recordingPresenter captures every presenter callback for assertions.
type recordingPresenter struct {
	mu          sync.Mutex
	transcripts []string
	statuses    []string
	errors      []string
	summaries   []order.Snapshot
}

func (p *recordingPresenter) TranscriptEntry(role, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcripts = append(p.transcripts, role+": "+text)
}

func (p *recordingPresenter) OrderSummary(snapshot order.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, snapshot)
}

func (p *recordingPresenter) Status(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
}

func (p *recordingPresenter) Error(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, message)
}

func (p *recordingPresenter) lastStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		return ""
	}
	return p.statuses[len(p.statuses)-1]
}

func (p *recordingPresenter) transcriptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transcripts)
}

func (p *recordingPresenter) errorCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.errors)
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *scriptedChannel, *recordingPresenter) {
	t.Helper()
	channel := &scriptedChannel{}
	presenter := &recordingPresenter{}
	o := NewOrchestrator(
		WithBackend(newFakeBackend()),
		WithChannelFactory(func() realtime.Channel { return channel }),
		WithPresenter(presenter),
	)
	t.Cleanup(o.Close)
	return o, channel, presenter
}

func functionCallTurn(name, callID, arguments string) string {
	return fmt.Sprintf(`{
		"type": "response.done",
		"response": {"output": [{
			"type": "function_call",
			"name": %q,
			"call_id": %q,
			"arguments": %q
		}]}
	}`, name, callID, arguments)
}

func transcriptTurn(text string) string {
	return fmt.Sprintf(`{
		"type": "response.done",
		"response": {"output": [{
			"type": "message",
			"content": [{"type": "audio", "transcript": %q}]
		}]}
	}`, text)
}

func TestStartAnnouncesConfigurationThenGreeting(t *testing.T) {
	channel := &scriptedChannel{}
	presenter := &recordingPresenter{}
	o := NewOrchestrator(
		WithBackend(newFakeBackend()),
		WithChannelFactory(func() realtime.Channel { return channel }),
		WithPresenter(presenter),
		WithVoice(VoiceAlloy),
		WithGreeting("Hi there, ready to order?"),
	)
	t.Cleanup(o.Close)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if o.State() != StateOpen {
		t.Fatalf("expected Open state, got %s", o.State())
	}

	sent := channel.sentEvents()
	if len(sent) != 2 {
		t.Fatalf("expected exactly configuration and greeting, got %d events", len(sent))
	}

	update, ok := sent[0].(realtime.SessionUpdateEvent)
	if !ok {
		t.Fatalf("expected the session configuration first, got %T", sent[0])
	}
	if update.Session.Voice != string(VoiceAlloy) || update.Session.ToolChoice != "auto" {
		t.Fatalf("unexpected session configuration %+v", update.Session)
	}
	if len(update.Session.Tools) != len(toolOrder) {
		t.Fatalf("expected %d declared tools, got %d", len(toolOrder), len(update.Session.Tools))
	}

	greeting, ok := sent[1].(realtime.ConversationItemCreateEvent)
	if !ok {
		t.Fatalf("expected the greeting second, got %T", sent[1])
	}
	if greeting.Item.Role != "user" ||
		len(greeting.Item.Content) != 1 ||
		greeting.Item.Content[0].Text != "Hi there, ready to order?" {
		t.Fatalf("unexpected greeting item %+v", greeting.Item)
	}
	if !strings.HasPrefix(greeting.Item.ID, "msg_") {
		t.Fatalf("expected a generated message id, got %q", greeting.Item.ID)
	}

	if presenter.lastStatus() != "Connected" {
		t.Fatalf("expected Connected status, got %q", presenter.lastStatus())
	}
}

func TestStartWhileSessionActiveIsRejected(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := o.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestStartWithoutBackendIsRejected(t *testing.T) {
	o := NewOrchestrator()
	if err := o.Start(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCredentialFailureFailsNegotiation(t *testing.T) {
	fake := newFakeBackend()
	fake.sessionErr = errors.New("backend unreachable")
	presenter := &recordingPresenter{}
	o := NewOrchestrator(
		WithBackend(fake),
		WithChannelFactory(func() realtime.Channel { return &scriptedChannel{} }),
		WithPresenter(presenter),
	)
	t.Cleanup(o.Close)

	if err := o.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail")
	}
	if o.State() != StateFailed {
		t.Fatalf("expected Failed state, got %s", o.State())
	}
	if presenter.lastStatus() != "Failed to connect" {
		t.Fatalf("expected failure status, got %q", presenter.lastStatus())
	}
	if presenter.errorCount() != 1 {
		t.Fatalf("expected the failure reported exactly once, got %d reports", presenter.errorCount())
	}

	// A failed orchestrator must stay startable.
	fake.sessionErr = nil
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected restart after failure to succeed, got %v", err)
	}
}

func TestChannelHandshakeFailureFailsNegotiation(t *testing.T) {
	channel := &scriptedChannel{connectErr: errors.New("negotiation rejected")}
	presenter := &recordingPresenter{}
	o := NewOrchestrator(
		WithBackend(newFakeBackend()),
		WithChannelFactory(func() realtime.Channel { return channel }),
		WithPresenter(presenter),
	)

	if err := o.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail")
	}
	if o.State() != StateFailed {
		t.Fatalf("expected Failed state, got %s", o.State())
	}
}

func TestFunctionCallRoundTrip(t *testing.T) {
	o, channel, presenter := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	channel.deliver(functionCallTurn("take_order", "call_1", `{"order":"burger","quantity":2}`))

	waitFor(t, func() bool { return len(channel.sentEvents()) >= 4 },
		"timed out waiting for the function result acknowledgment")

	sent := channel.sentEvents()
	output, ok := sent[2].(realtime.ConversationItemCreateEvent)
	if !ok {
		t.Fatalf("expected a function output item, got %T", sent[2])
	}
	if output.Item.Type != "function_call_output" || output.Item.CallID != "call_1" {
		t.Fatalf("unexpected output item %+v", output.Item)
	}
	if !strings.Contains(output.Item.Output, "Added 2 x burger to order.") {
		t.Fatalf("unexpected output payload %q", output.Item.Output)
	}
	if _, ok := sent[3].(realtime.ResponseCreateEvent); !ok {
		t.Fatalf("expected a follow-up turn request, got %T", sent[3])
	}

	if got := o.Ledger().TotalCents(); got != 1198 {
		t.Fatalf("expected ledger total 1198, got %d", got)
	}

	presenter.mu.Lock()
	summaries := len(presenter.summaries)
	presenter.mu.Unlock()
	if summaries == 0 {
		t.Fatalf("expected an order summary refresh after the call")
	}
}

func TestTranscriptForwardedToPresenter(t *testing.T) {
	o, channel, presenter := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	channel.deliver(transcriptTurn("Sure, one burger coming up."))

	waitFor(t, func() bool { return presenter.transcriptCount() == 1 },
		"timed out waiting for the transcript")

	presenter.mu.Lock()
	entry := presenter.transcripts[0]
	presenter.mu.Unlock()
	if entry != "assistant: Sure, one burger coming up." {
		t.Fatalf("unexpected transcript entry %q", entry)
	}
}

func TestUnknownOperationStaysSilent(t *testing.T) {
	o, channel, presenter := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	channel.deliver(functionCallTurn("launch_rocket", "call_1", "{}"))
	// The transcript turn acts as a barrier: once it is observed the
	// unknown call has already been fully processed.
	channel.deliver(transcriptTurn("barrier"))

	waitFor(t, func() bool { return presenter.transcriptCount() == 1 },
		"timed out waiting for the barrier turn")

	if sent := channel.sentEvents(); len(sent) != 2 {
		t.Fatalf("expected no reply to the unknown operation, got %d events", len(sent))
	}
}

func TestMalformedEventKeepsSessionAlive(t *testing.T) {
	o, channel, presenter := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	channel.deliver("this is not json")

	waitFor(t, func() bool { return presenter.errorCount() == 1 },
		"timed out waiting for the processing error")

	presenter.mu.Lock()
	report := presenter.errors[0]
	presenter.mu.Unlock()
	if !strings.HasPrefix(report, "Error processing message: ") {
		t.Fatalf("unexpected error report %q", report)
	}
	if o.State() != StateOpen {
		t.Fatalf("malformed event must not tear down the session, state is %s", o.State())
	}

	channel.deliver(transcriptTurn("still alive"))
	waitFor(t, func() bool { return presenter.transcriptCount() == 1 },
		"timed out waiting for the follow-up turn")
}

func TestAgentErrorSurfacedToPresenter(t *testing.T) {
	o, channel, presenter := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	channel.deliver(`{"type":"error","error":{"type":"server_error","message":"session expired"}}`)

	waitFor(t, func() bool { return presenter.errorCount() == 1 },
		"timed out waiting for the agent error")

	presenter.mu.Lock()
	report := presenter.errors[0]
	presenter.mu.Unlock()
	if report != "session expired" {
		t.Fatalf("unexpected error report %q", report)
	}
	if o.State() != StateOpen {
		t.Fatalf("agent error must not tear down the session, state is %s", o.State())
	}
}

func TestStopDiscardsInFlightDispatchResult(t *testing.T) {
	fake := newFakeBackend()
	fake.placeOrderStarted = make(chan struct{})
	fake.placeOrderRelease = make(chan struct{})

	channel := &scriptedChannel{}
	o := NewOrchestrator(
		WithBackend(fake),
		WithChannelFactory(func() realtime.Channel { return channel }),
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	started := fake.placeOrderStarted
	channel.deliver(functionCallTurn("take_order", "call_1", `{"order":"burger","quantity":1}`))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the dispatch to reach the backend")
	}

	o.Stop()
	close(fake.placeOrderRelease)

	// The dispatch runs to completion against the ledger; only the wire
	// acknowledgment is dropped.
	waitFor(t, func() bool { return o.Ledger().Len() == 1 },
		"timed out waiting for the dispatch to finish")
	time.Sleep(50 * time.Millisecond)

	if sent := channel.sentEvents(); len(sent) != 2 {
		t.Fatalf("expected the in-flight result to be discarded, got %d events", len(sent))
	}
	if o.State() != StateClosed {
		t.Fatalf("expected Closed state, got %s", o.State())
	}
}

func TestRemoteCloseReturnsToStartable(t *testing.T) {
	o, channel, presenter := newTestOrchestrator(t)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	channel.remoteClose(errors.New("peer went away"))

	if o.State() != StateClosed {
		t.Fatalf("expected Closed state, got %s", o.State())
	}
	presenter.mu.Lock()
	reported := len(presenter.errors) == 1 && strings.Contains(presenter.errors[0], "Connection lost")
	presenter.mu.Unlock()
	if !reported {
		t.Fatalf("expected a single connection-lost report")
	}
	if presenter.lastStatus() != "Ready to start" {
		t.Fatalf("expected Ready to start status, got %q", presenter.lastStatus())
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("expected restart after remote close to succeed, got %v", err)
	}
}

func TestVoiceLockedWhileSessionLive(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	if err := o.SetVoice(VoiceBallad); err != nil {
		t.Fatalf("unexpected error selecting voice before start: %v", err)
	}
	if err := o.SetVoice("gravel"); err == nil {
		t.Fatalf("expected unsupported voice to be rejected")
	}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := o.SetVoice(VoiceAlloy); err == nil {
		t.Fatalf("expected voice change to be rejected while open")
	}

	o.Stop()
	if err := o.SetVoice(VoiceAlloy); err != nil {
		t.Fatalf("unexpected error selecting voice after stop: %v", err)
	}
}

func TestClearConversationEmptiesLedger(t *testing.T) {
	o, _, presenter := newTestOrchestrator(t)
	o.Ledger().Add("burger", 2, 599)

	o.ClearConversation()

	if o.Ledger().Len() != 0 {
		t.Fatalf("expected an empty ledger after clearing")
	}
	presenter.mu.Lock()
	defer presenter.mu.Unlock()
	if len(presenter.summaries) == 0 || len(presenter.summaries[len(presenter.summaries)-1].Items) != 0 {
		t.Fatalf("expected an empty order summary to be presented")
	}
}
