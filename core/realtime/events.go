// Package realtime defines the event envelopes exchanged over a live
// agent session and the Channel abstraction the orchestrator drives.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

const (
	// TypeSessionUpdate configures voice and tools after the data path
	// opens.
	TypeSessionUpdate = "session.update"
	// TypeConversationItemCreate carries both the scripted greeting and
	// function-call output replies.
	TypeConversationItemCreate = "conversation.item.create"
	// TypeResponseCreate asks the agent for its next turn.
	TypeResponseCreate = "response.create"
	// TypeInputAudioAppend streams captured microphone audio on
	// channels without a native media path.
	TypeInputAudioAppend = "input_audio_buffer.append"

	// TypeResponseDone is the inbound turn-complete event.
	TypeResponseDone = "response.done"
	// TypeError is an inbound error report from the agent.
	TypeError = "error"
)

// ToolDescriptor declares one remotely invocable operation to the
// agent: name, description, and a parameter schema with required
// fields, closed enums, and typed defaults.
type ToolDescriptor struct {
	Type        string             `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type SessionUpdate struct {
	Voice      string           `json:"voice"`
	Tools      []ToolDescriptor `json:"tools"`
	ToolChoice string           `json:"tool_choice"`
}

type SessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionUpdate `json:"session"`
}

func NewSessionUpdate(voice string, tools []ToolDescriptor) SessionUpdateEvent {
	return SessionUpdateEvent{
		Type: TypeSessionUpdate,
		Session: SessionUpdate{
			Voice:      voice,
			Tools:      tools,
			ToolChoice: "auto",
		},
	}
}

type ConversationItemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ConversationItem is the inner item object of an item-create event.
// Message items carry content; function_call_output items carry the
// correlation call_id and serialized output instead.
type ConversationItem struct {
	ID      string                    `json:"id,omitempty"`
	Type    string                    `json:"type"`
	Role    string                    `json:"role,omitempty"`
	CallID  string                    `json:"call_id,omitempty"`
	Output  string                    `json:"output,omitempty"`
	Content []ConversationItemContent `json:"content,omitempty"`
}

type ConversationItemCreateEvent struct {
	Type           string           `json:"type"`
	PreviousItemID *string          `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

func NewUserMessage(text string) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			ID:   "msg_" + uuid.NewString(),
			Type: "message",
			Role: "user",
			Content: []ConversationItemContent{
				{Type: "input_text", Text: text},
			},
		},
	}
}

// NewFunctionOutput wraps a dispatcher result for the wire. The call
// ID is the sole correlation mechanism between a function call and its
// result.
func NewFunctionOutput(callID string, output string) ConversationItemCreateEvent {
	return ConversationItemCreateEvent{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

type ResponseCreateEvent struct {
	Type string `json:"type"`
}

func NewResponseCreate() ResponseCreateEvent {
	return ResponseCreateEvent{Type: TypeResponseCreate}
}

type InputAudioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// FunctionCall is one remote function invocation surfaced by a
// completed turn. It is consumed exactly once by the dispatcher.
type FunctionCall struct {
	Name      string
	CallID    string
	Arguments string
}

type responseOutput struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	CallID    string `json:"call_id"`
	Content   []struct {
		Type       string `json:"type"`
		Transcript string `json:"transcript"`
		Text       string `json:"text"`
	} `json:"content"`
}

// ResponseDone is the decoded turn-complete envelope, with optional
// transcript and at most one function call.
type ResponseDone struct {
	Type     string `json:"type"`
	Response struct {
		Output []responseOutput `json:"output"`
	} `json:"response"`
}

// Transcript returns the transcript of the turn's first output, or ""
// when the turn carried none.
func (r ResponseDone) Transcript() string {
	if len(r.Response.Output) == 0 {
		return ""
	}
	for _, content := range r.Response.Output[0].Content {
		if content.Transcript != "" {
			return content.Transcript
		}
	}
	return ""
}

// FunctionCall returns the turn's function-call output, or nil when
// the turn carried none. The protocol as modeled surfaces at most one
// call per turn, so only the first output is considered.
func (r ResponseDone) FunctionCall() *FunctionCall {
	if len(r.Response.Output) == 0 {
		return nil
	}
	output := r.Response.Output[0]
	if output.Type != "function_call" || output.CallID == "" {
		return nil
	}
	return &FunctionCall{
		Name:      output.Name,
		CallID:    output.CallID,
		Arguments: output.Arguments,
	}
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// PeekType extracts the type discriminator of a raw inbound envelope.
func PeekType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse event envelope: %w", err)
	}
	return envelope.Type, nil
}
