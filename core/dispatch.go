package orchestration

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"
)

// tool binds one remotely invocable operation name to a typed local
// handler and its declared parameter schema.
type tool struct {
	name        string
	description string
	parameters  *jsonschema.Schema
	execute     func(ctx context.Context, arguments string) any
}

// newTool builds a tool whose serialized arguments decode into T
// before the handler runs. A payload that does not decode yields the
// operation's opaque fallback result instead of reaching the handler;
// internal decode errors are never surfaced to the agent.
func newTool[T any](name, description, fallback string, handler func(ctx context.Context, args T) any) tool {
	reflector := jsonschema.Reflector{DoNotReference: true}
	var zero T

	return tool{
		name:        name,
		description: description,
		parameters:  reflector.Reflect(zero),
		execute: func(ctx context.Context, arguments string) any {
			if arguments == "" {
				arguments = "{}"
			}

			var args T
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				logger.WarnContext(ctx, "failed to decode tool arguments",
					"tool", name, "error", err)
				return fallback
			}

			return handler(ctx, args)
		},
	}
}

func (t tool) descriptor() realtime.ToolDescriptor {
	return realtime.ToolDescriptor{
		Type:        "function",
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

// dispatcher resolves a function-call event to a handler by exact name
// match over the fixed tool set.
type dispatcher struct {
	tools map[string]tool
}

func newDispatcher(tools []tool) *dispatcher {
	d := &dispatcher{tools: make(map[string]tool, len(tools))}
	for _, t := range tools {
		d.tools[t.name] = t
	}
	return d
}

func (d *dispatcher) descriptors() []realtime.ToolDescriptor {
	descriptors := make([]realtime.ToolDescriptor, 0, len(d.tools))
	for _, name := range toolOrder {
		if t, ok := d.tools[name]; ok {
			descriptors = append(descriptors, t.descriptor())
		}
	}
	return descriptors
}

// dispatch runs one function call to completion and returns its result
// payload. An unrecognized name reports handled=false and produces no
// result at all: the mismatch is intentionally left unanswered rather
// than converted into an error reply.
func (d *dispatcher) dispatch(ctx context.Context, call realtime.FunctionCall) (result any, handled bool) {
	t, ok := d.tools[call.Name]
	if !ok {
		logger.WarnContext(ctx, "ignoring unknown function call", "name", call.Name)
		return nil, false
	}

	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name))

	return t.execute(ctx, call.Arguments), true
}
