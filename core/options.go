package orchestration

import (
	"context"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/backend"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"
)

type OrchestratorOption func(*Orchestrator)

// Backend is the capability set the orchestrator and the dispatched
// tools need from the drive-thru REST services.
type Backend interface {
	Session(ctx context.Context, voice string) (string, error)
	PlaceOrder(ctx context.Context, order string, quantity int) (*backend.OrderConfirmation, error)
	MenuDetails(ctx context.Context, item string) (map[string]any, error)
}

func WithBackend(client Backend) OrchestratorOption {
	return func(o *Orchestrator) { o.backend = client }
}

// WithChannelFactory supplies the session channel constructor. A fresh
// channel is built for every negotiation attempt; spent channels are
// never reused.
func WithChannelFactory(factory func() realtime.Channel) OrchestratorOption {
	return func(o *Orchestrator) { o.channelFactory = factory }
}

func WithPresenter(presenter Presenter) OrchestratorOption {
	return func(o *Orchestrator) {
		if presenter == nil {
			o.presenter = noopPresenter{}
			return
		}
		o.presenter = presenter
	}
}

func WithVoice(voice Voice) OrchestratorOption {
	return func(o *Orchestrator) {
		if !voice.IsSupported() {
			logger.Warn("ignoring unsupported voice", "voice", string(voice))
			return
		}
		o.voice = voice
	}
}

func WithGreeting(greeting string) OrchestratorOption {
	return func(o *Orchestrator) { o.greeting = greeting }
}

// AudioInput is a microphone capture source. Stream may block; the
// orchestrator runs it on its own goroutine for the lifetime of the
// session.
type AudioInput interface {
	Stream(ctx context.Context, onAudio func(audio []byte)) error
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioInput = client }
}
