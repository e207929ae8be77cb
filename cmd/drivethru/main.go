// drivethru is the terminal client for the voice drive-thru ordering
// agent. It negotiates a realtime session through the order backend,
// streams microphone audio to the agent, and renders the conversation
// transcript and the running order side by side.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/TurboJessadakorn/drive-through-realtime-agent/core"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/audio"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/audio/miniaudio"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/audio/portaudio"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/backend"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime/webrtc"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backendClient := backend.NewClient(
		backend.WithBaseURL(cfg.Backend.BaseURL),
		backend.WithRealtimeURL(cfg.Realtime.URL),
		backend.WithModel(cfg.Realtime.Model),
	)

	presenter := newProgramPresenter()

	captureRate := audio.DefaultSampleRate
	var input orchestration.AudioInput
	if cfg.Audio.Enabled {
		capture, err := newAudioInput(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize audio capture: %w", err)
		}
		input = capture
		captureRate = capture.EncodingInfo().SampleRate
	}

	opts := []orchestration.OrchestratorOption{
		orchestration.WithBackend(backendClient),
		orchestration.WithChannelFactory(channelFactory(cfg, backendClient, captureRate)),
		orchestration.WithPresenter(presenter),
		orchestration.WithVoice(orchestration.Voice(cfg.Session.Voice)),
		orchestration.WithGreeting(cfg.Session.Greeting),
	}
	if input != nil {
		opts = append(opts, orchestration.WithAudioInput(input))
	}

	orchestrator := orchestration.NewOrchestrator(opts...)
	defer orchestrator.Close()

	program := tea.NewProgram(newModel(orchestrator), tea.WithAltScreen())
	presenter.SetProgram(program)

	_, err = program.Run()
	return err
}

// channelFactory builds a fresh session channel per Start; channels
// are single-use and torn down with their session.
func channelFactory(cfg *Config, backendClient *backend.Client, captureRate int) func() realtime.Channel {
	if cfg.Realtime.Transport == "websocket" {
		return func() realtime.Channel {
			opts := []websocket.Option{websocket.WithModel(cfg.Realtime.Model)}
			if cfg.Realtime.WebsocketURL != "" {
				opts = append(opts, websocket.WithEndpoint(cfg.Realtime.WebsocketURL))
			}
			return websocket.NewChannel(opts...)
		}
	}
	return func() realtime.Channel {
		return webrtc.NewChannel(backendClient, webrtc.WithCaptureSampleRate(captureRate))
	}
}

// audioCapture is what the capture clients provide beyond the plain
// orchestrator input: the encoding of the stream they produce.
type audioCapture interface {
	orchestration.AudioInput
	EncodingInfo() audio.EncodingInfo
}

func newAudioInput(cfg *Config) (audioCapture, error) {
	if cfg.Audio.Backend == "portaudio" {
		return portaudio.NewClient(cfg.Audio.BufferFrames)
	}
	return miniaudio.NewClient()
}
