package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	orchestration "github.com/TurboJessadakorn/drive-through-realtime-agent/core"
)

// Config holds the full client configuration. Values come from
// drivethru.yaml (searched in . and ~/.config/drivethru) overlaid with
// DRIVETHRU_* environment variables.
type Config struct {
	Backend  BackendConfig
	Realtime RealtimeConfig
	Session  SessionConfig
	Audio    AudioConfig
}

type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type RealtimeConfig struct {
	// Transport selects the session channel: "webrtc" (audio over a
	// negotiated media track) or "websocket" (audio as appended PCM).
	Transport string
	// URL is the SDP negotiation endpoint used by the webrtc transport.
	URL   string
	Model string
	// WebsocketURL overrides the websocket transport endpoint.
	WebsocketURL string `mapstructure:"websocket_url"`
}

type SessionConfig struct {
	Voice    string
	Greeting string
}

type AudioConfig struct {
	Enabled bool
	// Backend selects the capture library: "miniaudio" or "portaudio".
	Backend string
	// BufferFrames is the portaudio capture buffer size in frames.
	BufferFrames int `mapstructure:"buffer_frames"`
}

func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("drivethru")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/drivethru")

	v.SetEnvPrefix("DRIVETHRU")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8888")
	v.SetDefault("realtime.transport", "webrtc")
	v.SetDefault("realtime.url", "https://api.openai.com/v1/realtime")
	v.SetDefault("realtime.model", "gpt-4o-realtime-preview-2024-12-17")
	v.SetDefault("realtime.websocket_url", "")
	v.SetDefault("session.voice", string(orchestration.DefaultVoice))
	v.SetDefault("session.greeting", orchestration.DefaultGreeting)
	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.backend", "miniaudio")
	v.SetDefault("audio.buffer_frames", 480)
}

func (c *Config) validate() error {
	switch c.Realtime.Transport {
	case "webrtc", "websocket":
	default:
		return fmt.Errorf("unknown realtime transport %q (want webrtc or websocket)", c.Realtime.Transport)
	}

	switch c.Audio.Backend {
	case "miniaudio", "portaudio":
	default:
		return fmt.Errorf("unknown audio backend %q (want miniaudio or portaudio)", c.Audio.Backend)
	}

	if !orchestration.Voice(c.Session.Voice).IsSupported() {
		return fmt.Errorf("unsupported voice %q", c.Session.Voice)
	}
	return nil
}
