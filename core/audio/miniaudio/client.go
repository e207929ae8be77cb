// Package miniaudio captures microphone audio through the malgo
// bindings. Playback is not handled here; agent speech arrives on the
// session's media path.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is
	// an ownership thing
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	onAudio func(audio []byte)

	mu sync.Mutex
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := &Client{audioContext: audioCtx}
	if err := client.initCapture(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return client, nil
}

func (c *Client) initCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = sampleRate
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	var err error
	c.device, err = malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.mu.Lock()
			onAudio := c.onAudio
			c.mu.Unlock()
			if onAudio != nil {
				onAudio(pInput[:n])
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

// Stream starts forwarding captured chunks to onAudio until the
// context is cancelled or the client is closed.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	if c.device == nil {
		c.mu.Unlock()
		return fmt.Errorf("capture device not initialized")
	}
	c.onAudio = onAudio
	device := c.device
	c.mu.Unlock()

	if device.IsStarted() {
		return nil
	}
	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	go func() {
		<-ctx.Done()
		c.stop()
	}()

	return nil
}

func (c *Client) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil && c.device.IsStarted() {
		if err := c.device.Stop(); err != nil {
			return
		}
	}
	c.onAudio = nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.audioContext != nil {
		c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
	c.onAudio = nil
	return nil
}
