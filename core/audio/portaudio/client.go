// Package portaudio is the PortAudio-backed capture client, an
// alternative to the miniaudio backend on platforms where PortAudio is
// already present.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in []int16
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.DefaultSampleRate, bufferSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open capture stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
	}, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

// Stream reads capture buffers until the context is cancelled. It
// blocks, so callers run it on its own goroutine.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				return fmt.Errorf("failed to read capture buffer: %w", err)
			}

			audioBuffer := bytes.Buffer{}
			binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}
}

func (c *Client) Close() error {
	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("failed to close capture stream: %w", err)
	}
	return portaudio.Terminate()
}
