// Package audio defines capture encoding metadata and the format
// conversions needed to feed captured microphone audio into a session
// channel.
package audio

const (
	DefaultSampleRate = 16000

	// MulawSampleRate is the fixed G.711 rate used on the media track.
	MulawSampleRate = 8000
)

type Format string

const (
	FormatMulaw    Format = "mulaw"
	FormatLinear16 Format = "linear16"
)

// EncodingInfo describes the stream a capture client produces. Callers
// use it to match channel-side conversion to the capture rate.
type EncodingInfo struct {
	SampleRate int
	Format     Format
}

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: FormatLinear16}
}
