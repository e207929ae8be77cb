package audio

import (
	"encoding/binary"
	"fmt"
)

const mulawBias = 0x84

// PCM16ToMulaw converts little-endian linear16 samples to G.711 mulaw.
// The input length must be an even number of bytes.
func PCM16ToMulaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(pcm))
	}

	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		out[i] = mulawEncode(sample)
	}
	return out, nil
}

func mulawEncode(sample int16) byte {
	sign := byte(0)
	value := int32(sample)
	if value < 0 {
		value = -value
		sign = 0x80
	}

	value += mulawBias
	if value > 0x7FFF {
		value = 0x7FFF
	}

	exponent := 7
	for mask := int32(0x4000); exponent > 0 && value&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((value >> (exponent + 3)) & 0x0F)

	return ^(sign | byte(exponent)<<4 | mantissa)
}

// DownsamplePCM16 decimates linear16 audio by an integer factor, e.g.
// from the 16kHz capture rate down to the 8kHz G.711 track rate. No
// low-pass filtering is applied; capture sources here are narrowband
// speech.
func DownsamplePCM16(pcm []byte, factor int) ([]byte, error) {
	if factor < 1 {
		return nil, fmt.Errorf("invalid downsample factor %d", factor)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(pcm))
	}
	if factor == 1 {
		return pcm, nil
	}

	samples := len(pcm) / 2
	out := make([]byte, 0, (samples/factor+1)*2)
	for i := 0; i < samples; i += factor {
		out = append(out, pcm[2*i], pcm[2*i+1])
	}
	return out, nil
}
