package audio

import (
	"bytes"
	"testing"
)

func TestPCM16ToMulawSpotValues(t *testing.T) {
	// Silence encodes to 0xFF, full-scale to 0x80/0x00 depending on
	// sign (classic G.711 values).
	cases := []struct {
		sample int16
		want   byte
	}{
		{0, 0xFF},
		{32767, 0x80},
		{-32768, 0x00},
	}

	for _, c := range cases {
		pcm := []byte{byte(uint16(c.sample)), byte(uint16(c.sample) >> 8)}
		out, err := PCM16ToMulaw(pcm)
		if err != nil {
			t.Fatalf("unexpected error for sample %d: %v", c.sample, err)
		}
		if out[0] != c.want {
			t.Errorf("sample %d: expected 0x%02X, got 0x%02X", c.sample, c.want, out[0])
		}
	}
}

func TestPCM16ToMulawRejectsOddLength(t *testing.T) {
	if _, err := PCM16ToMulaw([]byte{0x01}); err == nil {
		t.Fatalf("expected error for odd payload length")
	}
}

func TestDownsamplePCM16(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}

	out, err := DownsamplePCM16(pcm, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{1, 0, 3, 0}) {
		t.Fatalf("unexpected decimation result %v", out)
	}

	same, err := DownsamplePCM16(pcm, 1)
	if err != nil || !bytes.Equal(same, pcm) {
		t.Fatalf("factor 1 should be a passthrough, got %v (%v)", same, err)
	}
}
