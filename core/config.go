package orchestration

import "github.com/TurboJessadakorn/drive-through-realtime-agent/core/realtime"

// Voice identifies one of the agent voices the session can be
// configured with. The set is closed; switching voices means tearing
// the session down and negotiating a new one.
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceAsh     Voice = "ash"
	VoiceBallad  Voice = "ballad"
	VoiceCoral   Voice = "coral"
	VoiceEcho    Voice = "echo"
	VoiceSage    Voice = "sage"
	VoiceShimmer Voice = "shimmer"
	VoiceVerse   Voice = "verse"
)

const DefaultVoice = VoiceEcho

func SupportedVoices() []Voice {
	return []Voice{
		VoiceAlloy, VoiceAsh, VoiceBallad, VoiceCoral,
		VoiceEcho, VoiceSage, VoiceShimmer, VoiceVerse,
	}
}

func (v Voice) IsSupported() bool {
	for _, voice := range SupportedVoices() {
		if v == voice {
			return true
		}
	}
	return false
}

// DefaultGreeting is the scripted opener sent right after the session
// configuration, before the agent's first turn is requested.
const DefaultGreeting = "Welcome to our drive-thru! What can I get for you today?"

// SessionConfig is the immutable per-session configuration announced
// to the agent when the data path opens.
type SessionConfig struct {
	Voice Voice
	Tools []realtime.ToolDescriptor
}
