package models

// Capability is a category of AI function that may be satisfied by
// interchangeable providers.
type Capability string

const (
	CapabilityText               Capability = "text"
	CapabilityChat               Capability = "chat"
	CapabilityImageGeneration    Capability = "image_generation"
	CapabilityAudioTranscription Capability = "audio_transcription"
	CapabilityTTS                Capability = "tts"
	CapabilityEmbedding          Capability = "embedding"
	CapabilityClassification     Capability = "classification"
	CapabilityImageAnalysis      Capability = "image_analysis"
	CapabilityTextAnalysis       Capability = "text_analysis"
)

// AllCapabilities lists every registered capability value.
var AllCapabilities = []Capability{
	CapabilityText,
	CapabilityChat,
	CapabilityImageGeneration,
	CapabilityAudioTranscription,
	CapabilityTTS,
	CapabilityEmbedding,
	CapabilityClassification,
	CapabilityImageAnalysis,
	CapabilityTextAnalysis,
}

// Valid reports whether c is a registered capability value.
func (c Capability) Valid() bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}
