package orchestration

// State is the engine's position in the turn-taking cycle. Listening is
// both the initial state and the resting state between turns.
type State string

const (
	StateListening      State = "listening"
	StateUserSpeaking   State = "user_speaking"
	StateSilencePending State = "silence_pending"
	StateProcessingASR  State = "processing_asr"
	StateLLMStreaming   State = "llm_streaming"
	StateToolCalling    State = "tool_calling"
	StateTTSSpeaking    State = "tts_speaking"
)
