package orchestration

// Topics published on the engine's event bus. Payload keys are documented
// per topic; payloads are read-only to subscribers. Turn-scoped topics
// additionally carry "turn_id" (string).
const (
	// EventStateChanged carries "from" and "to" (State).
	EventStateChanged = "state_changed"
	// EventUserSpeaking carries "speaking" (bool), the debounced VAD view.
	EventUserSpeaking = "user_speaking"
	// EventSpeechRecognized carries "text" (string), the final transcript.
	EventSpeechRecognized = "speech_recognized"
	// EventLLMStreaming carries "token" (string), one streamed prose token.
	EventLLMStreaming = "llm_streaming"
	// EventLLMComplete carries "text" (string), the full assistant reply.
	EventLLMComplete = "llm_complete"
	// EventLLMError carries "error" (string).
	EventLLMError = "llm_error"
	// EventToolCall carries "name" (string).
	EventToolCall = "tool_call"
	// EventTTSStart carries "text" (string), the segment about to play.
	EventTTSStart = "tts_start"
	// EventTTSEnd carries "text" (string), the segment that finished.
	EventTTSEnd = "tts_end"
	// EventTTSError carries "error" (string) and "text" (string).
	EventTTSError = "tts_error"
	// EventAutoChatRequest carries "prompt" (string).
	EventAutoChatRequest = "auto_chat_request"
)
