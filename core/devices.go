package orchestration

import "context"

// CaptureDevice is a continuous microphone source. The block callback runs
// on the device's realtime thread and must not block; the engine only
// copies samples into its ring buffer and hands them to a bounded queue.
type CaptureDevice interface {
	Start(ctx context.Context, onBlock func(block []float32)) error
	Close() error
}

// PlaybackDevice plays one buffer of mono samples to completion.
type PlaybackDevice interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
	Close() error
}

// VoiceLink is the duplex stream to the voice-activity detector. Speech
// frames come back through the callback configured at construction.
type VoiceLink interface {
	Open(ctx context.Context) error
	SendAudio(block []float32)
	Close() error
}

// Transcriber turns a finalized utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Responder streams a model reply for a prompt and returns the final
// prose answer once any tool round-trips have resolved. Streamed tokens
// reach the engine through the callback wired at construction.
type Responder interface {
	Send(ctx context.Context, prompt string) (string, error)
}

// Synthesizer renders one text segment into a WAV byte stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// MemoryStore is the long-term conversational memory collaborator.
type MemoryStore interface {
	Query(ctx context.Context, query string) ([]string, error)
	Update(ctx context.Context, chunks []string, counts int) (int, error)
}
