package orchestration

import (
	"context"

	"github.com/aria-vtuber/aria-core/core/llms"
)

const defaultErrorUtterance = "Sorry, something went wrong on my end. Could you say that again?"

type EngineOptions struct {
	capture     CaptureDevice
	playback    PlaybackDevice
	voiceLink   VoiceLink
	transcriber Transcriber
	responder   Responder
	synthesizer Synthesizer
	memory      MemoryStore

	tools []llms.Tool

	errorUtterance string

	onStateChanged func(from, to State)
	onMouthSamples func(samples []float32, sampleRate int)
	onTextReveal   func(chunk string)
}

type EngineOption func(*EngineOptions)

func WithCaptureDevice(device CaptureDevice) EngineOption {
	return func(o *EngineOptions) { o.capture = device }
}

func WithPlaybackDevice(device PlaybackDevice) EngineOption {
	return func(o *EngineOptions) { o.playback = device }
}

func WithVoiceLink(link VoiceLink) EngineOption {
	return func(o *EngineOptions) { o.voiceLink = link }
}

func WithTranscriber(transcriber Transcriber) EngineOption {
	return func(o *EngineOptions) { o.transcriber = transcriber }
}

func WithResponder(responder Responder) EngineOption {
	return func(o *EngineOptions) { o.responder = responder }
}

func WithSynthesizer(synthesizer Synthesizer) EngineOption {
	return func(o *EngineOptions) { o.synthesizer = synthesizer }
}

func WithMemoryStore(memory MemoryStore) EngineOption {
	return func(o *EngineOptions) { o.memory = memory }
}

// WithTools registers extra tools the model may call, alongside the
// engine's built-in recording and speaking controls.
func WithTools(tools ...llms.Tool) EngineOption {
	return func(o *EngineOptions) { o.tools = append(o.tools, tools...) }
}

// WithErrorUtterance overrides the line spoken when a turn fails.
func WithErrorUtterance(utterance string) EngineOption {
	return func(o *EngineOptions) {
		if utterance != "" {
			o.errorUtterance = utterance
		}
	}
}

func WithStateCallback(callback func(from, to State)) EngineOption {
	return func(o *EngineOptions) { o.onStateChanged = callback }
}

// WithMouthSyncCallback receives the decoded PCM of each segment just
// before it plays, for driving mouth animation.
func WithMouthSyncCallback(callback func(samples []float32, sampleRate int)) EngineOption {
	return func(o *EngineOptions) { o.onMouthSamples = callback }
}

// WithTextRevealCallback receives incremental chunks of the reply text,
// paced to match speech playback.
func WithTextRevealCallback(callback func(chunk string)) EngineOption {
	return func(o *EngineOptions) { o.onTextReveal = callback }
}

// responderFunc adapts a plain function to the Responder interface.
type responderFunc func(ctx context.Context, prompt string) (string, error)

func (f responderFunc) Send(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
