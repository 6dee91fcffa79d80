// Package orchestration is the turn-taking engine of the voice agent. It
// owns the microphone ring buffer, the voice-activity recorder, the
// streaming model client, and the speech pipeline, and it enforces mutual
// exclusion between listening and speaking: while a turn is in flight the
// microphone stays locked, so barge-in is deliberately unsupported.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aria-vtuber/aria-core/core/audio/miniaudio"
	"github.com/aria-vtuber/aria-core/core/config"
	"github.com/aria-vtuber/aria-core/core/eventbus"
	"github.com/aria-vtuber/aria-core/core/llms"
	"github.com/aria-vtuber/aria-core/core/llms/openai"
	"github.com/aria-vtuber/aria-core/core/rag"
	"github.com/aria-vtuber/aria-core/core/speechtotext/funasr"
	"github.com/aria-vtuber/aria-core/core/texttospeech"
	"github.com/aria-vtuber/aria-core/core/texttospeech/gptsovits"
	"github.com/aria-vtuber/aria-core/core/vad"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
)

// ErrBusy is returned when a prompt cannot be injected because a turn is
// already in flight.
var ErrBusy = errors.New("a turn is already in flight")

type Engine struct {
	options EngineOptions

	bus      *eventbus.Bus
	ring     *audioRing
	recorder *recorder
	pipeline *speechPipeline

	capture     CaptureDevice
	playback    PlaybackDevice
	voiceLink   VoiceLink
	transcriber Transcriber
	responder   Responder
	memory      MemoryStore

	history  *llms.History
	autoChat *autoChat

	sampleRate     int
	autoChatPrompt string

	stateMu sync.Mutex
	state   State

	// turnID identifies the in-flight turn across its events.
	turnID atomic.Value

	// asrLocked is the master mutual-exclusion flag: true from the moment
	// an utterance finalizes until the whole turn (ASR, LLM, TTS) is done.
	asrLocked    atomic.Bool
	userSpeaking atomic.Bool
	llmStreaming atomic.Bool
	ttsPlaying   atomic.Bool
	micPaused    atomic.Bool

	baseContext context.Context
	closeOnce   sync.Once
}

func NewEngine(cfg *config.Config, opts ...EngineOption) *Engine {
	options := EngineOptions{errorUtterance: defaultErrorUtterance}
	for _, opt := range opts {
		opt(&options)
	}

	e := &Engine{
		options:        options,
		bus:            eventbus.New(),
		sampleRate:     cfg.Audio.SampleRate,
		autoChatPrompt: cfg.AutoChat.Prompt,
		state:          StateListening,
		baseContext:    context.Background(),
	}

	e.ring = newAudioRing(cfg.Audio.SampleRate)
	e.recorder = newRecorder(e.ring, cfg.Audio.SampleRate, e.asrLocked.Load, recorderCallbacks{
		onSpeechStarted:  e.handleSpeechStarted,
		onSpeechResumed:  func() { e.setState(StateUserSpeaking) },
		onSilencePending: func() { e.setState(StateSilencePending) },
		lock:             e.lockForTurn,
		unlock:           e.finishTurn,
		onUtterance:      func(samples []float32) { go e.processUtterance(samples) },
	})

	e.history = llms.NewHistory(cfg.LLM.SystemPrompt, cfg.LLM.MaxMessages)

	synthesizer := options.synthesizer
	if synthesizer == nil {
		synthesizer = gptsovits.NewClient(cfg.TTS.URL, texttospeech.WithLanguage(cfg.TTS.Language))
	}

	e.playback = options.playback
	if e.playback == nil {
		e.playback = miniaudio.NewPlayback()
	}

	e.pipeline = newSpeechPipeline(synthesizer, e.playback, pipelineCallbacks{
		onSegmentStart: e.handleSegmentStart,
		onSegmentEnd: func(text string) {
			e.publishTurn(EventTTSEnd, eventbus.Payload{"text": text})
		},
		onSegmentError: func(text string, err error) {
			e.publishTurn(EventTTSError, eventbus.Payload{"text": text, "error": err.Error()})
		},
		onMouthSamples: options.onMouthSamples,
		onReveal:       options.onTextReveal,
		onDrained:      e.finishTurn,
	})

	e.capture = options.capture
	if e.capture == nil {
		e.capture = miniaudio.NewCapture(cfg.Audio.SampleRate, cfg.Audio.BlockSize)
	}

	e.transcriber = options.transcriber
	if e.transcriber == nil {
		e.transcriber = funasr.NewClient(cfg.ASR.URL)
	}

	e.voiceLink = options.voiceLink
	if e.voiceLink == nil {
		e.voiceLink = vad.NewLink(cfg.VAD.URL,
			vad.WithSampleRate(cfg.Audio.SampleRate),
			vad.WithFrameCallback(e.HandleVoiceActivity),
			vad.WithErrorCallback(func(err error) {
				logger.Error("voice activity link lost", "error", err.Error())
			}),
		)
	}

	e.responder = options.responder
	if e.responder == nil {
		client := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model,
			openai.WithHistory(e.history),
			openai.WithTools(append(e.builtinTools(), options.tools...)...),
			openai.WithContentCallback(e.handleStreamToken),
			openai.WithToolCallCallback(e.handleToolCall),
		)
		e.responder = responderFunc(func(ctx context.Context, prompt string) (string, error) {
			return client.Send(ctx, prompt)
		})
	}

	e.memory = options.memory
	if e.memory == nil && cfg.RAG.Enabled {
		e.memory = rag.NewClient(cfg.RAG.BaseURL)
	}

	if cfg.AutoChat.Enabled {
		e.autoChat = newAutoChat(
			time.Duration(cfg.AutoChat.MinInterval),
			time.Duration(cfg.AutoChat.MaxInterval),
			e.handleIdle,
		)
	}

	return e
}

// Start opens the voice link, starts microphone capture and the speech
// pipeline, and arms the idle timer if proactive chat is enabled.
func (e *Engine) Start(ctx context.Context) error {
	e.baseContext = ctx

	e.pipeline.Start(ctx)

	if err := e.voiceLink.Open(ctx); err != nil {
		return fmt.Errorf("failed to open voice activity link: %w", err)
	}
	if err := e.capture.Start(ctx, e.handleCapturedAudio); err != nil {
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	if e.autoChat != nil {
		e.autoChat.Start(ctx)
	}

	return nil
}

// Close stops every component and shuts the event bus down, awaiting all
// in-flight handlers. Safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.autoChat != nil {
			e.autoChat.Stop()
		}
		if err := e.capture.Close(); err != nil {
			logger.Warn("failed to close audio capture", "error", err.Error())
		}
		if err := e.voiceLink.Close(); err != nil {
			logger.Warn("failed to close voice activity link", "error", err.Error())
		}
		e.recorder.Stop()
		e.pipeline.Stop()
		if err := e.playback.Close(); err != nil {
			logger.Warn("failed to close audio playback", "error", err.Error())
		}
		e.bus.Shutdown()
	})
}

// Bus exposes the engine's event bus so the presentation layer can
// subscribe to turn events.
func (e *Engine) Bus() *eventbus.Bus { return e.bus }

// History exposes the conversation history.
func (e *Engine) History() *llms.History { return e.history }

func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// SendPrompt injects text as if the user had spoken it. It fails with
// ErrBusy while a turn is in flight.
func (e *Engine) SendPrompt(ctx context.Context, prompt string) error {
	if !e.asrLocked.CompareAndSwap(false, true) {
		return ErrBusy
	}
	e.turnID.Store(uuid.NewString())
	go e.runTurn(ctx, prompt)
	return nil
}

// HandleVoiceActivity consumes one speech/silence frame from the voice
// activity detector.
func (e *Engine) HandleVoiceActivity(isSpeech bool) {
	e.recorder.HandleFrame(isSpeech)
}

// handleCapturedAudio runs on the capture device's realtime path: copy
// into the ring, forward to the detector unless the turn lock is held.
// Forwarding is non-blocking with a drop-oldest queue behind it.
func (e *Engine) handleCapturedAudio(block []float32) {
	if e.micPaused.Load() {
		return
	}

	e.ring.Append(block)

	if !e.asrLocked.Load() {
		e.voiceLink.SendAudio(block)
	}
}

func (e *Engine) handleSpeechStarted() {
	e.userSpeaking.Store(true)
	e.setState(StateUserSpeaking)
	e.publish(EventUserSpeaking, eventbus.Payload{"speaking": true})
	if e.autoChat != nil {
		e.autoChat.NotifyActivity()
	}
}

// lockForTurn runs when the silence debounce finalizes an utterance. From
// here until finishTurn the microphone is locked and VAD frames dropped.
func (e *Engine) lockForTurn() {
	e.asrLocked.Store(true)
	e.turnID.Store(uuid.NewString())
	if e.userSpeaking.CompareAndSwap(true, false) {
		e.publish(EventUserSpeaking, eventbus.Payload{"speaking": false})
	}
	e.setState(StateProcessingASR)
}

func (e *Engine) processUtterance(samples []float32) {
	ctx, span := tracer.Start(e.baseContext, "process utterance")
	defer span.End()

	text, err := e.transcriber.Transcribe(ctx, samples, e.sampleRate)
	if err != nil {
		// Transcription failures are recoverable: drop the recording,
		// re-arm the microphone, no retry.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("transcription failed, discarding recording", "error", err.Error())
		e.finishTurn()
		return
	}
	if strings.TrimSpace(text) == "" {
		e.finishTurn()
		return
	}

	e.publishTurn(EventSpeechRecognized, eventbus.Payload{"text": text})
	e.runTurn(ctx, text)
}

// runTurn drives one prompt through the model and into the speech
// pipeline. It returns once the stream has completed; playback keeps
// going and finishTurn fires when the pipeline drains.
func (e *Engine) runTurn(ctx context.Context, prompt string) {
	ctx, span := tracer.Start(ctx, "run turn")
	defer span.End()

	e.pipeline.Begin()
	e.llmStreaming.Store(true)
	e.setState(StateLLMStreaming)

	reply, err := e.responder.Send(ctx, e.augmentWithMemory(ctx, prompt))
	e.llmStreaming.Store(false)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("turn failed", "error", err.Error())
		e.publishTurn(EventLLMError, eventbus.Payload{"error": err.Error()})
		// Speak a fallback line instead of going silent; partial output
		// already spoken is not rolled back.
		e.pipeline.PushText(e.options.errorUtterance)
	} else {
		e.publishTurn(EventLLMComplete, eventbus.Payload{"text": reply})
		e.rememberExchange(prompt, reply)
	}

	e.pipeline.Finalize()
}

func (e *Engine) handleStreamToken(token string) {
	if e.State() == StateToolCalling {
		e.setState(StateLLMStreaming)
	}
	e.publishTurn(EventLLMStreaming, eventbus.Payload{"token": token})
	e.pipeline.PushText(token)
}

func (e *Engine) handleToolCall(name string) {
	e.setState(StateToolCalling)
	e.publishTurn(EventToolCall, eventbus.Payload{"name": name})
}

func (e *Engine) handleSegmentStart(text string) {
	e.ttsPlaying.Store(true)
	switch e.State() {
	case StateProcessingASR, StateLLMStreaming, StateToolCalling:
		e.setState(StateTTSSpeaking)
	}
	e.publishTurn(EventTTSStart, eventbus.Payload{"text": text})
}

// finishTurn releases the microphone and returns to listening. It runs
// when the pipeline drains, and directly on every discard or error path,
// so a failed turn can never leave the conversation frozen.
func (e *Engine) finishTurn() {
	e.ttsPlaying.Store(false)
	e.userSpeaking.Store(false)
	e.asrLocked.Store(false)
	e.ring.ShrinkToTail()
	e.setState(StateListening)
	if e.autoChat != nil {
		e.autoChat.NotifyActivity()
	}
}

// handleIdle injects the proactive-chat prompt, unless anything else is
// already in flight.
func (e *Engine) handleIdle() {
	if e.State() != StateListening {
		return
	}
	if !e.asrLocked.CompareAndSwap(false, true) {
		return
	}
	e.turnID.Store(uuid.NewString())

	e.publishTurn(EventAutoChatRequest, eventbus.Payload{"prompt": e.autoChatPrompt})
	go e.runTurn(e.baseContext, e.autoChatPrompt)
}

// augmentWithMemory prepends relevant long-term memories to the prompt.
// Memory failures degrade to the bare prompt.
func (e *Engine) augmentWithMemory(ctx context.Context, prompt string) string {
	if e.memory == nil {
		return prompt
	}

	chunks, err := e.memory.Query(ctx, prompt)
	if err != nil {
		logger.Warn("memory query failed", "error", err.Error())
		return prompt
	}
	if len(chunks) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, chunk := range chunks {
		b.WriteString("- ")
		b.WriteString(chunk)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}

func (e *Engine) rememberExchange(prompt, reply string) {
	if e.memory == nil || strings.TrimSpace(reply) == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(e.baseContext), 30*time.Second)
		defer cancel()

		chunks := []string{"user: " + prompt, "assistant: " + reply}
		if _, err := e.memory.Update(ctx, chunks, len(chunks)); err != nil {
			logger.Warn("memory update failed", "error", err.Error())
		}
	}()
}

func (e *Engine) setState(to State) {
	e.stateMu.Lock()
	from := e.state
	if from == to {
		e.stateMu.Unlock()
		return
	}
	e.state = to
	e.stateMu.Unlock()

	e.publish(EventStateChanged, eventbus.Payload{"from": from, "to": to})
	if e.options.onStateChanged != nil {
		e.options.onStateChanged(from, to)
	}
}

func (e *Engine) publish(kind string, payload eventbus.Payload) {
	if err := e.bus.Publish(kind, payload); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		logger.Warn("failed to publish event", "event", kind, "error", err.Error())
	}
}

// publishTurn is publish with the in-flight turn's ID attached.
func (e *Engine) publishTurn(kind string, payload eventbus.Payload) {
	if id, ok := e.turnID.Load().(string); ok {
		payload["turn_id"] = id
	}
	e.publish(kind, payload)
}
