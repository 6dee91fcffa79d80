package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aria-vtuber/aria-core/core/config"
	"github.com/aria-vtuber/aria-core/core/eventbus"
)

type captureStub struct {
	mu      sync.Mutex
	onBlock func(block []float32)
}

func (c *captureStub) Start(_ context.Context, onBlock func(block []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBlock = onBlock
	return nil
}

func (c *captureStub) Close() error { return nil }

func (c *captureStub) feed(block []float32) {
	c.mu.Lock()
	onBlock := c.onBlock
	c.mu.Unlock()
	if onBlock != nil {
		onBlock(block)
	}
}

type voiceLinkStub struct {
	mu   sync.Mutex
	sent int
}

func (l *voiceLinkStub) Open(context.Context) error { return nil }

func (l *voiceLinkStub) SendAudio([]float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent++
}

func (l *voiceLinkStub) Close() error { return nil }

func (l *voiceLinkStub) Sent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

type transcriberStub struct {
	text string
	err  error
}

func (t *transcriberStub) Transcribe(context.Context, []float32, int) (string, error) {
	return t.text, t.err
}

type memoryStub struct {
	mu      sync.Mutex
	queried []string
	updated chan []string
}

func (m *memoryStub) Query(_ context.Context, query string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queried = append(m.queried, query)
	return []string{"the user likes oolong tea"}, nil
}

func (m *memoryStub) Update(_ context.Context, chunks []string, _ int) (int, error) {
	m.updated <- chunks
	return len(chunks), nil
}

// stateLog records state transitions and signals each return to listening.
type stateLog struct {
	mu        sync.Mutex
	states    []State
	listening chan struct{}
}

func newStateLog() *stateLog {
	return &stateLog{listening: make(chan struct{}, 4)}
}

func (l *stateLog) callback(_, to State) {
	l.mu.Lock()
	l.states = append(l.states, to)
	l.mu.Unlock()
	if to == StateListening {
		select {
		case l.listening <- struct{}{}:
		default:
		}
	}
}

func (l *stateLog) awaitListening(t *testing.T) {
	t.Helper()
	select {
	case <-l.listening:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the engine to return to listening")
	}
}

func (l *stateLog) sequence() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func testEngineConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{SampleRate: 100, BlockSize: 10},
		LLM:   config.LLMConfig{MaxMessages: 10},
	}
}

func TestEngineRunsFullVoiceTurn(t *testing.T) {
	capture := &captureStub{}
	link := &voiceLinkStub{}
	states := newStateLog()

	var engine *Engine
	var promptMu sync.Mutex
	var prompts []string

	engine = NewEngine(testEngineConfig(),
		WithCaptureDevice(capture),
		WithVoiceLink(link),
		WithPlaybackDevice(&playbackStub{}),
		WithSynthesizer(&synthesizerStub{}),
		WithTranscriber(&transcriberStub{text: "hello there"}),
		WithResponder(responderFunc(func(_ context.Context, prompt string) (string, error) {
			promptMu.Lock()
			prompts = append(prompts, prompt)
			promptMu.Unlock()
			engine.handleStreamToken("Hi")
			engine.handleStreamToken("!")
			return "Hi!", nil
		})),
		WithStateCallback(states.callback),
	)

	transcripts := make(chan eventbus.Payload, 1)
	if _, err := engine.Bus().Subscribe(EventSpeechRecognized, func(_ context.Context, payload eventbus.Payload) {
		transcripts <- payload
	}); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	defer engine.Close()

	engine.recorder.silenceThreshold = 20 * time.Millisecond

	// One second of microphone audio, then the detector reports an
	// utterance followed by silence.
	for range 10 {
		capture.feed(loudBlock(10))
	}
	engine.HandleVoiceActivity(true)
	engine.HandleVoiceActivity(false)

	states.awaitListening(t)

	select {
	case payload := <-transcripts:
		if payload["text"] != "hello there" {
			t.Fatalf("expected the transcript published, got %v", payload["text"])
		}
		if id, ok := payload["turn_id"].(string); !ok || id == "" {
			t.Fatalf("expected a turn id on the transcript event, got %v", payload["turn_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected a speech recognized event")
	}

	promptMu.Lock()
	if len(prompts) != 1 || prompts[0] != "hello there" {
		t.Fatalf("expected the transcript forwarded to the model, got %v", prompts)
	}
	promptMu.Unlock()

	if sent := link.Sent(); sent != 10 {
		t.Fatalf("expected 10 blocks forwarded to the detector, got %d", sent)
	}
	if engine.asrLocked.Load() {
		t.Fatal("expected the microphone lock released after the turn")
	}

	want := []State{StateUserSpeaking, StateSilencePending, StateProcessingASR,
		StateLLMStreaming, StateTTSSpeaking, StateListening}
	got := states.sequence()
	if len(got) != len(want) {
		t.Fatalf("expected state sequence %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected state sequence %v, got %v", want, got)
		}
	}
}

func TestEngineRejectsPromptWhileTurnInFlight(t *testing.T) {
	release := make(chan struct{})
	states := newStateLog()

	engine := NewEngine(testEngineConfig(),
		WithCaptureDevice(&captureStub{}),
		WithVoiceLink(&voiceLinkStub{}),
		WithPlaybackDevice(&playbackStub{}),
		WithSynthesizer(&synthesizerStub{}),
		WithTranscriber(&transcriberStub{}),
		WithResponder(responderFunc(func(context.Context, string) (string, error) {
			<-release
			return "", nil
		})),
		WithStateCallback(states.callback),
	)

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	defer engine.Close()

	if err := engine.SendPrompt(context.Background(), "first"); err != nil {
		t.Fatalf("expected the first prompt accepted, got %v", err)
	}
	if err := engine.SendPrompt(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for an overlapping prompt, got %v", err)
	}

	close(release)
	states.awaitListening(t)

	if err := engine.SendPrompt(context.Background(), "third"); err != nil {
		t.Fatalf("expected prompts accepted again after the turn, got %v", err)
	}
	states.awaitListening(t)
}

func TestEngineSpeaksFallbackWhenModelFails(t *testing.T) {
	states := newStateLog()

	var revealMu sync.Mutex
	var revealed strings.Builder

	engine := NewEngine(testEngineConfig(),
		WithCaptureDevice(&captureStub{}),
		WithVoiceLink(&voiceLinkStub{}),
		WithPlaybackDevice(&playbackStub{}),
		WithSynthesizer(&synthesizerStub{}),
		WithTranscriber(&transcriberStub{}),
		WithResponder(responderFunc(func(context.Context, string) (string, error) {
			return "", errors.New("model unavailable")
		})),
		WithErrorUtterance("Oops."),
		WithStateCallback(states.callback),
		WithTextRevealCallback(func(chunk string) {
			revealMu.Lock()
			revealed.WriteString(chunk)
			revealMu.Unlock()
		}),
	)

	modelErrors := make(chan eventbus.Payload, 1)
	if _, err := engine.Bus().Subscribe(EventLLMError, func(_ context.Context, payload eventbus.Payload) {
		modelErrors <- payload
	}); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	defer engine.Close()

	if err := engine.SendPrompt(context.Background(), "hi"); err != nil {
		t.Fatalf("failed to send prompt: %v", err)
	}
	states.awaitListening(t)

	select {
	case <-modelErrors:
	case <-time.After(time.Second):
		t.Fatal("expected a model error event")
	}

	revealMu.Lock()
	defer revealMu.Unlock()
	if got := revealed.String(); got != "Oops." {
		t.Fatalf("expected the fallback utterance spoken, got %q", got)
	}
}

func TestEngineDiscardsBlankTranscripts(t *testing.T) {
	capture := &captureStub{}
	states := newStateLog()

	engine := NewEngine(testEngineConfig(),
		WithCaptureDevice(capture),
		WithVoiceLink(&voiceLinkStub{}),
		WithPlaybackDevice(&playbackStub{}),
		WithSynthesizer(&synthesizerStub{}),
		WithTranscriber(&transcriberStub{text: "   "}),
		WithResponder(responderFunc(func(context.Context, string) (string, error) {
			t.Error("expected no model turn for a blank transcript")
			return "", nil
		})),
		WithStateCallback(states.callback),
	)

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	defer engine.Close()

	engine.recorder.silenceThreshold = 20 * time.Millisecond

	for range 10 {
		capture.feed(loudBlock(10))
	}
	engine.HandleVoiceActivity(true)
	engine.HandleVoiceActivity(false)

	states.awaitListening(t)

	if engine.asrLocked.Load() {
		t.Fatal("expected the microphone lock released after the discard")
	}
}

func TestEngineStopsForwardingWhileLockedOrPaused(t *testing.T) {
	capture := &captureStub{}
	link := &voiceLinkStub{}

	engine := NewEngine(testEngineConfig(),
		WithCaptureDevice(capture),
		WithVoiceLink(link),
		WithPlaybackDevice(&playbackStub{}),
		WithSynthesizer(&synthesizerStub{}),
		WithTranscriber(&transcriberStub{}),
		WithResponder(responderFunc(func(context.Context, string) (string, error) {
			return "", nil
		})),
	)

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	defer engine.Close()

	capture.feed(loudBlock(10))
	if sent := link.Sent(); sent != 1 {
		t.Fatalf("expected the block forwarded while unlocked, got %d", sent)
	}

	engine.asrLocked.Store(true)
	capture.feed(loudBlock(10))
	if sent := link.Sent(); sent != 1 {
		t.Fatal("expected no forwarding while the turn lock is held")
	}
	if head := engine.ring.Head(); head != 20 {
		t.Fatalf("expected locked audio still ringed, got head %d", head)
	}
	engine.asrLocked.Store(false)

	engine.micPaused.Store(true)
	capture.feed(loudBlock(10))
	if head := engine.ring.Head(); head != 20 {
		t.Fatalf("expected paused audio dropped entirely, got head %d", head)
	}
}

func TestEngineAugmentsPromptsWithMemories(t *testing.T) {
	states := newStateLog()
	memory := &memoryStub{updated: make(chan []string, 1)}

	var promptMu sync.Mutex
	var prompt string

	engine := NewEngine(testEngineConfig(),
		WithCaptureDevice(&captureStub{}),
		WithVoiceLink(&voiceLinkStub{}),
		WithPlaybackDevice(&playbackStub{}),
		WithSynthesizer(&synthesizerStub{}),
		WithTranscriber(&transcriberStub{}),
		WithMemoryStore(memory),
		WithResponder(responderFunc(func(_ context.Context, p string) (string, error) {
			promptMu.Lock()
			prompt = p
			promptMu.Unlock()
			return "Noted.", nil
		})),
		WithStateCallback(states.callback),
	)

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}
	defer engine.Close()

	if err := engine.SendPrompt(context.Background(), "what do I drink?"); err != nil {
		t.Fatalf("failed to send prompt: %v", err)
	}
	states.awaitListening(t)

	promptMu.Lock()
	if !strings.Contains(prompt, "Relevant memories:") ||
		!strings.Contains(prompt, "the user likes oolong tea") ||
		!strings.Contains(prompt, "what do I drink?") {
		t.Fatalf("expected memories prepended to the prompt, got %q", prompt)
	}
	promptMu.Unlock()

	select {
	case chunks := <-memory.updated:
		if len(chunks) != 2 ||
			chunks[0] != "user: what do I drink?" ||
			chunks[1] != "assistant: Noted." {
			t.Fatalf("expected the exchange stored, got %v", chunks)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the memory update")
	}
}
