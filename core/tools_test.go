package orchestration

import "testing"

func builtinTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(testEngineConfig(),
		WithCaptureDevice(&captureStub{}),
		WithVoiceLink(&voiceLinkStub{}),
		WithPlaybackDevice(&playbackStub{}),
		WithSynthesizer(&synthesizerStub{}),
		WithTranscriber(&transcriberStub{}),
		WithResponder(responderFunc(nil)),
	)
}

func TestRecordingControlTogglesMicrophone(t *testing.T) {
	engine := builtinTestEngine(t)
	tools := engine.builtinTools()

	if len(tools) != 2 || tools[0].Name != "recording_control" || tools[1].Name != "speaking_control" {
		t.Fatalf("unexpected builtin tools %v", tools)
	}

	if _, err := tools[0].Execute(`{"action": "pause"}`); err != nil {
		t.Fatalf("failed to pause: %v", err)
	}
	if !engine.micPaused.Load() {
		t.Fatal("expected the microphone paused")
	}

	if _, err := tools[0].Execute(`{"action": "resume"}`); err != nil {
		t.Fatalf("failed to resume: %v", err)
	}
	if engine.micPaused.Load() {
		t.Fatal("expected the microphone resumed")
	}

	if _, err := tools[0].Execute(`{"action": "mute"}`); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}

func TestSpeakingControlDiscardsQueuedSpeech(t *testing.T) {
	engine := builtinTestEngine(t)

	engine.pipeline.Begin()
	engine.pipeline.PushText("One. Two. Three.")

	speaking := engine.builtinTools()[1]
	if _, err := speaking.Execute(`{"action": "stop"}`); err != nil {
		t.Fatalf("failed to stop speaking: %v", err)
	}

	if _, err := speaking.Execute(`{"action": "whisper"}`); err == nil {
		t.Fatal("expected an error for an unknown action")
	}

	engine.pipeline.mu.Lock()
	defer engine.pipeline.mu.Unlock()
	if len(engine.pipeline.pendingText) != 0 || engine.pipeline.outstanding != 0 {
		t.Fatal("expected queued speech discarded")
	}
}
