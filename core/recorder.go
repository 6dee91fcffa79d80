package orchestration

import (
	"sync"
	"time"

	"github.com/aria-vtuber/aria-core/core/audio"
)

const (
	// defaultPreRoll is retained from before the detected speech onset so
	// the first syllable is not clipped.
	defaultPreRoll = 700 * time.Millisecond
	// defaultSilenceThreshold is how long silence must hold before an
	// utterance is finalized; brief flickers resume the recording instead.
	defaultSilenceThreshold = 500 * time.Millisecond

	minRawDuration     = 300 * time.Millisecond
	minTrimmedDuration = 200 * time.Millisecond
	trimMargin         = 100 * time.Millisecond
)

type recorderCallbacks struct {
	onSpeechStarted  func()
	onSilencePending func()
	onSpeechResumed  func()

	// lock is invoked when the silence debounce fires, before the
	// utterance is extracted; from that point VAD frames are dropped.
	lock func()
	// unlock releases the pipeline when the utterance is discarded. On a
	// successful handoff the lock is held until the whole turn completes.
	unlock func()

	onUtterance func(samples []float32)
}

// recorder owns the recording sub-machine: speech onset begins an
// utterance with pre-roll, a debounced silence run finalizes it, and the
// finalized samples are trimmed and either discarded or handed off.
type recorder struct {
	mu sync.Mutex

	ring     *audioRing
	encoding audio.EncodingInfo

	preRoll          time.Duration
	silenceThreshold time.Duration
	silenceFloor     float32

	// locked reports whether the downstream pipeline holds the
	// microphone; while it does, frames are ignored entirely.
	locked    func() bool
	callbacks recorderCallbacks

	recording    bool
	startIndex   int
	silenceTimer *time.Timer
}

func newRecorder(ring *audioRing, sampleRate int, locked func() bool, callbacks recorderCallbacks) *recorder {
	return &recorder{
		ring:             ring,
		encoding:         audio.EncodingInfo{SampleRate: sampleRate, Format: audio.EncodingFloat32},
		preRoll:          defaultPreRoll,
		silenceThreshold: defaultSilenceThreshold,
		silenceFloor:     audio.DefaultSilenceFloor,
		locked:           locked,
		callbacks:        callbacks,
	}
}

// HandleFrame consumes one debounced VAD frame. Frames arriving while the
// pipeline is locked are dropped, not queued; barge-in is unsupported.
func (r *recorder) HandleFrame(isSpeech bool) {
	if r.locked() {
		return
	}

	var started, resumed, pending bool

	r.mu.Lock()
	if isSpeech {
		if r.silenceTimer != nil {
			r.silenceTimer.Stop()
			r.silenceTimer = nil
			resumed = true
		}
		if !r.recording {
			r.recording = true
			r.startIndex = max(0, r.ring.Head()-r.samplesFor(r.preRoll))
			r.ring.SetRecording(true)
			started = true
		}
	} else if r.recording && r.silenceTimer == nil {
		r.silenceTimer = time.AfterFunc(r.silenceThreshold, r.finalize)
		pending = true
	}
	r.mu.Unlock()

	switch {
	case started:
		if r.callbacks.onSpeechStarted != nil {
			r.callbacks.onSpeechStarted()
		}
	case resumed:
		if r.callbacks.onSpeechResumed != nil {
			r.callbacks.onSpeechResumed()
		}
	case pending:
		if r.callbacks.onSilencePending != nil {
			r.callbacks.onSilencePending()
		}
	}
}

// finalize runs when the silence debounce fires. It locks the pipeline,
// extracts the recorded range, trims near-silence off both edges, and
// hands the utterance off unless it is too short to be real speech.
func (r *recorder) finalize() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	r.silenceTimer = nil
	start := r.startIndex
	r.mu.Unlock()

	r.callbacks.lock()

	samples := r.ring.Extract(start, r.ring.Head())
	r.ring.SetRecording(false)
	r.ring.ShrinkToTail()

	if r.durationOf(samples) < minRawDuration {
		logger.Debug("discarding short recording", "duration", r.durationOf(samples).String())
		r.callbacks.unlock()
		return
	}

	trimmed := audio.TrimSilence(samples, r.silenceFloor, r.samplesFor(trimMargin))
	if r.durationOf(trimmed) < minTrimmedDuration {
		logger.Debug("discarding near-silent recording", "duration", r.durationOf(trimmed).String())
		r.callbacks.unlock()
		return
	}

	r.callbacks.onUtterance(trimmed)
}

// Stop cancels any pending silence debounce without finalizing.
func (r *recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.silenceTimer != nil {
		r.silenceTimer.Stop()
		r.silenceTimer = nil
	}
	r.recording = false
}

func (r *recorder) samplesFor(d time.Duration) int {
	return r.encoding.Samples(d)
}

func (r *recorder) durationOf(samples []float32) time.Duration {
	return r.encoding.Duration(len(samples))
}
