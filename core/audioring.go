package orchestration

import (
	"sync"
	"time"
)

const (
	// idleRetention bounds memory while nobody is speaking; it still has
	// to hold enough history to cover the recorder's pre-roll.
	idleRetention = 3 * time.Second
	// recordingRetention bounds a single utterance.
	recordingRetention = 120 * time.Second
	// shrinkRetention is the tail kept after an utterance is handed off.
	shrinkRetention = 1 * time.Second
)

// audioRing is an append-only sliding window over the microphone stream.
// Samples are addressed by absolute index so a recording can refer to a
// range even while old samples fall off the front.
type audioRing struct {
	mu sync.Mutex

	sampleRate int

	samples    []float32
	firstIndex int

	recording bool
}

func newAudioRing(sampleRate int) *audioRing {
	return &audioRing{sampleRate: sampleRate}
}

// Append copies a block in and returns the absolute head index after the
// append. It runs on the capture callback path and must stay cheap.
func (r *audioRing) Append(block []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, block...)

	retention := idleRetention
	if r.recording {
		retention = recordingRetention
	}
	r.dropBeforeLocked(r.headLocked() - r.capacity(retention))

	return r.headLocked()
}

// Head returns the absolute index one past the newest sample.
func (r *audioRing) Head() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headLocked()
}

func (r *audioRing) headLocked() int { return r.firstIndex + len(r.samples) }

// Extract copies out the samples in [start, end). Indices below the
// retained window are clamped; an empty range yields nil.
func (r *audioRing) Extract(start, end int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	start = max(start, r.firstIndex)
	end = min(end, r.headLocked())
	if start >= end {
		return nil
	}

	out := make([]float32, end-start)
	copy(out, r.samples[start-r.firstIndex:end-r.firstIndex])
	return out
}

// SetRecording switches the retention bound. Entering recording mode must
// happen before the window outgrows the idle cap; leaving it lets the next
// Append trim back down.
func (r *audioRing) SetRecording(recording bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = recording
}

// ShrinkToTail drops everything but the most recent tail, bounding memory
// once an utterance has been handed off.
func (r *audioRing) ShrinkToTail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropBeforeLocked(r.headLocked() - r.capacity(shrinkRetention))
}

func (r *audioRing) capacity(retention time.Duration) int {
	return int(retention.Seconds() * float64(r.sampleRate))
}

func (r *audioRing) dropBeforeLocked(index int) {
	if index <= r.firstIndex {
		return
	}
	drop := min(index-r.firstIndex, len(r.samples))
	remaining := copy(r.samples, r.samples[drop:])
	r.samples = r.samples[:remaining]
	r.firstIndex += drop
}
