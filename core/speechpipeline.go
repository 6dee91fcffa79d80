package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/aria-vtuber/aria-core/core/audio"
	"github.com/aria-vtuber/aria-core/core/texttospeech"
)

const (
	revealMinPerChar = 30 * time.Millisecond
	revealMaxPerChar = 200 * time.Millisecond
	revealTick       = 10 * time.Millisecond
)

type pipelineCallbacks struct {
	onSegmentStart func(text string)
	onSegmentEnd   func(text string)
	onSegmentError func(text string, err error)

	// onMouthSamples receives the decoded PCM of a segment just before it
	// starts playing, for mouth-sync animation.
	onMouthSamples func(samples []float32, sampleRate int)
	// onReveal receives incremental chunks of the segment text, paced
	// across the segment's real playback duration.
	onReveal func(chunk string)

	// onDrained fires once per turn, when the final flush has happened
	// and every accepted segment has finished playing and revealing.
	onDrained func()
}

type pipelineSegment struct {
	generation int
	// text is what gets revealed; speakText has stage directions
	// stripped and is what gets synthesized.
	text      string
	speakText string
}

type synthesizedSegment struct {
	pipelineSegment
	wav []byte
	err error
}

// speechPipeline segments streaming text on punctuation boundaries,
// synthesizes each segment, and plays the results strictly in order. A
// synthesis worker and a playback worker run concurrently so playback of
// early segments overlaps synthesis of later ones.
type speechPipeline struct {
	mu sync.Mutex

	synthesizer Synthesizer
	playback    PlaybackDevice
	callbacks   pipelineCallbacks

	segmenter    *texttospeech.Segmenter
	pendingText  []pipelineSegment
	pendingAudio []synthesizedSegment

	// generation invalidates in-flight work across a Reset; results
	// carrying a stale generation are dropped on arrival.
	generation      int
	final           bool
	drainedNotified bool
	outstanding     int

	turnCtx    context.Context
	turnCancel context.CancelFunc

	textSignal  chan struct{}
	audioSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

func newSpeechPipeline(synthesizer Synthesizer, playback PlaybackDevice, callbacks pipelineCallbacks) *speechPipeline {
	return &speechPipeline{
		synthesizer: synthesizer,
		playback:    playback,
		callbacks:   callbacks,
		segmenter:   texttospeech.NewSegmenter(),
		textSignal:  make(chan struct{}, 1),
		audioSignal: make(chan struct{}, 1),
	}
}

// Start launches the synthesis and playback workers. They run until Stop.
func (p *speechPipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	p.mu.Lock()
	p.turnCtx, p.turnCancel = context.WithCancel(p.ctx)
	p.mu.Unlock()

	p.loops.Add(2)
	go p.synthesisLoop()
	go p.playbackLoop()
}

// Begin opens a new turn: the previous final flag is cleared and the
// drained notification re-armed.
func (p *speechPipeline) Begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.final = false
	p.drainedNotified = false
}

// PushText feeds streamed prose into the segmenter and queues any
// completed segments for synthesis.
func (p *speechPipeline) PushText(text string) {
	p.mu.Lock()
	segments := p.segmenter.Push(text)
	for _, segment := range segments {
		p.enqueueSegmentLocked(segment)
	}
	p.mu.Unlock()

	if len(segments) > 0 {
		signal(p.textSignal)
	}
}

// Finalize flushes any buffered remainder as a terminal segment and marks
// the turn final; onDrained fires once everything queued has played.
func (p *speechPipeline) Finalize() {
	p.mu.Lock()
	if remainder := p.segmenter.Flush(); remainder != "" {
		p.enqueueSegmentLocked(remainder)
	}
	p.final = true
	notify := p.drainedLocked()
	if notify {
		p.drainedNotified = true
	}
	p.mu.Unlock()

	signal(p.textSignal)
	if notify && p.callbacks.onDrained != nil {
		p.callbacks.onDrained()
	}
}

// Reset discards all queued text and audio and cancels in-flight
// synthesis, playback, and reveal work. Used when a new turn must drop a
// stale one.
func (p *speechPipeline) Reset() {
	p.mu.Lock()
	p.generation++
	p.segmenter = texttospeech.NewSegmenter()
	p.pendingText = nil
	p.pendingAudio = nil
	p.outstanding = 0
	p.final = false
	p.drainedNotified = false
	if p.turnCancel != nil {
		p.turnCancel()
	}
	if p.ctx != nil {
		p.turnCtx, p.turnCancel = context.WithCancel(p.ctx)
	}
	p.mu.Unlock()
}

// Stop shuts both workers down and awaits them.
func (p *speechPipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.loops.Wait()
}

func (p *speechPipeline) enqueueSegmentLocked(text string) {
	p.pendingText = append(p.pendingText, pipelineSegment{
		generation: p.generation,
		text:       text,
		speakText:  texttospeech.StripStageDirections(text),
	})
	p.outstanding++
}

func (p *speechPipeline) drainedLocked() bool {
	return p.final && !p.drainedNotified &&
		p.outstanding == 0 && len(p.pendingText) == 0 && len(p.pendingAudio) == 0
}

func (p *speechPipeline) synthesisLoop() {
	defer p.loops.Done()

	for {
		segment, turnCtx, ok := p.nextText()
		if !ok {
			select {
			case <-p.ctx.Done():
				return
			case <-p.textSignal:
			}
			continue
		}

		var wav []byte
		var err error
		if segment.speakText != "" {
			wav, err = p.synthesizer.Synthesize(turnCtx, segment.speakText)
		}

		p.mu.Lock()
		if segment.generation != p.generation {
			p.mu.Unlock()
			continue
		}
		p.pendingAudio = append(p.pendingAudio, synthesizedSegment{
			pipelineSegment: segment,
			wav:             wav,
			err:             err,
		})
		p.mu.Unlock()
		signal(p.audioSignal)
	}
}

func (p *speechPipeline) nextText() (pipelineSegment, context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pendingText) == 0 {
		return pipelineSegment{}, nil, false
	}
	segment := p.pendingText[0]
	p.pendingText = p.pendingText[1:]
	return segment, p.turnCtx, true
}

func (p *speechPipeline) playbackLoop() {
	defer p.loops.Done()

	for {
		segment, turnCtx, ok := p.nextAudio()
		if !ok {
			select {
			case <-p.ctx.Done():
				return
			case <-p.audioSignal:
			}
			continue
		}

		p.playSegment(turnCtx, segment)

		p.mu.Lock()
		if segment.generation == p.generation {
			p.outstanding--
		}
		notify := p.drainedLocked()
		if notify {
			p.drainedNotified = true
		}
		p.mu.Unlock()

		if notify && p.callbacks.onDrained != nil {
			p.callbacks.onDrained()
		}
	}
}

func (p *speechPipeline) nextAudio() (synthesizedSegment, context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pendingAudio) == 0 {
		return synthesizedSegment{}, nil, false
	}
	segment := p.pendingAudio[0]
	p.pendingAudio = p.pendingAudio[1:]
	return segment, p.turnCtx, true
}

// playSegment plays one segment to completion while pacing the text
// reveal across the real playback duration. A failed synthesis still
// reveals its text so the reply is never silently swallowed.
func (p *speechPipeline) playSegment(ctx context.Context, segment synthesizedSegment) {
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if p.callbacks.onSegmentStart != nil {
		p.callbacks.onSegmentStart(segment.text)
	}

	if segment.err != nil {
		logger.Warn("synthesis failed, revealing text without audio",
			"error", segment.err.Error())
		if p.callbacks.onSegmentError != nil {
			p.callbacks.onSegmentError(segment.text, segment.err)
		}
	}

	var samples []float32
	sampleRate := audio.DefaultSampleRate
	if segment.err == nil && len(segment.wav) > 0 {
		decoded, rate, err := audio.DecodeWAV(segment.wav)
		if err != nil {
			logger.Warn("undecodable synthesized audio", "error", err.Error())
			if p.callbacks.onSegmentError != nil {
				p.callbacks.onSegmentError(segment.text, err)
			}
		} else {
			samples, sampleRate = decoded, rate
		}
	}

	encoding := audio.EncodingInfo{SampleRate: sampleRate, Format: audio.EncodingFloat32}
	playDuration := encoding.Duration(len(samples))

	var reveal sync.WaitGroup
	reveal.Add(1)
	go func() {
		defer reveal.Done()
		p.revealText(ctx, segment.text, playDuration)
	}()

	if len(samples) > 0 {
		if p.callbacks.onMouthSamples != nil {
			p.callbacks.onMouthSamples(samples, sampleRate)
		}
		if err := p.playback.Play(ctx, samples, sampleRate); err != nil && ctx.Err() == nil {
			logger.Warn("playback failed", "error", err.Error())
			if p.callbacks.onSegmentError != nil {
				p.callbacks.onSegmentError(segment.text, err)
			}
		}
	}

	reveal.Wait()

	if p.callbacks.onSegmentEnd != nil {
		p.callbacks.onSegmentEnd(segment.text)
	}
}

// revealText paces character-by-character display across the segment's
// playback duration, clamped so very short or very long segments still
// read naturally.
func (p *speechPipeline) revealText(ctx context.Context, text string, playDuration time.Duration) {
	runes := []rune(text)
	if len(runes) == 0 || p.callbacks.onReveal == nil {
		return
	}

	perChar := playDuration / time.Duration(len(runes))
	perChar = min(max(perChar, revealMinPerChar), revealMaxPerChar)

	ticker := time.NewTicker(revealTick)
	defer ticker.Stop()

	start := time.Now()
	revealed := 0
	for revealed < len(runes) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		due := min(int(time.Since(start)/perChar)+1, len(runes))
		if due > revealed {
			p.callbacks.onReveal(string(runes[revealed:due]))
			revealed = due
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
