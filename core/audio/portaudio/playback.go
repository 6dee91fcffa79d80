package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Playback writes one buffer at a time to the default output device. The
// stream is opened lazily and reopened when the sample rate changes.
type Playback struct {
	mu sync.Mutex

	blockSize int

	stream      *portaudio.Stream
	streamRate  int
	out         []float32
	initialized bool
}

func NewPlayback(blockSize int) *Playback {
	return &Playback{blockSize: blockSize}
}

// Play blocks until the whole buffer has been written or ctx is
// cancelled. The tail block is zero-padded.
func (p *Playback) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureStreamLocked(sampleRate); err != nil {
		return err
	}

	for offset := 0; offset < len(samples); offset += p.blockSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n := copy(p.out, samples[offset:])
		for i := n; i < len(p.out); i++ {
			p.out[i] = 0
		}

		if err := p.stream.Write(); err != nil {
			return fmt.Errorf("failed to write playback block: %w", err)
		}
	}
	return nil
}

func (p *Playback) ensureStreamLocked(sampleRate int) error {
	if p.stream != nil && p.streamRate == sampleRate {
		return nil
	}

	if p.stream != nil {
		_ = p.stream.Close()
		p.stream = nil
	}

	if !p.initialized {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize portaudio: %w", err)
		}
		p.initialized = true
	}

	p.out = make([]float32, p.blockSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), p.blockSize, p.out)
	if err != nil {
		return fmt.Errorf("failed to open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to start playback stream: %w", err)
	}

	p.stream = stream
	p.streamRate = sampleRate
	return nil
}

func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.stream != nil {
		err = p.stream.Close()
		p.stream = nil
	}
	if p.initialized {
		if terminateErr := portaudio.Terminate(); err == nil {
			err = terminateErr
		}
		p.initialized = false
	}
	return err
}
