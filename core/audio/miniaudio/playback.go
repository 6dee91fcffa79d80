package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Playback plays one mono buffer at a time to completion. The device is
// initialized lazily on the first Play and re-initialized if the sample
// rate changes between buffers.
type Playback struct {
	mu sync.Mutex

	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	deviceRate   int

	queueMu sync.Mutex
	queue   []byte
	drained chan struct{}
}

func NewPlayback() *Playback {
	return &Playback{}
}

// Play blocks until the buffer has been fully handed to the device or ctx
// is cancelled; cancellation discards whatever is still queued.
func (p *Playback) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	if err := p.ensureDeviceLocked(sampleRate); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	encoded := make([]byte, len(samples)*4)
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(encoded[i*4:], math.Float32bits(sample))
	}

	p.queueMu.Lock()
	p.queue = encoded
	drained := make(chan struct{})
	p.drained = drained
	p.queueMu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		p.queueMu.Lock()
		p.queue = nil
		p.drained = nil
		p.queueMu.Unlock()
		return ctx.Err()
	}
}

func (p *Playback) ensureDeviceLocked(sampleRate int) error {
	if p.device != nil && p.deviceRate == sampleRate {
		return nil
	}

	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}

	if p.audioContext == nil {
		audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
		if err != nil {
			return fmt.Errorf("failed to initialize audio context: %w", err)
		}
		p.audioContext = audioContext
	}

	format := malgo.FormatF32
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(sampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(sampleRate / 10)
	config.Periods = 4

	device, err := malgo.InitDevice(p.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			p.fill(pOutput, int(frameCount)*bytesPerFrame)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	p.device = device
	p.deviceRate = sampleRate
	return nil
}

// fill runs on the device thread: copy out as much queued audio as fits
// and signal the waiting Play once the queue empties.
func (p *Playback) fill(pOutput []byte, need int) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	if len(p.queue) == 0 {
		return
	}

	n := copy(pOutput[:need], p.queue)
	p.queue = p.queue[n:]

	if len(p.queue) == 0 && p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
}

func (p *Playback) Close() error {
	p.queueMu.Lock()
	p.queue = nil
	if p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
	p.queueMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		if p.device.IsStarted() {
			_ = p.device.Stop()
		}
		p.device.Uninit()
		p.device = nil
	}
	if p.audioContext != nil {
		_ = p.audioContext.Uninit()
		p.audioContext.Free()
		p.audioContext = nil
	}
	return nil
}
