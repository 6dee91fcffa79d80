// Package miniaudio backs the engine's capture and playback devices with
// the miniaudio library. Samples cross the boundary as mono float32.
package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Capture streams fixed-size microphone blocks to a callback. The
// callback runs on miniaudio's device thread and must not block.
type Capture struct {
	sampleRate int
	blockSize  int

	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	onBlock func(block []float32)
	pending []float32

	mu sync.Mutex
}

func NewCapture(sampleRate, blockSize int) *Capture {
	return &Capture{
		sampleRate: sampleRate,
		blockSize:  blockSize,
	}
}

func (c *Capture) Start(_ context.Context, onBlock func(block []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		if c.device.IsStarted() {
			return nil
		}
		return c.device.Start()
	}

	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}
	c.audioContext = audioContext
	c.onBlock = onBlock

	format := malgo.FormatF32
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(c.sampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(c.blockSize)
	config.Periods = 3

	c.device, err = malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			c.consume(pInput[:n])
		},
	})
	if err != nil {
		c.releaseContextLocked()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if err := c.device.Start(); err != nil {
		c.device.Uninit()
		c.device = nil
		c.releaseContextLocked()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// consume regroups the device's native period into fixed-size blocks so
// downstream consumers always see the configured block size.
func (c *Capture) consume(raw []byte) {
	for i := 0; i+4 <= len(raw); i += 4 {
		c.pending = append(c.pending, math.Float32frombits(binary.LittleEndian.Uint32(raw[i:])))
	}

	for len(c.pending) >= c.blockSize {
		block := make([]float32, c.blockSize)
		copy(block, c.pending[:c.blockSize])
		c.pending = c.pending[c.blockSize:]

		if c.onBlock != nil {
			c.onBlock(block)
		}
	}
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		if c.device.IsStarted() {
			_ = c.device.Stop()
		}
		c.device.Uninit()
		c.device = nil
	}
	c.onBlock = nil
	c.pending = nil
	c.releaseContextLocked()
	return nil
}

func (c *Capture) releaseContextLocked() {
	if c.audioContext == nil {
		return
	}
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
	c.audioContext = nil
}
