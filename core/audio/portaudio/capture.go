// Package portaudio is an alternative audio backend for hosts where
// miniaudio is unavailable. Samples cross the boundary as mono float32.
package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Capture reads fixed-size blocks from the default input device on a
// dedicated goroutine and hands them to the block callback.
type Capture struct {
	sampleRate int
	blockSize  int

	stream *portaudio.Stream
	in     []float32

	cancel context.CancelFunc
	loop   sync.WaitGroup

	mu sync.Mutex
}

func NewCapture(sampleRate, blockSize int) *Capture {
	return &Capture{
		sampleRate: sampleRate,
		blockSize:  blockSize,
	}
}

func (c *Capture) Start(ctx context.Context, onBlock func(block []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	c.in = make([]float32, c.blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.sampleRate), c.blockSize, c.in)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("failed to open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("failed to start capture stream: %w", err)
	}
	c.stream = stream

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.loop.Add(1)
	go c.read(loopCtx, onBlock)
	return nil
}

func (c *Capture) read(ctx context.Context, onBlock func(block []float32)) {
	defer c.loop.Done()

	for ctx.Err() == nil {
		if err := c.stream.Read(); err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		block := make([]float32, len(c.in))
		copy(block, c.in)
		onBlock(block)
	}
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}

	c.cancel()
	_ = c.stream.Abort()
	c.loop.Wait()

	err := c.stream.Close()
	c.stream = nil
	if terminateErr := portaudio.Terminate(); err == nil {
		err = terminateErr
	}
	return err
}
