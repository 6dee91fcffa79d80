package vad

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aria-vtuber/aria-core/core/audio"
	"github.com/gorilla/websocket"
)

// Link is a persistent duplex stream to an external voice-activity
// detector. Raw little-endian float32 PCM goes out in small batches; one
// {"is_speech": bool} JSON frame comes back per analysis window.
//
// Audio is handed over through a bounded drop-oldest queue so the capture
// callback never blocks on the network.
type Link struct {
	url     string
	options LinkOptions

	conn   *websocket.Conn
	connMu sync.Mutex

	sendQueue chan []float32

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	closeOnce sync.Once
}

type speechFrame struct {
	IsSpeech bool `json:"is_speech"`
}

func NewLink(url string, opts ...LinkOption) *Link {
	options := LinkOptions{
		SampleRate:    audio.DefaultSampleRate,
		BatchDuration: 100 * time.Millisecond,
		BatchMaxAge:   50 * time.Millisecond,
		MaxRetries:    5,
		RetryBackoff:  time.Second,
		QueueDepth:    100,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Link{
		url:       url,
		options:   options,
		sendQueue: make(chan []float32, options.QueueDepth),
	}
}

// Open dials the detector and starts the send and receive loops. The loops
// keep running, reconnecting as needed, until Close or ctx cancellation.
func (l *Link) Open(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "open vad link")
	defer span.End()

	conn, err := l.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to open vad link: %w", err)
	}
	l.setConn(conn)

	l.ctx, l.cancel = context.WithCancel(context.WithoutCancel(ctx))
	l.loops.Add(2)
	go l.sendLoop()
	go l.receiveLoop()

	return nil
}

func (l *Link) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", l.url, err)
	}
	return conn, nil
}

func (l *Link) setConn(conn *websocket.Conn) {
	l.connMu.Lock()
	old := l.conn
	l.conn = conn
	l.connMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

func (l *Link) currentConn() *websocket.Conn {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.conn
}

// reconnect re-dials with a bounded retry count and fixed backoff. It
// returns the new connection, or an error once the budget is exhausted.
func (l *Link) reconnect() (*websocket.Conn, error) {
	for attempt := 1; attempt <= l.options.MaxRetries; attempt++ {
		select {
		case <-l.ctx.Done():
			return nil, l.ctx.Err()
		case <-time.After(l.options.RetryBackoff):
		}

		logger.Info("reconnecting vad link", "attempt", attempt, "max", l.options.MaxRetries)
		conn, err := l.dial(l.ctx)
		if err == nil {
			l.setConn(conn)
			return conn, nil
		}
		logger.Warn("vad reconnect failed", "attempt", attempt, "error", err.Error())
	}

	return nil, fmt.Errorf("vad link lost after %d reconnect attempts", l.options.MaxRetries)
}

// SendAudio queues a block of samples for the detector without blocking.
// When the queue is full the oldest block is dropped, preserving real-time
// behavior over completeness.
func (l *Link) SendAudio(block []float32) {
	select {
	case l.sendQueue <- block:
	default:
		select {
		case <-l.sendQueue:
		default:
		}
		select {
		case l.sendQueue <- block:
		default:
		}
	}
}

func (l *Link) sendLoop() {
	defer l.loops.Done()

	batchSamples := l.options.SampleRate * int(l.options.BatchDuration) / int(time.Second)
	batch := make([]float32, 0, batchSamples)
	lastSend := time.Now()

	flushTick := time.NewTicker(l.options.BatchMaxAge)
	defer flushTick.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return

		case block := <-l.sendQueue:
			batch = append(batch, block...)
			if len(batch) < batchSamples && time.Since(lastSend) < l.options.BatchMaxAge {
				continue
			}

		case <-flushTick.C:
			if len(batch) == 0 {
				continue
			}
		}

		if err := l.writeBatch(batch); err != nil {
			logger.Warn("vad send failed", "error", err.Error())
			if _, err := l.reconnect(); err != nil {
				l.fail(err)
				return
			}
		}
		batch = batch[:0]
		lastSend = time.Now()
	}
}

func (l *Link) writeBatch(batch []float32) error {
	conn := l.currentConn()
	if conn == nil {
		return fmt.Errorf("vad link not connected")
	}

	payload := bytes.Buffer{}
	payload.Grow(len(batch) * 4)
	if err := binary.Write(&payload, binary.LittleEndian, batch); err != nil {
		return fmt.Errorf("failed to encode audio batch: %w", err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, payload.Bytes()); err != nil {
		return fmt.Errorf("failed to send audio batch: %w", err)
	}
	return nil
}

func (l *Link) receiveLoop() {
	defer l.loops.Done()

	for {
		if l.ctx.Err() != nil {
			return
		}

		conn := l.currentConn()
		if conn == nil {
			if _, err := l.reconnect(); err != nil {
				l.fail(err)
				return
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			logger.Warn("vad receive failed", "error", err.Error())
			if _, err := l.reconnect(); err != nil {
				l.fail(err)
				return
			}
			continue
		}

		var frame speechFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warn("unparsable vad frame", "error", err.Error())
			continue
		}

		if l.options.FrameCallback != nil {
			l.options.FrameCallback(frame.IsSpeech)
		}
	}
}

func (l *Link) fail(err error) {
	if l.ctx.Err() != nil {
		return
	}
	if l.options.ErrorCallback != nil {
		l.options.ErrorCallback(err)
	}
}

// Close stops both loops, awaits them, and closes the connection.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}

		l.connMu.Lock()
		conn := l.conn
		l.conn = nil
		l.connMu.Unlock()

		if conn != nil {
			err = conn.Close()
		}
		l.loops.Wait()
	})
	return err
}
