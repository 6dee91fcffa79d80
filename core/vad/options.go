package vad

import "time"

type LinkOptions struct {
	// FrameCallback is called for every analysis-window verdict the
	// detector sends back.
	FrameCallback func(isSpeech bool)
	// ErrorCallback is called when the link gives up reconnecting.
	ErrorCallback func(error)

	SampleRate int

	// BatchDuration is the amount of buffered audio that forces a send.
	BatchDuration time.Duration
	// BatchMaxAge is the time since the last send that forces one even if
	// the batch is smaller than BatchDuration.
	BatchMaxAge time.Duration

	MaxRetries   int
	RetryBackoff time.Duration
	QueueDepth   int
}

type LinkOption func(*LinkOptions)

func WithFrameCallback(callback func(isSpeech bool)) LinkOption {
	return func(o *LinkOptions) { o.FrameCallback = callback }
}

func WithErrorCallback(callback func(error)) LinkOption {
	return func(o *LinkOptions) { o.ErrorCallback = callback }
}

func WithSampleRate(sampleRate int) LinkOption {
	return func(o *LinkOptions) {
		if sampleRate > 0 {
			o.SampleRate = sampleRate
		}
	}
}

func WithBatching(duration, maxAge time.Duration) LinkOption {
	return func(o *LinkOptions) {
		if duration > 0 {
			o.BatchDuration = duration
		}
		if maxAge > 0 {
			o.BatchMaxAge = maxAge
		}
	}
}

func WithRetryPolicy(maxRetries int, backoff time.Duration) LinkOption {
	return func(o *LinkOptions) {
		if maxRetries > 0 {
			o.MaxRetries = maxRetries
		}
		if backoff > 0 {
			o.RetryBackoff = backoff
		}
	}
}
