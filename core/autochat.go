package orchestration

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// autoChat fires an idle callback when the conversation has been quiet
// for a randomized threshold between the configured bounds. Any activity
// signal re-arms the timer with a fresh threshold.
type autoChat struct {
	minInterval time.Duration
	maxInterval time.Duration

	onIdle func()

	activity chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	loop   sync.WaitGroup
}

func newAutoChat(minInterval, maxInterval time.Duration, onIdle func()) *autoChat {
	return &autoChat{
		minInterval: minInterval,
		maxInterval: maxInterval,
		onIdle:      onIdle,
		activity:    make(chan struct{}, 1),
	}
}

func (a *autoChat) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.loop.Add(1)
	go a.run()
}

func (a *autoChat) run() {
	defer a.loop.Done()

	for {
		timer := time.NewTimer(a.nextThreshold())
		select {
		case <-a.ctx.Done():
			timer.Stop()
			return
		case <-a.activity:
			timer.Stop()
		case <-timer.C:
			a.onIdle()
		}
	}
}

func (a *autoChat) nextThreshold() time.Duration {
	if a.maxInterval <= a.minInterval {
		return a.minInterval
	}
	return a.minInterval + rand.N(a.maxInterval-a.minInterval)
}

// NotifyActivity re-arms the idle timer. Non-blocking.
func (a *autoChat) NotifyActivity() {
	select {
	case a.activity <- struct{}{}:
	default:
	}
}

func (a *autoChat) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.loop.Wait()
}
