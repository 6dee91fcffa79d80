package orchestration

import (
	"context"
	"testing"
	"time"
)

func TestAutoChatFiresWhenIdle(t *testing.T) {
	fired := make(chan struct{}, 1)

	a := newAutoChat(20*time.Millisecond, 40*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	a.Start(context.Background())
	defer a.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the idle callback to fire")
	}
}

func TestAutoChatActivityDefersIdle(t *testing.T) {
	fired := make(chan struct{}, 1)

	a := newAutoChat(300*time.Millisecond, 300*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	a.Start(context.Background())
	defer a.Stop()

	// Keep signalling activity well inside the threshold.
	for range 10 {
		time.Sleep(50 * time.Millisecond)
		a.NotifyActivity()
		select {
		case <-fired:
			t.Fatal("expected activity to defer the idle callback")
		default:
		}
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the idle callback once activity stopped")
	}
}

func TestAutoChatStopPreventsFurtherFires(t *testing.T) {
	fired := make(chan struct{}, 4)

	a := newAutoChat(20*time.Millisecond, 20*time.Millisecond, func() {
		fired <- struct{}{}
	})
	a.Start(context.Background())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one idle callback")
	}
	a.Stop()

	// Drain anything emitted before the stop took effect.
	for {
		select {
		case <-fired:
			continue
		default:
		}
		break
	}

	time.Sleep(100 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("expected no idle callbacks after stop")
	default:
	}
}
