package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing or subscribing on a closed channel.
var ErrClosed = errors.New("broadcast: channel closed")

const subscriberBuffer = 16

// Local fans events out to subscribers inside one process. A slow subscriber loses events
// rather than blocking the publisher.
type Local struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewLocal constructs an in-process channel.
func NewLocal() *Local {
	return &Local{subs: make(map[chan Event]struct{})}
}

func (l *Local) Publish(_ context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	for ch := range l.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	ch := make(chan Event, subscriberBuffer)
	l.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		l.remove(ch)
	}()
	return ch, nil
}

func (l *Local) remove(ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.subs[ch]; ok {
		delete(l.subs, ch)
		close(ch)
	}
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	for ch := range l.subs {
		delete(l.subs, ch)
		close(ch)
	}
	return nil
}
