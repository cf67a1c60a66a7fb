package relay

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// Subscription is an open REQ on the relay. Events arrive on Events; the
// EndOfStoredEvents channel is closed once the relay reports EOSE. Close is
// idempotent.
type Subscription struct {
	Events            <-chan *nostr.Event
	EndOfStoredEvents <-chan struct{}

	closeOnce sync.Once
	closeFn   func()
}

// NewSubscription wraps pre-built channels into a Subscription. The close
// function may be nil.
func NewSubscription(events <-chan *nostr.Event, eose <-chan struct{}, closeFn func()) *Subscription {
	return &Subscription{
		Events:            events,
		EndOfStoredEvents: eose,
		closeFn:           closeFn,
	}
}

// Close releases the subscription on the relay side. Safe to call more than
// once and from multiple goroutines.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}

// Drain buffers stored events until EOSE and returns them as one batch. No
// event is handed out before the relay has finished replaying its stored set.
// After EOSE the subscription is closed; live events are not consumed here.
func (s *Subscription) Drain(ctx context.Context) ([]*nostr.Event, error) {
	defer s.Close()

	var buf []*nostr.Event
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-s.Events:
			if !ok {
				return buf, nil
			}
			buf = append(buf, ev)
		case <-s.EndOfStoredEvents:
			// The select picks arbitrarily when both channels are ready, so
			// events queued before EOSE may still be waiting. Sweep them.
			return append(buf, s.pending()...), nil
		}
	}
}

// pending collects events already queued on the channel without blocking.
func (s *Subscription) pending() []*nostr.Event {
	var buf []*nostr.Event
	for {
		select {
		case ev, ok := <-s.Events:
			if !ok {
				return buf
			}
			buf = append(buf, ev)
		default:
			return buf
		}
	}
}
