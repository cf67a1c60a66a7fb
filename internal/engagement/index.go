// Package engagement maintains live reaction, repost, comment and zap
// counters for the notes currently in the feed.
package engagement

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/pictofeed/internal/apperr"
	"github.com/sandwichfarm/pictofeed/internal/ops"
	"github.com/sandwichfarm/pictofeed/internal/protocol"
	"github.com/sandwichfarm/pictofeed/internal/relay"
)

// Subscriber is the slice of the relay client the index needs.
type Subscriber interface {
	Subscribe(ctx context.Context, filters []nostr.Filter) (*relay.Subscription, error)
}

// Counters is the engagement tally for one note.
type Counters struct {
	Reactions int
	Reposts   int
	Comments  int
	ZapTotal  int64
}

// noteState carries the counters plus the set of event IDs already counted
// for this note. Aggregate and per-note subscriptions overlap, so dedup is
// per note, not per subscription.
type noteState struct {
	counters Counters
	seen     map[string]struct{}
}

// Index subscribes to engagement events for tracked notes and folds them into
// monotonic counters. Counters never decrease; duplicate deliveries of the
// same event are counted once.
type Index struct {
	client         Subscriber
	log            *ops.Logger
	defaultZapSats int64

	mu      sync.Mutex
	notes   map[string]*noteState
	tracked map[string]struct{}
	subs    []*relay.Subscription // aggregate subs, replaced on Refresh
	watches []*relay.Subscription // per-note subs, live until Close
	wg      sync.WaitGroup
}

// NewIndex returns an empty engagement index.
func NewIndex(client Subscriber, log *ops.Logger, defaultZapSats int64) *Index {
	return &Index{
		client:         client,
		log:            log,
		defaultZapSats: defaultZapSats,
		notes:          make(map[string]*noteState),
		tracked:        make(map[string]struct{}),
	}
}

// Refresh replaces the aggregate subscriptions with a new set scoped to the
// given note IDs. The previous aggregate subscriptions are closed first so
// the relay never serves two generations at once. Subscription failures are
// logged and skipped; counters already accumulated are kept.
func (x *Index) Refresh(ctx context.Context, noteIDs []string) {
	x.mu.Lock()
	for _, sub := range x.subs {
		sub.Close()
	}
	x.subs = nil

	for _, id := range noteIDs {
		x.tracked[id] = struct{}{}
		if _, ok := x.notes[id]; !ok {
			x.notes[id] = &noteState{seen: make(map[string]struct{})}
		}
	}
	x.mu.Unlock()

	if len(noteIDs) == 0 {
		return
	}

	filters := []nostr.Filter{
		{Kinds: []int{protocol.KindReaction}, Tags: nostr.TagMap{"e": noteIDs}},
		{Kinds: []int{protocol.KindRepost}, Tags: nostr.TagMap{"e": noteIDs}},
		{Kinds: []int{protocol.KindZapReceipt}, Tags: nostr.TagMap{"e": noteIDs}},
	}

	opened := 0
	for _, f := range filters {
		sub, err := x.client.Subscribe(ctx, []nostr.Filter{f})
		if err != nil {
			x.log.Warn("aggregate subscription failed",
				"kinds", f.Kinds,
				"error", err)
			continue
		}
		x.mu.Lock()
		x.subs = append(x.subs, sub)
		x.mu.Unlock()
		x.consume(sub)
		opened++
	}
	x.log.LogAggregateRefresh(len(noteIDs), opened)
}

// WatchNote opens a dedicated live subscription for a single note, typically
// when its thread view is open. Watches survive aggregate refreshes and stay
// open until Close.
func (x *Index) WatchNote(ctx context.Context, noteID string) error {
	x.mu.Lock()
	x.tracked[noteID] = struct{}{}
	if _, ok := x.notes[noteID]; !ok {
		x.notes[noteID] = &noteState{seen: make(map[string]struct{})}
	}
	x.mu.Unlock()

	sub, err := x.client.Subscribe(ctx, []nostr.Filter{{
		Kinds: []int{protocol.KindReaction, protocol.KindRepost, protocol.KindComment},
		Tags:  nostr.TagMap{"e": []string{noteID}},
	}})
	if err != nil {
		return err
	}

	x.mu.Lock()
	x.watches = append(x.watches, sub)
	x.mu.Unlock()
	x.consume(sub)
	return nil
}

// consume applies both stored and live events from a subscription until its
// channel closes.
func (x *Index) consume(sub *relay.Subscription) {
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		eose := sub.EndOfStoredEvents
		for {
			select {
			case ev, ok := <-sub.Events:
				if !ok {
					return
				}
				x.Apply(ev)
			case <-eose:
				// Stored and live events go through the same path; EOSE is
				// only a marker here. Nil the channel so the closed channel
				// does not spin the loop.
				eose = nil
			}
		}
	}()
}

// Apply folds one engagement event into the counters. Events without an "e"
// tag are malformed and dropped; events for untracked notes are ignored.
// Each event ID counts at most once per note.
func (x *Index) Apply(ev *nostr.Event) {
	if ev == nil || ev.ID == "" {
		return
	}
	tags := protocol.ParseTags(ev.Tags)
	noteID, ok := tags.Ref()
	if !ok {
		x.log.Debug("dropping engagement event without target",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"error", apperr.ErrMalformedEvent)
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.tracked[noteID]; !ok {
		return
	}
	state := x.notes[noteID]
	if _, dup := state.seen[ev.ID]; dup {
		return
	}

	switch ev.Kind {
	case protocol.KindReaction:
		state.counters.Reactions++
	case protocol.KindRepost:
		state.counters.Reposts++
	case protocol.KindComment:
		state.counters.Comments++
	case protocol.KindZapReceipt:
		amount, ok := tags.ZapAmount()
		if !ok {
			amount = x.defaultZapSats
		}
		state.counters.ZapTotal += amount
	default:
		return
	}
	state.seen[ev.ID] = struct{}{}
}

// Counters returns the current tally for a note. Unknown notes report zero.
func (x *Index) Counters(noteID string) Counters {
	x.mu.Lock()
	defer x.mu.Unlock()
	if state, ok := x.notes[noteID]; ok {
		return state.counters
	}
	return Counters{}
}

// Close tears down every subscription and waits for the consumers to drain.
func (x *Index) Close() {
	x.mu.Lock()
	for _, sub := range x.subs {
		sub.Close()
	}
	for _, sub := range x.watches {
		sub.Close()
	}
	x.subs = nil
	x.watches = nil
	x.mu.Unlock()
	x.wg.Wait()
}
