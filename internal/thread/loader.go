// Package thread loads comment threads for a note and posts replies.
package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/pictofeed/internal/apperr"
	"github.com/sandwichfarm/pictofeed/internal/ops"
	"github.com/sandwichfarm/pictofeed/internal/profile"
	"github.com/sandwichfarm/pictofeed/internal/protocol"
	"github.com/sandwichfarm/pictofeed/internal/relay"
	"github.com/sandwichfarm/pictofeed/internal/signer"
)

// Comment pairs a comment event with its author's profile, so the consumer
// can render each comment without a second lookup.
type Comment struct {
	Event   *nostr.Event
	Profile *profile.Profile
}

// Subscriber is the slice of the relay client the loader needs.
type Subscriber interface {
	Subscribe(ctx context.Context, filters []nostr.Filter) (*relay.Subscription, error)
}

// Publisher sends signed events to the relay.
type Publisher interface {
	Publish(ctx context.Context, ev nostr.Event) error
}

// Counter receives every comment the loader streams, so thread views seed
// the per-note comment tally. The counter dedups by event ID, so feeding it
// from both the thread and the per-note watch is safe.
type Counter interface {
	Apply(ev *nostr.Event)
}

// Loader fetches comment threads on demand. Nothing is loaded until a thread
// is opened.
type Loader struct {
	client   Subscriber
	pub      Publisher
	profiles *profile.Resolver
	signer   signer.Signer
	counter  Counter
	log      *ops.Logger
}

// NewLoader wires a thread loader. The signer may be nil for read-only use;
// PostComment then fails with apperr.ErrNoSigner. The counter may be nil
// when no engagement tally is kept.
func NewLoader(client Subscriber, pub Publisher, profiles *profile.Resolver, sig signer.Signer, counter Counter, log *ops.Logger) *Loader {
	return &Loader{
		client:   client,
		pub:      pub,
		profiles: profiles,
		signer:   sig,
		counter:  counter,
		log:      log,
	}
}

// OpenThread streams the stored comments on a note, each paired with its
// author's profile. The returned channel closes after the relay's stored set
// is exhausted. Duplicate deliveries of the same comment are dropped.
func (l *Loader) OpenThread(ctx context.Context, noteID string) (<-chan Comment, error) {
	sub, err := l.client.Subscribe(ctx, []nostr.Filter{{
		Kinds: []int{protocol.KindComment},
		Tags:  nostr.TagMap{"e": []string{noteID}},
	}})
	if err != nil {
		return nil, err
	}

	out := make(chan Comment)
	go func() {
		defer close(out)
		defer sub.Close()

		seen := make(map[string]struct{})
		eose := sub.EndOfStoredEvents
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events:
				if !ok {
					return
				}
				l.deliver(ctx, ev, seen, out)
			case <-eose:
				// Sweep comments queued behind the EOSE signal, then finish.
				for {
					select {
					case ev, ok := <-sub.Events:
						if !ok {
							return
						}
						l.deliver(ctx, ev, seen, out)
					default:
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func (l *Loader) deliver(ctx context.Context, ev *nostr.Event, seen map[string]struct{}, out chan<- Comment) {
	if ev == nil || ev.ID == "" {
		return
	}
	if _, dup := seen[ev.ID]; dup {
		return
	}
	seen[ev.ID] = struct{}{}

	if l.counter != nil {
		l.counter.Apply(ev)
	}

	p, err := l.profiles.Resolve(ctx, ev.PubKey)
	if err != nil {
		l.log.Warn("comment author profile lookup failed",
			"pubkey", ev.PubKey,
			"error", err)
		p = &profile.Profile{DisplayName: ev.PubKey}
	}

	select {
	case out <- Comment{Event: ev, Profile: p}:
	case <-ctx.Done():
	}
}

// PostComment signs and publishes a reply to a note, returning the published
// event once the relay acknowledges it.
func (l *Loader) PostComment(ctx context.Context, noteID, content string) (*nostr.Event, error) {
	if l.signer == nil {
		return nil, apperr.ErrNoSigner
	}
	if content == "" {
		return nil, errors.New("empty comment")
	}

	pubkey, err := l.signer.GetPublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	ev := nostr.Event{
		PubKey:    pubkey,
		CreatedAt: nostr.Now(),
		Kind:      protocol.KindComment,
		Tags:      nostr.Tags{{"e", noteID}},
		Content:   content,
	}
	if err := l.signer.SignEvent(ctx, &ev); err != nil {
		return nil, fmt.Errorf("failed to sign comment: %w", err)
	}

	if err := l.pub.Publish(ctx, ev); err != nil {
		l.log.LogPublish(ev.Kind, ev.ID, err)
		return nil, err
	}
	l.log.LogPublish(ev.Kind, ev.ID, nil)
	if l.counter != nil {
		l.counter.Apply(&ev)
	}
	return &ev, nil
}
